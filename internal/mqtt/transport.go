//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"macro-go-engine/internal/bridge"
)

var _ bridge.Transport = (*Transport)(nil)

type callRequest struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Args   map[string]any `json:"args,omitempty"`
}

type callReply struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Transport carries native bridge calls to a companion device over MQTT.
// Requests go to <prefix>/bridge/<device>/call; the device answers on
// .../reply with the request id and announces itself with a retained
// "online" on .../state.
type Transport struct {
	conn   *Conn
	base   string
	logger *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]chan callReply

	stateMu sync.RWMutex
	online  bool
}

// NewTransport creates a transport for device. Reply and state topics are
// subscribed on every connect.
func NewTransport(conn *Conn, device string, logger *slog.Logger) *Transport {
	if device == "" {
		device = "android"
	}
	t := &Transport{
		conn:    conn,
		base:    conn.Topic("bridge", topicSafe(device)),
		logger:  logger.With("component", "bridge.mqtt", "device", device),
		pending: make(map[string]chan callReply),
	}
	conn.OnConnect(t.subscribe)
	return t
}

func (t *Transport) subscribe() {
	if err := t.conn.Subscribe(t.base+"/reply", t.handleReply); err != nil {
		t.logger.Error("subscribe reply topic", "err", err)
	}
	if err := t.conn.Subscribe(t.base+"/state", t.handleState); err != nil {
		t.logger.Error("subscribe state topic", "err", err)
	}
}

// Available reports whether the broker is connected and the device last
// announced itself online.
func (t *Transport) Available(context.Context) bool {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.online && t.conn.Connected()
}

// Call implements bridge.Transport.
func (t *Transport) Call(ctx context.Context, method string, args map[string]any) ([]byte, error) {
	id := uuid.NewString()
	ch := make(chan callReply, 1)
	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	payload, err := json.Marshal(callRequest{ID: id, Method: method, Args: args})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	t.conn.Publish(t.base+"/call", payload, false)

	select {
	case reply := <-ch:
		if reply.Error != "" {
			return nil, errors.New(reply.Error)
		}
		return reply.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) handleReply(_ string, payload []byte) {
	var reply callReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		t.logger.Debug("ignoring malformed reply", "err", err)
		return
	}
	t.pendingMu.Lock()
	ch, ok := t.pending[reply.ID]
	t.pendingMu.Unlock()
	if !ok {
		t.logger.Debug("reply for unknown request", "id", reply.ID)
		return
	}
	select {
	case ch <- reply:
	default:
	}
}

func (t *Transport) handleState(_ string, payload []byte) {
	online := strings.EqualFold(strings.TrimSpace(string(payload)), "online")
	t.stateMu.Lock()
	changed := t.online != online
	t.online = online
	t.stateMu.Unlock()
	if changed {
		t.logger.Info("device state", "online", online)
	}
}
