package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"
)

// ErrClosed is returned by calls on a closed serial transport.
var ErrClosed = errors.New("bridge: transport closed")

type serialRequest struct {
	ID     uint64         `json:"id"`
	Method string         `json:"method"`
	Args   map[string]any `json:"args,omitempty"`
}

type serialReply struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// SerialTransport speaks newline-delimited JSON to a companion device. Every
// request carries an id; replies are matched by id and may arrive out of
// order.
type SerialTransport struct {
	port   io.ReadWriteCloser
	reader *bufio.Reader
	logger *slog.Logger

	nextID  atomic.Uint64
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan serialReply

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// OpenSerial opens portName at baud (8N1) and starts the reader.
func OpenSerial(portName string, baud int, logger *slog.Logger) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("bridge serial: open %s: %w", portName, err)
	}
	_ = port.SetDTR(true)
	return NewSerialTransport(port, logger), nil
}

// NewSerialTransport wraps an already open stream.
func NewSerialTransport(rwc io.ReadWriteCloser, logger *slog.Logger) *SerialTransport {
	t := &SerialTransport{
		port:    rwc,
		reader:  bufio.NewReader(rwc),
		logger:  logger.With("component", "bridge.serial"),
		pending: make(map[uint64]chan serialReply),
		done:    make(chan struct{}),
	}
	t.wg.Add(1)
	go t.readLoop()
	return t
}

// Available reports whether the stream is still open.
func (t *SerialTransport) Available(context.Context) bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Call implements Transport.
func (t *SerialTransport) Call(ctx context.Context, method string, args map[string]any) ([]byte, error) {
	id := t.nextID.Add(1)
	ch := make(chan serialReply, 1)
	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	line, err := json.Marshal(serialRequest{ID: id, Method: method, Args: args})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	t.writeMu.Lock()
	_, err = t.port.Write(append(line, '\n'))
	t.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if reply.Error != "" {
			return nil, errors.New(reply.Error)
		}
		return reply.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrClosed
	}
}

func (t *SerialTransport) readLoop() {
	defer t.wg.Done()
	defer t.shutdown()
	for {
		line, err := t.reader.ReadBytes('\n')
		if len(line) > 0 {
			t.dispatch(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && t.Available(context.Background()) {
				t.logger.Warn("serial read failed", "err", err)
			}
			return
		}
	}
}

func (t *SerialTransport) dispatch(line []byte) {
	var reply serialReply
	if err := json.Unmarshal(line, &reply); err != nil {
		t.logger.Debug("ignoring malformed line", "line", string(line), "err", err)
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

func (t *SerialTransport) shutdown() {
	t.closeOnce.Do(func() { close(t.done) })
}

// Close closes the stream and waits for the reader to exit.
func (t *SerialTransport) Close() error {
	t.shutdown()
	err := t.port.Close()
	t.wg.Wait()
	return err
}
