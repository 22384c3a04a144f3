//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"macro-go-engine/internal/engine"
	"macro-go-engine/internal/macro"
)

// MacroSource resolves macros named by run commands.
type MacroSource interface {
	GetMacro(id string) (*macro.Macro, error)
	ListMacros() ([]*macro.Macro, error)
}

// macroState is the retained payload on <prefix>/macros/<id>/state.
type macroState struct {
	RunID      string        `json:"run_id"`
	Status     engine.Status `json:"status"`
	Summary    string        `json:"summary,omitempty"`
	Error      string        `json:"error,omitempty"`
	Mode       engine.Mode   `json:"mode"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Publisher mirrors engine state to MQTT with HA autodiscovery and turns
// command topics into engine calls.
type Publisher struct {
	conn   *Conn
	eng    *engine.Engine
	macros MacroSource
	logger *slog.Logger
	unsub  func()
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	announced map[string]bool // macro ids with published discovery
}

// NewPublisher creates a publisher on an established connection.
func NewPublisher(conn *Conn, eng *engine.Engine, macros MacroSource, logger *slog.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		conn:      conn,
		eng:       eng,
		macros:    macros,
		logger:    logger.With("component", "mqtt.publisher"),
		ctx:       ctx,
		cancel:    cancel,
		announced: make(map[string]bool),
	}
}

// Start subscribes to engine events and registers the connect hook that
// announces state and subscribes command topics.
func (p *Publisher) Start() {
	p.unsub = p.eng.Events().OnAll(p.handleEvent)
	p.conn.OnConnect(p.announce)
	p.logger.Info("MQTT publisher started", "prefix", p.conn.Prefix())
}

// Stop unsubscribes from engine events. The connection is closed by its owner.
func (p *Publisher) Stop() {
	p.cancel()
	if p.unsub != nil {
		p.unsub()
	}
	p.logger.Info("MQTT publisher stopped")
}

func (p *Publisher) announce() {
	p.conn.Publish(p.conn.Topic("bridge", "state"), []byte("online"), true)
	p.publishMode(p.eng.GetMode())
	p.PublishDiscovery()
	p.subscribeCommands()
}

// PublishDiscovery (re)announces the mode select and every enabled macro,
// and removes entities of macros that were deleted or disabled since the
// last call.
func (p *Publisher) PublishDiscovery() {
	macros, err := p.macros.ListMacros()
	if err != nil {
		p.logger.Error("list macros for discovery", "err", err)
		return
	}
	prefix := p.conn.Prefix()
	for _, msg := range buildDiscovery(prefix, macros) {
		p.conn.Publish(msg.Topic, msg.Payload, true)
	}

	current := make(map[string]bool, len(macros))
	for _, m := range macros {
		if m != nil && m.ID != "" && m.Enabled {
			current[m.ID] = true
		}
	}
	p.mu.Lock()
	var gone []string
	for id := range p.announced {
		if !current[id] {
			gone = append(gone, id)
		}
	}
	p.announced = current
	p.mu.Unlock()

	for _, id := range gone {
		for _, msg := range buildRemoveDiscovery(prefix, id) {
			p.conn.Publish(msg.Topic, msg.Payload, true)
		}
	}
	p.logger.Info("published HA discovery", "macros", len(current), "removed", len(gone))
}

func (p *Publisher) subscribeCommands() {
	topics := []string{
		p.conn.Topic("mode", "set"),
		p.conn.Topic("macros", "+", "run"),
		p.conn.Topic("runs", "+", "cancel"),
	}
	for _, topic := range topics {
		if err := p.conn.Subscribe(topic, p.handleCommand); err != nil {
			p.logger.Error("subscribe command topic", "topic", topic, "err", err)
		}
	}
}

func (p *Publisher) handleEvent(event engine.Event) {
	switch event.Type {
	case engine.EventModeChanged:
		if m, ok := event.Data.(engine.Mode); ok {
			p.publishMode(m)
		}
	case engine.EventRunStarted, engine.EventRunStep:
		if run, ok := event.Data.(engine.Run); ok {
			p.publishRun(run)
		}
	case engine.EventRunFinished:
		run, ok := event.Data.(engine.Run)
		if !ok {
			return
		}
		p.publishRun(run)
		if run.MacroID != "" {
			state := macroState{
				RunID:      run.ID,
				Status:     run.Status,
				Summary:    run.Summary,
				Error:      run.Error,
				Mode:       run.Mode,
				FinishedAt: run.FinishedAt,
			}
			p.conn.Publish(p.conn.Topic("macros", run.MacroID, "state"), mustJSON(state), true)
		}
	}
}

func (p *Publisher) publishMode(m engine.Mode) {
	p.conn.Publish(p.conn.Topic("mode"), []byte(m), true)
}

func (p *Publisher) publishRun(run engine.Run) {
	p.conn.Publish(p.conn.Topic("runs", run.ID), mustJSON(run), false)
}

// command is a parsed command topic.
type command struct {
	Kind string // "mode", "run" or "cancel"
	ID   string // macro id for run, run id for cancel
}

// parseCommand maps a topic under prefix to a command.
func parseCommand(prefix, topic string) (command, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return command{}, false
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[0] == "mode" && parts[1] == "set":
		return command{Kind: "mode"}, true
	case len(parts) == 3 && parts[0] == "macros" && parts[2] == "run" && parts[1] != "":
		return command{Kind: "run", ID: parts[1]}, true
	case len(parts) == 3 && parts[0] == "runs" && parts[2] == "cancel" && parts[1] != "":
		return command{Kind: "cancel", ID: parts[1]}, true
	}
	return command{}, false
}

func (p *Publisher) handleCommand(topic string, payload []byte) {
	cmd, ok := parseCommand(p.conn.Prefix(), topic)
	if !ok {
		p.logger.Debug("ignoring topic", "topic", topic)
		return
	}

	switch cmd.Kind {
	case "mode":
		mode, err := engine.ParseMode(modePayload(payload))
		if err != nil {
			p.logger.Warn("invalid mode command", "payload", string(payload), "err", err)
			return
		}
		if err := p.eng.SetMode(mode); err != nil {
			p.logger.Error("set mode", "mode", mode, "err", err)
		}

	case "run":
		m, err := p.macros.GetMacro(cmd.ID)
		if err != nil {
			p.logger.Warn("run command for unknown macro", "macro_id", cmd.ID, "err", err)
			return
		}
		runID, err := p.eng.StartRun(p.ctx, m)
		if err != nil {
			if errors.Is(err, engine.ErrRunInProgress) {
				p.logger.Info("macro already running", "macro_id", cmd.ID)
				return
			}
			p.logger.Warn("start run", "macro_id", cmd.ID, "err", err)
			return
		}
		p.logger.Info("run started via MQTT", "macro_id", cmd.ID, "run_id", runID)

	case "cancel":
		if !p.eng.CancelRun(cmd.ID) {
			p.logger.Debug("cancel ignored", "run_id", cmd.ID)
		}
	}
}

// modePayload accepts a bare mode name or {"mode": "..."}.
func modePayload(payload []byte) string {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Mode != "" {
		return body.Mode
	}
	return strings.Trim(strings.TrimSpace(string(payload)), `"`)
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
