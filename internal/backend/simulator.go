package backend

import (
	"context"
	"math/rand/v2"
	"time"

	"macro-go-engine/internal/action"
	"macro-go-engine/internal/macro"
)

// SimulatorConfig tunes the demo surface.
type SimulatorConfig struct {
	SuccessRate float64       // probability of success, clamped to [0.9, 1]
	MinDelay    time.Duration // artificial latency lower bound
	MaxDelay    time.Duration // artificial latency upper bound
}

// DefaultSimulatorConfig matches the demo experience: 95% success and
// 500-1500ms latency.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		SuccessRate: 0.95,
		MinDelay:    500 * time.Millisecond,
		MaxDelay:    1500 * time.Millisecond,
	}
}

// Simulator pretends to execute actions. It never touches device or browser
// state.
type Simulator struct {
	cfg  SimulatorConfig
	rand func() float64
	now  func() time.Time
}

// NewSimulator creates a simulator. SuccessRate values below 0.9 are raised
// to 0.9; the demo surface must stay mostly successful.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.SuccessRate < 0.9 {
		cfg.SuccessRate = 0.9
	}
	if cfg.SuccessRate > 1 {
		cfg.SuccessRate = 1
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &Simulator{cfg: cfg, rand: rand.Float64, now: time.Now}
}

// SuccessRate returns the effective success probability.
func (s *Simulator) SuccessRate() float64 { return s.cfg.SuccessRate }

// Execute waits a random latency, then succeeds with the configured
// probability. A cancelled context cuts the wait short but still produces a
// result.
func (s *Simulator) Execute(ctx context.Context, act action.Normalized, step macro.Step) Result {
	if d := s.delay(); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	res := Result{
		Backend:   NameSimulator,
		Simulated: true,
		Data: map[string]any{
			"mode":      "demo",
			"action":    string(act.ID),
			"timestamp": s.now().UTC().Format(time.RFC3339),
		},
	}
	if s.rand() < s.cfg.SuccessRate {
		res.Success = true
		res.Message = "Demo: Successfully executed " + step.Title
	} else {
		res.Kind = KindBackendError
		res.Message = "Demo: Failed to execute " + step.Title
	}
	return res
}

// Fallback synthesizes the success reported when Hybrid mode gives up on a
// step known to be unsupported. reason carries the original failure so the
// result is never mistaken for a real execution.
func (s *Simulator) Fallback(step macro.Step, env string, reason Result) Result {
	return Result{
		Success:   true,
		Message:   step.Title + " (simulated - not available in " + env + ")",
		Backend:   NameSimulator,
		Simulated: true,
		Data: map[string]any{
			"fallback":      "simulation",
			"reason":        reason.Message,
			"reason_kind":   string(reason.Kind),
			"failed_on":     reason.Backend,
			"original_step": step.ID,
		},
	}
}

func (s *Simulator) delay() time.Duration {
	span := s.cfg.MaxDelay - s.cfg.MinDelay
	if span <= 0 {
		return s.cfg.MinDelay
	}
	return s.cfg.MinDelay + time.Duration(s.rand()*float64(span))
}
