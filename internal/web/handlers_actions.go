package web

import (
	"net/http"
	"strings"

	"macro-go-engine/internal/action"
	"macro-go-engine/internal/backend"
	"macro-go-engine/internal/engine"
	"macro-go-engine/internal/macro"
)

// FeatureLister is implemented by platforms that can report their browser
// capabilities.
type FeatureLister interface {
	Features() []string
}

type actionCapability struct {
	ID          action.ID `json:"id"`
	Supported   bool      `json:"supported"`
	WebCapable  bool      `json:"web_capable"`
	Permissions []string  `json:"permissions,omitempty"`
}

type capabilitiesResponse struct {
	Mode            engine.Mode        `json:"mode"`
	NativeAvailable bool               `json:"native_available"`
	Actions         []actionCapability `json:"actions"`
	WebFeatures     []string           `json:"web_features"`
}

func (s *Server) handleAPICapabilities(w http.ResponseWriter, r *http.Request) {
	mode := s.engine.GetMode()
	nativeUp := s.engine.Router().NativeAvailable(r.Context())

	resp := capabilitiesResponse{
		Mode:            mode,
		NativeAvailable: nativeUp,
		WebFeatures:     []string{},
	}
	for _, id := range action.All() {
		resp.Actions = append(resp.Actions, actionCapability{
			ID:          id,
			Supported:   engine.Supports(mode, id, nativeUp),
			WebCapable:  action.WebCapable(id),
			Permissions: action.Permissions(id),
		})
	}
	if fl, ok := s.notify.(FeatureLister); ok {
		resp.WebFeatures = fl.Features()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type executeResponse struct {
	Mode   engine.Mode       `json:"mode"`
	Action action.Normalized `json:"action"`
	Result backend.Result    `json:"result"`
}

// handleAPIExecuteAction dispatches a single step through the router without
// creating a run.
func (s *Server) handleAPIExecuteAction(w http.ResponseWriter, r *http.Request) {
	var step macro.Step
	if err := decodeBody(w, r, &step); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if step.Kind == "" {
		step.Kind = macro.KindAction
	}
	if step.Kind != macro.KindAction {
		s.writeError(w, http.StatusBadRequest, "only action steps can be executed")
		return
	}
	if strings.TrimSpace(step.Title) == "" {
		s.writeError(w, http.StatusBadRequest, "step title is required")
		return
	}

	mode := s.engine.GetMode()
	res := s.engine.Router().Dispatch(r.Context(), step)
	s.logger.Info("action executed", "title", step.Title, "mode", mode, "success", res.Success)
	s.writeJSON(w, http.StatusOK, executeResponse{
		Mode:   mode,
		Action: action.Normalize(step),
		Result: res,
	})
}
