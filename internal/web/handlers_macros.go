package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"macro-go-engine/internal/action"
	"macro-go-engine/internal/macro"
	"macro-go-engine/internal/permission"
	"macro-go-engine/internal/store"
)

func (s *Server) handleAPIListMacros(w http.ResponseWriter, r *http.Request) {
	macros, err := s.macros.ListMacros()
	if err != nil {
		s.logger.Error("list macros", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if macros == nil {
		macros = []*macro.Macro{}
	}
	s.writeJSON(w, http.StatusOK, macros)
}

func (s *Server) handleAPIGetMacro(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMacro(w, r.PathValue("id"))
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleAPICreateMacro(w http.ResponseWriter, r *http.Request) {
	var m macro.Macro
	if err := decodeBody(w, r, &m); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, err := s.macros.GetMacro(m.ID); err == nil {
		s.writeError(w, http.StatusConflict, "macro already exists")
		return
	}
	if err := m.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	m.RunCount, m.LastRun = 0, time.Time{}
	if err := s.macros.SaveMacro(&m); err != nil {
		s.logger.Error("create macro", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.notifyMacrosChanged()
	s.writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleAPIUpdateMacro(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.lookupMacro(w, r.PathValue("id"))
	if !ok {
		return
	}

	var m macro.Macro
	if err := decodeBody(w, r, &m); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := m.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Identity and statistics belong to the server.
	m.ID = existing.ID
	m.CreatedAt = existing.CreatedAt
	m.RunCount = existing.RunCount
	m.LastRun = existing.LastRun
	m.UpdatedAt = time.Now().UTC()
	if err := s.macros.SaveMacro(&m); err != nil {
		s.logger.Error("update macro", "err", err, "id", m.ID)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.notifyMacrosChanged()
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleAPIDeleteMacro(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.macros.DeleteMacro(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "macro not found")
			return
		}
		s.logger.Error("delete macro", "err", err, "id", id)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.notifyMacrosChanged()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIRunMacro(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMacro(w, r.PathValue("id"))
	if !ok {
		return
	}
	s.startRun(w, r, m)
}

type macroCheckResponse struct {
	MacroID string `json:"macro_id"`
	// Unsupported lists step titles that cannot run in Android mode.
	Unsupported []string          `json:"unsupported"`
	Permissions *permission.Check `json:"permissions,omitempty"`
	Required    []string          `json:"required_permissions"`
}

func (s *Server) handleAPICheckMacro(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMacro(w, r.PathValue("id"))
	if !ok {
		return
	}
	resp := macroCheckResponse{
		MacroID:     m.ID,
		Unsupported: action.UnsupportedSteps(m.Steps),
		Required:    permission.Required(m),
	}
	if resp.Unsupported == nil {
		resp.Unsupported = []string{}
	}
	if s.perms != nil {
		c := s.perms.CheckMacro(m)
		resp.Permissions = &c
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) lookupMacro(w http.ResponseWriter, id string) (*macro.Macro, bool) {
	m, err := s.macros.GetMacro(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "macro not found")
			return nil, false
		}
		s.logger.Error("get macro", "err", err, "id", id)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return m, true
}
