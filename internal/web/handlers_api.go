package web

import (
	"errors"
	"net/http"

	"macro-go-engine/internal/engine"
	"macro-go-engine/internal/macro"
	"macro-go-engine/internal/permission"
)

type modeResponse struct {
	Mode            engine.Mode   `json:"mode"`
	Label           string        `json:"label"`
	Modes           []engine.Mode `json:"modes"`
	NativeAvailable bool          `json:"native_available"`
}

func (s *Server) modeResponse(r *http.Request) modeResponse {
	m := s.engine.GetMode()
	return modeResponse{
		Mode:            m,
		Label:           m.Label(),
		Modes:           engine.Modes,
		NativeAvailable: s.engine.Router().NativeAvailable(r.Context()),
	}
}

func (s *Server) handleAPIGetMode(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.modeResponse(r))
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleAPISetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, err := engine.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.SetMode(mode); err != nil {
		s.logger.Error("set mode", "err", err, "mode", mode)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, s.modeResponse(r))
}

type startRunResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request, m *macro.Macro) {
	id, err := s.engine.StartRun(r.Context(), m)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, startRunResponse{RunID: id})
	case errors.Is(err, engine.ErrRunInProgress):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleAPIRunAdHoc(w http.ResponseWriter, r *http.Request) {
	var m macro.Macro
	if err := decodeBody(w, r, &m); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Ad-hoc runs never collide with stored macros.
	m.ID = ""
	s.startRun(w, r, &m)
}

func (s *Server) handleAPIListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.engine.ListRuns(r.URL.Query().Get("macro_id"))
	if err != nil {
		s.logger.Error("list runs", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if runs == nil {
		runs = []engine.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleAPIGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.GetRunStatus(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, engine.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleAPICancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.engine.GetRunStatus(id); err != nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.engine.CancelRun(id)})
}

type permissionView struct {
	permission.Info
	Granted bool `json:"granted"`
}

func (s *Server) handleAPIListPermissions(w http.ResponseWriter, r *http.Request) {
	all := permission.All()
	views := make([]permissionView, 0, len(all))
	for _, info := range all {
		views = append(views, permissionView{Info: info, Granted: s.perms != nil && s.perms.IsGranted(info.Name)})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIRequestPermission(w http.ResponseWriter, r *http.Request) {
	if s.perms == nil {
		s.writeError(w, http.StatusServiceUnavailable, "permissions not available")
		return
	}
	out, err := s.perms.Request(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, permission.ErrUnknown) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("request permission", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}
