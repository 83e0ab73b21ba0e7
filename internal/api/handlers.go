package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/model"
)

func (s *Server) mount(w http.ResponseWriter, r *http.Request) {
	ws := chi.URLParam(r, "workspaceID")
	sess, created, err := s.Sessions.Mount(ws)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]string{
		"workspace_id": ws,
		"session_id":   sess.ID(),
	})
}

func (s *Server) unmount(w http.ResponseWriter, r *http.Request) {
	if !s.Sessions.Unmount(chi.URLParam(r, "workspaceID")) {
		writeError(w, http.StatusNotFound, "no onboarding session mounted for workspace")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// onboarding returns the latest view, ticking once on demand when the
// session has not polled yet.
func (s *Server) onboarding(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	view := sess.View()
	if view == nil {
		v, err := sess.Tick(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "onboarding status is not available yet")
			return
		}
		view = v
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) retryTrack(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	wf := model.WorkflowType(chi.URLParam(r, "workflow"))
	if err := sess.RetryTrack(r.Context(), wf); err != nil {
		writeError(w, s.errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying", "workflow": string(wf)})
}

func (s *Server) retryDispatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	wf := model.WorkflowType(chi.URLParam(r, "workflow"))
	if err := sess.RetryDispatch(wf); err != nil {
		writeError(w, s.errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatching", "workflow": string(wf)})
}

// skip records that the user moved on without waiting. It always succeeds.
func (s *Server) skip(w http.ResponseWriter, r *http.Request) {
	ws := chi.URLParam(r, "workspaceID")
	fields := []zap.Field{zap.String("workspace_id", ws)}
	if sess, ok := s.Sessions.Get(ws); ok {
		if v := sess.View(); v != nil {
			fields = append(fields, zap.Bool("all_complete", v.AllComplete), zap.Int64("tick", v.Tick))
		}
	}
	zap.L().Info("api: onboarding skipped", fields...)
	writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
}

type callbackRequest struct {
	Status  string        `json:"status"`
	Details model.Details `json:"details"`
}

// callback accepts a progress report from an external job and stores it as
// the track's newest status record.
func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	ws := chi.URLParam(r, "workspaceID")
	wf := model.WorkflowType(chi.URLParam(r, "workflow"))

	if _, ok := s.Registry.Get(wf); !ok {
		writeError(w, http.StatusNotFound, "unknown workflow")
		return
	}

	var req callbackRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Status = strings.TrimSpace(req.Status)
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	rec := &model.StatusRecord{
		WorkspaceID:  ws,
		WorkflowType: wf,
		Status:       req.Status,
		Details:      req.Details,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.Writer.InsertStatus(r.Context(), rec); err != nil {
		zap.L().Error("api: store callback", zap.String("workspace_id", ws), zap.String("workflow", string(wf)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not record status")
		return
	}

	if s.Hub != nil {
		s.Hub.Notify(ws)
	}
	if s.Publisher != nil {
		if err := s.Publisher.Publish(r.Context(), ws, "workflow_status"); err != nil {
			zap.L().Warn("api: publish change", zap.String("workspace_id", ws), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": rec.ID, "status": rec.Status})
}
