package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rollcall/pkg/audit"
	"github.com/platinummonkey/rollcall/pkg/auth"
	"github.com/platinummonkey/rollcall/pkg/httputil"
)

const (
	msgUnknownRequest  = "This login link is unknown or has expired. Ask for a new one."
	msgAlreadyVerified = "You are already verified."
	msgUnavailable     = "Login is temporarily unavailable, please try again in a few minutes."
)

// inviteMessage is sent to a subject after a successful login
func inviteMessage(result *auth.Result) string {
	return fmt.Sprintf("You are verified! Join the server here: %s", result.InviteLink)
}

// handleCallback handles GET /oauth/callback
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	params, ok := httputil.RequireQuery(w, r, "code", "state")
	if !ok {
		return
	}
	code, state := params[0], params[1]
	log := httputil.RequestLogger(r)

	result, err := s.flow.Confirm(r.Context(), state, code)
	switch {
	case errors.Is(err, auth.ErrRequestNotFound):
		httputil.WriteText(w, http.StatusNotFound, msgUnknownRequest)
		return
	case errors.Is(err, auth.ErrAlreadyConfirmed):
		httputil.WriteText(w, http.StatusOK, msgAlreadyVerified)
		return
	case err != nil:
		log.WithError(err).Warn("Login confirmation failed")
		httputil.WriteText(w, http.StatusServiceUnavailable, msgUnavailable)
		return
	}

	log = log.WithField("subject_id", result.SubjectID)
	target := result.InviteLink
	if s.messenger != nil {
		link, err := s.messenger.SendDirectMessage(r.Context(), result.SubjectID, inviteMessage(result))
		if err != nil {
			log.WithError(err).Warn("Failed to send invite message, redirecting to invite link")
		} else {
			target = link
		}
	}

	log.WithFields(logrus.Fields{
		"cohort_id": result.CohortID,
		"displaced": result.Displaced,
	}).Info("Login confirmed")
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// createLogin handles POST /api/v1/subjects/{id}/login
func (s *Server) createLogin(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	loginURL, err := s.flow.Begin(r.Context(), subjectID)
	if err != nil {
		s.unavailable(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"login_url": loginURL})
}

// refreshRoles handles POST /api/v1/subjects/{id}/refresh-roles
func (s *Server) refreshRoles(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.service.RefreshRoles(r.Context(), subjectID); err != nil {
		s.unavailable(w, r, err)
		return
	}
	httputil.WriteAccepted(w, map[string]string{"status": "queued"})
}

// refreshInfo handles POST /api/v1/subjects/{id}/refresh-info
func (s *Server) refreshInfo(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	hint, err := s.service.RefreshInfo(r.Context(), subjectID)
	if err != nil {
		s.unavailable(w, r, err)
		return
	}
	httputil.WriteAccepted(w, map[string]interface{}{
		"status":         "queued",
		"retry_after_ms": hint.Milliseconds(),
	})
}

// getSubject handles GET /api/v1/subjects/{id}
func (s *Server) getSubject(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	view, err := s.service.UserInfo(r.Context(), subjectID)
	if errors.Is(err, auth.ErrIdentityNotFound) {
		httputil.WriteNotFoundError(w, "identity not found")
		return
	}
	if err != nil {
		s.unavailable(w, r, err)
		return
	}
	httputil.WriteSuccess(w, view)
}

// defaultAuditLimit is the number of audit events returned without ?limit
const defaultAuditLimit = 50

// getAudit handles GET /api/v1/subjects/{id}/audit
func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.audit.Recent(r.Context(), subjectID, limit)
	if err != nil {
		s.unavailable(w, r, err)
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"events": events})
}

// getStats handles GET /api/v1/stats
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.unavailable(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}

func (s *Server) unavailable(w http.ResponseWriter, r *http.Request, err error) {
	httputil.RequestLogger(r).WithError(err).Warn("Admin request failed")
	httputil.WriteServiceUnavailable(w, "temporarily unavailable")
}
