package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"emsi-preparator/internal/app"
	"emsi-preparator/internal/domain"
	"emsi-preparator/internal/report"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// SessionHeader carries the UI shell session id; the "session" query
// parameter is accepted where headers cannot be set.
const SessionHeader = "X-Session-ID"

// SessionID returns the session id a request belongs to, or "".
func SessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("session"))
}

// APIHandler serves authentication and the read-only history views.
type APIHandler struct {
	identities app.IdentityStore
	auth       app.AuthAPI
	history    *app.HistoryService
	reportOpts report.Options
	log        logrus.FieldLogger
}

func NewAPIHandler(identities app.IdentityStore, auth app.AuthAPI, history *app.HistoryService, reportOpts report.Options, log logrus.FieldLogger) *APIHandler {
	return &APIHandler{
		identities: identities,
		auth:       auth,
		history:    history,
		reportOpts: reportOpts,
		log:        log.WithField("component", "api"),
	}
}

type loginResponse struct {
	SessionID string              `json:"sessionId"`
	User      domain.UserIdentity `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request body"})
		return
	}
	// a session id is never taken from the client, so a planted id cannot be logged into
	sessionID := uuid.NewString()
	user, err := h.provider(sessionID).Login(r.Context(), creds)
	if err != nil {
		h.writeError(w, err, "Login failed. Please check your credentials.")
		return
	}
	if previous := SessionID(r); previous != "" {
		if err := h.provider(previous).Logout(r.Context()); err != nil {
			h.log.WithError(err).Warn("drop previous session failed")
		}
	}
	writeJSON(w, http.StatusOK, loginResponse{SessionID: sessionID, User: user})
}

func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var reg domain.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request body"})
		return
	}
	if err := h.provider(SessionID(r)).Register(r.Context(), reg); err != nil {
		h.writeError(w, err, "Registration failed. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Registration successful. Please log in."})
}

func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionID(r)
	if sessionID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.provider(sessionID).Logout(r.Context()); err != nil {
		h.log.WithError(err).Warn("logout failed")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	rows, err := h.history.List(r.Context(), user)
	if err != nil {
		h.writeError(w, err, app.HistoryMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *APIHandler) Detail(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	rep, err := h.history.Report(r.Context(), user, domain.ID(mux.Vars(r)["id"]))
	if err != nil {
		h.writeError(w, err, app.DetailMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *APIHandler) ReportPDF(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	rep, err := h.history.Report(r.Context(), user, domain.ID(mux.Vars(r)["id"]))
	if err != nil {
		h.writeError(w, err, app.DetailMessage(err))
		return
	}
	var buf bytes.Buffer
	if err := report.Render(&buf, rep, h.reportOpts); err != nil {
		h.log.WithError(err).Error("render report")
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Failed to generate the PDF report."})
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(rep)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *APIHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	d, err := h.history.Dashboard(r.Context(), user)
	if err != nil {
		h.writeError(w, err, app.HistoryMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *APIHandler) provider(sessionID string) *app.IdentityProvider {
	return app.NewIdentityProvider(sessionID, h.identities, h.auth, h.log)
}

func (h *APIHandler) currentUser(w http.ResponseWriter, r *http.Request) (domain.UserIdentity, bool) {
	sessionID := SessionID(r)
	if sessionID == "" {
		h.writeError(w, domain.ErrNoIdentity, "")
		return domain.UserIdentity{}, false
	}
	user, err := h.provider(sessionID).Restore(r.Context())
	if err != nil {
		h.writeError(w, err, "Session unavailable. Please try again.")
		return domain.UserIdentity{}, false
	}
	return user, true
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Warn("request failed")
	}
	writeJSON(w, status, messageResponse{Message: domain.MessageOr(err, fallback)})
}

func statusFor(err error) int {
	var (
		cfgErr *domain.ConfigurationError
		svcErr *domain.ServiceError
		trErr  *domain.TransportError
	)
	switch {
	case errors.Is(err, domain.ErrNoIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAttemptNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmailInUse):
		return http.StatusConflict
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.As(err, &svcErr):
		if svcErr.StatusCode == http.StatusUnauthorized || svcErr.StatusCode == http.StatusBadRequest {
			return svcErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.As(err, &trErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
