package memapp

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

// NewHandler serves the application over the uiclient HTTP/JSON protocol.
//
//	POST   /sessions                    credentials -> SessionInfo
//	POST   /sessions/{id}/interactions  Interaction -> Response
//	DELETE /sessions/{id}
func NewHandler(app *App, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{app: app, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", h.openSession)
	mux.HandleFunc("POST /sessions/{id}/interactions", h.invoke)
	mux.HandleFunc("DELETE /sessions/{id}", h.closeSession)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

type handler struct {
	app    *App
	logger *zap.Logger
}

func (h *handler) openSession(w http.ResponseWriter, r *http.Request) {
	var creds uiclient.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.fail(w, &uiclient.RejectedError{Message: "malformed credentials: " + err.Error()})
		return
	}
	s, err := h.app.Open(r.Context(), creds)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Debug("session opened", zap.String("session", s.ID()), zap.String("user", creds.Username))
	h.write(w, http.StatusCreated, uiclient.SessionInfo{Session: s.ID(), RoleCenter: s.RoleCenter()})
}

func (h *handler) invoke(w http.ResponseWriter, r *http.Request) {
	s, ok := h.app.Session(r.PathValue("id"))
	if !ok {
		h.fail(w, uiclient.ErrSessionClosed)
		return
	}
	var in uiclient.Interaction
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.fail(w, &uiclient.RejectedError{Message: "malformed interaction: " + err.Error()})
		return
	}
	resp, err := s.Invoke(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, resp)
}

func (h *handler) closeSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.app.Session(r.PathValue("id"))
	if !ok {
		h.fail(w, uiclient.ErrSessionClosed)
		return
	}
	if err := s.Close(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	code := uiclient.ErrorCode(err)
	status := http.StatusUnprocessableEntity
	switch code {
	case uiclient.CodeSessionClosed:
		status = http.StatusGone
	case uiclient.CodeNotFound:
		status = http.StatusNotFound
	case uiclient.CodeUnauthorized:
		status = http.StatusUnauthorized
	}
	msg := err.Error()
	var rej *uiclient.RejectedError
	if errors.As(err, &rej) {
		msg = rej.Message
	}
	h.write(w, status, uiclient.ErrorBody{Error: uiclient.ErrorDetail{Code: code, Message: msg}})
}

func (h *handler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}
