package http

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the UI shell endpoints.
func NewRouter(ws *WSHandler, api *APIHandler, log logrus.FieldLogger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", ws.ServeWS)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/login", api.Login).Methods(http.MethodPost)
	apiRouter.HandleFunc("/register", api.Register).Methods(http.MethodPost)
	apiRouter.HandleFunc("/logout", api.Logout).Methods(http.MethodPost)
	apiRouter.HandleFunc("/me", api.Me).Methods(http.MethodGet)
	apiRouter.HandleFunc("/history", api.History).Methods(http.MethodGet)
	apiRouter.HandleFunc("/history/{id}", api.Detail).Methods(http.MethodGet)
	apiRouter.HandleFunc("/history/{id}/report.pdf", api.ReportPDF).Methods(http.MethodGet)
	apiRouter.HandleFunc("/dashboard", api.Dashboard).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", SessionHeader}),
		handlers.ExposedHeaders([]string{"Content-Disposition"}),
	)
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(log), handlers.PrintRecoveryStack(false))
	return handlers.CustomLoggingHandler(io.Discard, recovery(cors(r)), accessLog(log))
}

func accessLog(log logrus.FieldLogger) handlers.LogFormatter {
	return func(_ io.Writer, p handlers.LogFormatterParams) {
		log.WithFields(logrus.Fields{
			"method":   p.Request.Method,
			"path":     p.URL.Path,
			"status":   p.StatusCode,
			"size":     p.Size,
			"duration": time.Since(p.TimeStamp).String(),
		}).Debug("http request")
	}
}
