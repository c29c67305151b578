package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cbodonnell/cuesync/pkg/api/handlers"
	"github.com/cbodonnell/cuesync/pkg/api/middleware"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/repositories"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port   int
	TLS    *TLSConfig
	Tables handlers.Tables
	// Repository backs the saved snapshot routes, may be nil
	Repository repositories.Repository
}

// NewRouter returns the API routes of the hosted tables.
func NewRouter(opts NewAPIServerOptions) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.NewLoggingMiddleware(), middleware.NewCORSMiddleware())

	r.HandleFunc("/tables/{tableID}/state", handlers.HandleGetState(opts.Tables)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/tables/{tableID}/snapshot", handlers.HandleExportSnapshot(opts.Tables)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/tables/{tableID}/snapshot", handlers.HandleImportSnapshot(opts.Tables)).Methods(http.MethodPost)
	r.HandleFunc("/tables/{tableID}/snapshots", handlers.HandleSaveSnapshot(opts.Tables)).Methods(http.MethodPost, http.MethodOptions)

	if opts.Repository != nil {
		r.HandleFunc("/tables/{tableID}/snapshots", handlers.HandleListSnapshots(opts.Repository)).Methods(http.MethodGet)
		r.HandleFunc("/tables/{tableID}/snapshots/{snapshotID}/restore", handlers.HandleRestoreSnapshot(opts.Tables, opts.Repository)).Methods(http.MethodPost, http.MethodOptions)
		r.HandleFunc("/snapshots/{snapshotID}", handlers.HandleGetSnapshot(opts.Repository)).Methods(http.MethodGet, http.MethodOptions)
	}
	return r
}

// NewAPIServer creates a new http.Server for handling API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts),
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
