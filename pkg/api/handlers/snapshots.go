package handlers

import (
	"net/http"
	"strconv"

	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/repositories"
	"github.com/cbodonnell/cuesync/pkg/repositories/models"
	"github.com/cbodonnell/cuesync/pkg/workers"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func HandleSaveSnapshot(tables Tables) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := tables.lookup(w, r)
		if !ok {
			return
		}
		if entry.SaveRequests == nil {
			http.Error(w, "Snapshot storage is not configured", http.StatusServiceUnavailable)
			return
		}
		v, ok := parseVersion(w, r)
		if !ok {
			return
		}

		result := make(chan workers.SaveSnapshotResult, 1)
		select {
		case entry.SaveRequests <- workers.SaveSnapshotRequest{Version: v, Result: result}:
		case <-r.Context().Done():
			http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
			return
		}
		select {
		case res := <-result:
			if res.Err != nil {
				log.Error("failed to save snapshot: %v", res.Err)
				http.Error(w, "Failed to save snapshot", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusCreated, res.Snapshot)
		case <-r.Context().Done():
			http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
		}
	}
}

func HandleListSnapshots(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxListLimit)
		}
		snapshots, err := repository.ListSnapshots(r.Context(), mux.Vars(r)["tableID"], limit)
		if err != nil {
			log.Error("failed to list snapshots: %v", err)
			http.Error(w, "Failed to list snapshots", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, snapshots)
	}
}

func HandleGetSnapshot(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := loadSnapshot(w, r, repository)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// HandleRestoreSnapshot imports a saved snapshot into a hosted table.
func HandleRestoreSnapshot(tables Tables, repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := tables.lookup(w, r)
		if !ok {
			return
		}
		s, ok := loadSnapshot(w, r, repository)
		if !ok {
			return
		}
		importText(w, r, entry, s.Text)
	}
}

func loadSnapshot(w http.ResponseWriter, r *http.Request, repository repositories.Repository) (*models.SavedSnapshot, bool) {
	id, err := uuid.Parse(mux.Vars(r)["snapshotID"])
	if err != nil {
		http.Error(w, "Invalid snapshot id", http.StatusBadRequest)
		return nil, false
	}
	s, err := repository.LoadSnapshot(r.Context(), id)
	if err != nil {
		if repositories.IsNotFound(err) {
			http.Error(w, "Snapshot not found", http.StatusNotFound)
			return nil, false
		}
		log.Error("failed to load snapshot: %v", err)
		http.Error(w, "Failed to load snapshot", http.StatusInternalServerError)
		return nil, false
	}
	return s, true
}
