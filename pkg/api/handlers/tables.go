package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cbodonnell/cuesync/pkg/codec"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/state"
	"github.com/cbodonnell/cuesync/pkg/table"
	"github.com/cbodonnell/cuesync/pkg/workers"
	"github.com/gorilla/mux"
)

// TableEntry exposes one hosted table to the handlers.
type TableEntry struct {
	Table        *table.Table
	StateManager state.StateManager
	// SaveRequests reaches the table's save worker, may be nil
	SaveRequests chan<- workers.SaveSnapshotRequest
}

// Tables maps table ids to hosted tables.
type Tables map[string]*TableEntry

// SnapshotText is the body of snapshot export and import.
type SnapshotText struct {
	Version string `json:"version,omitempty"`
	Text    string `json:"text"`
}

func (t Tables) lookup(w http.ResponseWriter, r *http.Request) (*TableEntry, bool) {
	tableID := mux.Vars(r)["tableID"]
	entry, ok := t[tableID]
	if !ok {
		http.Error(w, "Table not found", http.StatusNotFound)
		return nil, false
	}
	return entry, true
}

func parseVersion(w http.ResponseWriter, r *http.Request) (codec.TextVersion, bool) {
	raw := r.URL.Query().Get("version")
	if raw == "" {
		return codec.TextV3, true
	}
	v, err := codec.ParseTextVersion(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func HandleGetState(tables Tables) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := tables.lookup(w, r)
		if !ok {
			return
		}
		tableState, err := entry.StateManager.Get(r.Context())
		if err != nil {
			log.Error("failed to get table state: %v", err)
			http.Error(w, "Failed to get table state", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, tableState)
	}
}

func HandleExportSnapshot(tables Tables) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := tables.lookup(w, r)
		if !ok {
			return
		}
		v, ok := parseVersion(w, r)
		if !ok {
			return
		}
		var text string
		err := entry.Table.Submit(r.Context(), func(t *table.Table) error {
			var err error
			text, err = t.Replica().ExportSnapshot(v)
			return err
		})
		if err != nil {
			log.Error("failed to export snapshot: %v", err)
			http.Error(w, "Failed to export snapshot", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, SnapshotText{Version: v.String(), Text: text})
	}
}

func HandleImportSnapshot(tables Tables) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := tables.lookup(w, r)
		if !ok {
			return
		}
		var body SnapshotText
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Failed to decode request body", http.StatusBadRequest)
			return
		}
		importText(w, r, entry, body.Text)
	}
}

// importText imports text on the table loop and replies with the new state.
func importText(w http.ResponseWriter, r *http.Request, entry *TableEntry, text string) {
	var imported types.GameStateData
	err := entry.Table.Submit(r.Context(), func(t *table.Table) error {
		if err := t.Replica().ImportSnapshot(text); err != nil {
			return err
		}
		imported = t.Replica().State()
		return nil
	})
	if err != nil {
		if errors.Is(err, codec.ErrMalformedSnapshot) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error("failed to import snapshot: %v", err)
		http.Error(w, "Failed to import snapshot", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, imported)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}
