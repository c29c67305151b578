package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cbodonnell/cuesync/pkg/api/handlers"
	"github.com/cbodonnell/cuesync/pkg/game"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/network"
	"github.com/cbodonnell/cuesync/pkg/queue"
	"github.com/cbodonnell/cuesync/pkg/repositories"
	"github.com/cbodonnell/cuesync/pkg/repositories/models"
	"github.com/cbodonnell/cuesync/pkg/state"
	"github.com/cbodonnell/cuesync/pkg/table"
	"github.com/cbodonnell/cuesync/pkg/workers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	repo, err := repositories.NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "cuesync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close(context.Background()) })

	inbox := queue.NewInMemoryQueue(64)
	link, err := network.NewBus().Join(inbox)
	require.NoError(t, err)
	sm := state.NewInMemoryStateManager("main")
	tbl := table.New(table.NewTableOptions{
		TableID:      "main",
		Transport:    link,
		Inbox:        inbox,
		Simulator:    game.NewHeadlessSimulator(game.NewHeadlessSimulatorOptions{}),
		StateManager: sm,
		TickInterval: 5 * time.Millisecond,
	})
	go tbl.Start(ctx)

	saves := make(chan workers.SaveSnapshotRequest)
	worker := workers.NewSaveSnapshotWorker(workers.NewSaveSnapshotWorkerOptions{
		Repository:   repo,
		StateManager: sm,
		Requests:     saves,
		Interval:     time.Hour,
	})
	go worker.Start(ctx)

	srv := httptest.NewServer(NewRouter(NewAPIServerOptions{
		Tables: handlers.Tables{
			"main": {Table: tbl, StateManager: sm, SaveRequests: saves},
		},
		Repository: repo,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPI_ExportImport(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv.URL+"/tables/main/snapshot?version=v2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var exported handlers.SnapshotText
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&exported))
	assert.Equal(t, "v2", exported.Version)
	assert.True(t, strings.HasPrefix(exported.Text, "v2:"))

	body, err := json.Marshal(handlers.SnapshotText{Text: exported.Text})
	require.NoError(t, err)
	resp = postJSON(t, srv.URL+"/tables/main/snapshot", string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var imported types.GameStateData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&imported))
	assert.Equal(t, uint32(1), imported.StateID)
}

func TestAPI_Errors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown table", http.MethodGet, "/tables/nope/state", "", http.StatusNotFound},
		{"unknown version", http.MethodGet, "/tables/main/snapshot?version=v9", "", http.StatusBadRequest},
		{"malformed snapshot", http.MethodPost, "/tables/main/snapshot", `{"text":"v3:not base64!"}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/tables/main/snapshot", `{`, http.StatusBadRequest},
		{"bad snapshot id", http.MethodGet, "/snapshots/xyz", "", http.StatusBadRequest},
		{"missing snapshot", http.MethodGet, "/snapshots/5f2b7f3e-8d0c-4b55-9e1a-4c1d2f3a4b5c", "", http.StatusNotFound},
		{"bad limit", http.MethodGet, "/tables/main/snapshots?limit=0", "", http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/tables/main/state", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAPI_SaveListRestore(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/tables/main/snapshots", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var saved models.SavedSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	assert.Equal(t, "main", saved.TableID)
	assert.Equal(t, "v3", saved.Version)

	resp = get(t, srv.URL+"/tables/main/snapshots")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []models.SavedSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)

	resp = get(t, srv.URL+"/snapshots/"+saved.ID.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/tables/main/snapshots/"+saved.ID.String()+"/restore", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var restored types.GameStateData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&restored))
	assert.Equal(t, uint32(1), restored.StateID)
}

func TestAPI_State(t *testing.T) {
	srv := newTestServer(t)

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/tables/main/state")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var ts state.TableState
		if err := json.NewDecoder(resp.Body).Decode(&ts); err != nil {
			return false
		}
		return ts.LocalPeer == 1 && len(ts.Peers) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAPI_Preflight(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/tables/main/snapshot", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
