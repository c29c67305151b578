package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/cbodonnell/cuesync/pkg/codec"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/repositories"
	"github.com/cbodonnell/cuesync/pkg/repositories/models"
	"github.com/cbodonnell/cuesync/pkg/state"
)

type SaveSnapshotWorker struct {
	repository   repositories.Repository
	stateManager state.StateManager
	requests     <-chan SaveSnapshotRequest
	interval     time.Duration
	version      codec.TextVersion
	lastStateID  uint32
	saved        bool
	logger       *log.Logger
}

type NewSaveSnapshotWorkerOptions struct {
	Repository   repositories.Repository
	StateManager state.StateManager
	// Requests carries on-demand saves, may be nil
	Requests <-chan SaveSnapshotRequest
	Interval time.Duration
	// Version defaults to codec.TextV3
	Version codec.TextVersion
}

// SaveSnapshotRequest asks the worker to save the current table state now.
// The saved snapshot or error is sent on Result, which should be buffered.
type SaveSnapshotRequest struct {
	Version codec.TextVersion
	Result  chan<- SaveSnapshotResult
}

type SaveSnapshotResult struct {
	Snapshot *models.SavedSnapshot
	Err      error
}

// NewSaveSnapshotWorker creates a new SaveSnapshotWorker.
// The worker processes save requests and periodically saves the
// published table state to the repository when its state id moved.
func NewSaveSnapshotWorker(opts NewSaveSnapshotWorkerOptions) *SaveSnapshotWorker {
	version := opts.Version
	if version == 0 {
		version = codec.TextV3
	}
	return &SaveSnapshotWorker{
		repository:   opts.Repository,
		stateManager: opts.StateManager,
		requests:     opts.Requests,
		interval:     opts.Interval,
		version:      version,
		logger:       log.Named("save-worker"),
	}
}

func (w *SaveSnapshotWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.requests:
			version := req.Version
			if version == 0 {
				version = w.version
			}
			s, err := w.save(ctx, version)
			if req.Result != nil {
				req.Result <- SaveSnapshotResult{Snapshot: s, Err: err}
			}
		case <-ticker.C:
			if err := w.SaveIfChanged(ctx); err != nil {
				w.logger.Error("Failed to save table snapshot: %v", err)
			}
		}
	}
}

// SaveIfChanged saves the table state unless a snapshot of the same state id
// was already saved by this worker.
func (w *SaveSnapshotWorker) SaveIfChanged(ctx context.Context) error {
	tableState, err := w.stateManager.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current table state: %v", err)
	}
	if w.saved && tableState.Game.StateID == w.lastStateID {
		return nil
	}
	_, err = w.saveState(ctx, tableState, w.version)
	return err
}

func (w *SaveSnapshotWorker) save(ctx context.Context, version codec.TextVersion) (*models.SavedSnapshot, error) {
	tableState, err := w.stateManager.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current table state: %v", err)
	}
	return w.saveState(ctx, tableState, version)
}

func (w *SaveSnapshotWorker) saveState(ctx context.Context, tableState *state.TableState, version codec.TextVersion) (*models.SavedSnapshot, error) {
	text, clamped, err := codec.EncodeText(&tableState.Game, version)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %v", err)
	}
	if len(clamped) > 0 {
		w.logger.Warn("Clamped %d fields saving %s snapshot: %v", len(clamped), version, clamped)
	}

	s := &models.SavedSnapshot{
		TableID: tableState.TableID,
		Version: version.String(),
		Text:    text,
		StateID: tableState.Game.StateID,
	}
	if err := w.repository.SaveSnapshot(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %v", err)
	}
	w.lastStateID = tableState.Game.StateID
	w.saved = true
	w.logger.Debug("Saved %s snapshot %s of table %s at state %d", s.Version, s.ID, s.TableID, s.StateID)
	return s, nil
}
