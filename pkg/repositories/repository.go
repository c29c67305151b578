package repositories

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/cbodonnell/cuesync/pkg/repositories/models"
	"github.com/google/uuid"
)

//go:embed migrations
var migrations embed.FS

type Repository interface {
	Close(ctx context.Context) error
	// SaveSnapshot stores snapshot, assigning its ID and CreatedAt when unset.
	SaveSnapshot(ctx context.Context, snapshot *models.SavedSnapshot) error
	LoadSnapshot(ctx context.Context, id uuid.UUID) (*models.SavedSnapshot, error)
	// LatestSnapshot returns the most recent snapshot of a table.
	LatestSnapshot(ctx context.Context, tableID string) (*models.SavedSnapshot, error)
	// ListSnapshots returns up to limit snapshots of a table, newest first.
	ListSnapshots(ctx context.Context, tableID string, limit int) ([]*models.SavedSnapshot, error)
}

// prepareSnapshot fills the generated fields of a snapshot about to be saved.
func prepareSnapshot(snapshot *models.SavedSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if snapshot.TableID == "" {
		return fmt.Errorf("snapshot has no table id")
	}
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now()
	}
	snapshot.CreatedAt = snapshot.CreatedAt.UTC().Truncate(time.Millisecond)
	return nil
}

// readMigrations returns the migration scripts of a dialect in file name order.
func readMigrations(dialect string) ([]string, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}

	var scripts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		b, err := fs.ReadFile(migrations, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", entry.Name(), err)
		}
		scripts = append(scripts, string(b))
	}
	return scripts, nil
}

type NewRepositoryOptions struct {
	// DatabaseURL selects Postgres
	DatabaseURL string
	// SQLitePath selects SQLite when DatabaseURL is empty
	SQLitePath string
}

// NewRepository opens the configured repository. It returns nil when neither
// backend is configured.
func NewRepository(ctx context.Context, opts NewRepositoryOptions) (Repository, error) {
	switch {
	case opts.DatabaseURL != "":
		return NewPostgresRepository(ctx, opts.DatabaseURL)
	case opts.SQLitePath != "":
		return NewSQLiteRepository(ctx, opts.SQLitePath)
	default:
		return nil, nil
	}
}
