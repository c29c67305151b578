package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cbodonnell/cuesync/pkg/repositories/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens the database at path and applies the embedded
// migrations.
func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	scripts, err := readMigrations("sqlite")
	if err != nil {
		db.Close()
		return nil, err
	}
	for i, script := range scripts {
		if _, err := db.ExecContext(ctx, script); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, snapshot *models.SavedSnapshot) error {
	if err := prepareSnapshot(snapshot); err != nil {
		return err
	}
	q := `
	INSERT OR REPLACE INTO snapshots (id, table_id, version, text, state_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?);
	`
	_, err := r.db.ExecContext(ctx, q,
		snapshot.ID.String(),
		snapshot.TableID,
		snapshot.Version,
		snapshot.Text,
		snapshot.StateID,
		snapshot.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) LoadSnapshot(ctx context.Context, id uuid.UUID) (*models.SavedSnapshot, error) {
	q := `
	SELECT id, table_id, version, text, state_id, created_at FROM snapshots WHERE id = ?;
	`
	return scanSQLiteSnapshot(r.db.QueryRowContext(ctx, q, id.String()))
}

func (r *SQLiteRepository) LatestSnapshot(ctx context.Context, tableID string) (*models.SavedSnapshot, error) {
	q := `
	SELECT id, table_id, version, text, state_id, created_at FROM snapshots
	WHERE table_id = ? ORDER BY created_at DESC LIMIT 1;
	`
	return scanSQLiteSnapshot(r.db.QueryRowContext(ctx, q, tableID))
}

func (r *SQLiteRepository) ListSnapshots(ctx context.Context, tableID string, limit int) ([]*models.SavedSnapshot, error) {
	q := `
	SELECT id, table_id, version, text, state_id, created_at FROM snapshots
	WHERE table_id = ? ORDER BY created_at DESC LIMIT ?;
	`
	rows, err := r.db.QueryContext(ctx, q, tableID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %v", err)
	}
	defer rows.Close()

	snapshots := []*models.SavedSnapshot{}
	for rows.Next() {
		s, err := scanSQLiteSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %v", err)
	}
	return snapshots, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSnapshot(row rowScanner) (*models.SavedSnapshot, error) {
	var id string
	var createdAt int64
	s := &models.SavedSnapshot{}
	if err := row.Scan(&id, &s.TableID, &s.Version, &s.Text, &s.StateID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan snapshot: %v", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot id: %v", err)
	}
	s.ID = parsed
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	return s, nil
}
