package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/repositories/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PostgresRepository struct {
	conn *pgx.Conn
}

// NewPostgresRepository connects to the database at connStr and applies the
// embedded migrations. The caller is responsible for calling Close() on the
// repository.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	conn, err := connectDb(ctx, connStr)
	if err != nil {
		return nil, err
	}

	scripts, err := readMigrations("postgres")
	if err != nil {
		conn.Close(ctx)
		return nil, err
	}
	for i, script := range scripts {
		if _, err := conn.Exec(ctx, script); err != nil {
			conn.Close(ctx)
			return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
		}
	}

	return &PostgresRepository{
		conn: conn,
	}, nil
}

func connectDb(ctx context.Context, connStr string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	err = conn.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database)
	if err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("unable to query database: %v", err)
	}

	log.Info("Connected to %s as %s", database, username)

	return conn, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) SaveSnapshot(ctx context.Context, snapshot *models.SavedSnapshot) error {
	if err := prepareSnapshot(snapshot); err != nil {
		return err
	}
	q := `
	INSERT INTO snapshots (id, table_id, version, text, state_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		table_id = EXCLUDED.table_id,
		version = EXCLUDED.version,
		text = EXCLUDED.text,
		state_id = EXCLUDED.state_id,
		created_at = EXCLUDED.created_at;
	`
	_, err := r.conn.Exec(ctx, q,
		snapshot.ID,
		snapshot.TableID,
		snapshot.Version,
		snapshot.Text,
		int64(snapshot.StateID),
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %v", err)
	}
	return nil
}

func (r *PostgresRepository) LoadSnapshot(ctx context.Context, id uuid.UUID) (*models.SavedSnapshot, error) {
	q := `
	SELECT id, table_id, version, text, state_id, created_at FROM snapshots WHERE id = $1;
	`
	return scanPostgresSnapshot(r.conn.QueryRow(ctx, q, id))
}

func (r *PostgresRepository) LatestSnapshot(ctx context.Context, tableID string) (*models.SavedSnapshot, error) {
	q := `
	SELECT id, table_id, version, text, state_id, created_at FROM snapshots
	WHERE table_id = $1 ORDER BY created_at DESC LIMIT 1;
	`
	return scanPostgresSnapshot(r.conn.QueryRow(ctx, q, tableID))
}

func (r *PostgresRepository) ListSnapshots(ctx context.Context, tableID string, limit int) ([]*models.SavedSnapshot, error) {
	q := `
	SELECT id, table_id, version, text, state_id, created_at FROM snapshots
	WHERE table_id = $1 ORDER BY created_at DESC LIMIT $2;
	`
	rows, err := r.conn.Query(ctx, q, tableID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %v", err)
	}
	defer rows.Close()

	snapshots := []*models.SavedSnapshot{}
	for rows.Next() {
		s, err := scanPostgresSnapshot(rows)
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

func scanPostgresSnapshot(row pgx.Row) (*models.SavedSnapshot, error) {
	var stateID int64
	s := &models.SavedSnapshot{}
	if err := row.Scan(&s.ID, &s.TableID, &s.Version, &s.Text, &stateID, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan snapshot: %v", err)
	}
	s.StateID = uint32(stateID)
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}
