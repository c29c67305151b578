package workers

import (
	"context"
	"fmt"

	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/repositories"
	"github.com/cbodonnell/cuesync/pkg/table"
)

// RestoreLatestSnapshot imports the most recent saved snapshot of tbl on the
// table loop. A table with no saved snapshot keeps its default state and
// restored is false.
func RestoreLatestSnapshot(ctx context.Context, repository repositories.Repository, tbl *table.Table) (restored bool, err error) {
	s, err := repository.LatestSnapshot(ctx, tbl.ID())
	if err != nil {
		if repositories.IsNotFound(err) {
			log.Info("No saved snapshot for table %s, starting with defaults", tbl.ID())
			return false, nil
		}
		return false, fmt.Errorf("failed to load latest snapshot: %v", err)
	}

	err = tbl.Submit(ctx, func(t *table.Table) error {
		return t.Replica().ImportSnapshot(s.Text)
	})
	if err != nil {
		return false, fmt.Errorf("failed to restore snapshot %s: %w", s.ID, err)
	}
	log.Info("Restored table %s from snapshot %s", tbl.ID(), s.ID)
	return true, nil
}
