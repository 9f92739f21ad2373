package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/najoast/catalog/core"
)

// SaveSystem checkpoints sys and saves the snapshot and address book.
// Submissions wait while the checkpoint is taken.
func (s *Store) SaveSystem(ctx context.Context, sys *core.System) error {
	snap, err := sys.Checkpoint(ctx)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return s.Save(ctx, State{Snapshot: snap, Labels: sys.Book().Entries()})
}

// RestoreSystem loads the last saved state into an empty sys. It reports
// false when there was nothing to restore.
func (s *Store) RestoreSystem(ctx context.Context, sys *core.System) (bool, error) {
	st, err := s.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := sys.Restore(st.Snapshot); err != nil {
		return false, err
	}
	for _, e := range st.Labels {
		if err := sys.Book().Label(e.Address, e.Name); err != nil {
			s.log.Warn("label not restored", zap.String("name", e.Name), zap.Error(err))
		}
	}
	s.log.Info("snapshot restored",
		zap.Int("actors", len(st.Snapshot.Actors)),
		zap.Time("saved_at", st.SavedAt))
	return true, nil
}
