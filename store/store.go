// Package store persists ledger snapshots in SQLite.
//
// A snapshot replaces the previous one atomically: the actors table always
// holds exactly the actors of the last saved System.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
)

// ErrNoSnapshot is returned by Load when nothing was saved yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

const schema = `
CREATE TABLE IF NOT EXISTS actors (
	address    TEXT PRIMARY KEY,
	template   TEXT NOT NULL,
	params     BLOB NOT NULL,
	state      BLOB,
	balance    INTEGER NOT NULL,
	deployed   INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS labels (
	name    TEXT PRIMARY KEY,
	address TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const (
	metaFees    = "fees"
	metaMinted  = "minted"
	metaSavedAt = "saved_at"
)

// State is what a Save writes and a Load returns.
type State struct {
	Snapshot *core.Snapshot
	Labels   []core.AddressEntry
	SavedAt  time.Time
}

// Store is a SQLite-backed snapshot store.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Info("store opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored state with st.
func (s *Store) Save(ctx context.Context, st State) error {
	if st.Snapshot == nil {
		return errors.New("save: nil snapshot")
	}
	if st.SavedAt.IsZero() {
		st.SavedAt = time.Now()
	}
	now := st.SavedAt.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM actors", "DELETE FROM labels"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("save: %w", err)
		}
	}

	insActor, err := tx.PrepareContext(ctx, `INSERT INTO actors
		(address, template, params, state, balance, deployed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer insActor.Close()
	for _, a := range st.Snapshot.Actors {
		if _, err := insActor.ExecContext(ctx, a.Address.String(), string(a.Template),
			a.Params, a.State, a.Balance.Nano(), a.Deployed, now); err != nil {
			return fmt.Errorf("save actor %s: %w", a.Address.Short(), err)
		}
	}

	insLabel, err := tx.PrepareContext(ctx, `INSERT INTO labels (name, address) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer insLabel.Close()
	for _, e := range st.Labels {
		if _, err := insLabel.ExecContext(ctx, e.Name, e.Address.String()); err != nil {
			return fmt.Errorf("save label %s: %w", e.Name, err)
		}
	}

	meta := map[string]string{
		metaFees:    strconv.FormatInt(st.Snapshot.Fees.Nano(), 10),
		metaMinted:  strconv.FormatInt(st.Snapshot.Minted.Nano(), 10),
		metaSavedAt: now,
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	s.log.Debug("snapshot saved",
		zap.Int("actors", len(st.Snapshot.Actors)),
		zap.Int("labels", len(st.Labels)))
	return nil
}

// Load returns the last saved state, or ErrNoSnapshot.
func (s *Store) Load(ctx context.Context) (*State, error) {
	meta, err := s.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	savedAt, ok := meta[metaSavedAt]
	if !ok {
		return nil, ErrNoSnapshot
	}

	st := &State{Snapshot: &core.Snapshot{}}
	if st.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return nil, fmt.Errorf("load saved_at: %w", err)
	}
	if st.Snapshot.Fees, err = nanoOf(meta[metaFees]); err != nil {
		return nil, fmt.Errorf("load fees: %w", err)
	}
	if st.Snapshot.Minted, err = nanoOf(meta[metaMinted]); err != nil {
		return nil, fmt.Errorf("load minted: %w", err)
	}

	if st.Snapshot.Actors, err = s.loadActors(ctx); err != nil {
		return nil, err
	}
	if st.Labels, err = s.loadLabels(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) loadMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("load meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (s *Store) loadActors(ctx context.Context) ([]core.ActorSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, template, params, state, balance, deployed
		FROM actors ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("load actors: %w", err)
	}
	defer rows.Close()

	var out []core.ActorSnapshot
	for rows.Next() {
		var (
			addr, template string
			params, state  []byte
			balance        int64
			deployed       bool
		)
		if err := rows.Scan(&addr, &template, &params, &state, &balance, &deployed); err != nil {
			return nil, fmt.Errorf("load actors: %w", err)
		}
		a, err := ledger.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("load actors: %w", err)
		}
		out = append(out, core.ActorSnapshot{
			Address:  a,
			Template: ledger.TemplateID(template),
			Params:   params,
			State:    state,
			Balance:  ledger.FromNano(balance),
			Deployed: deployed,
		})
	}
	return out, rows.Err()
}

func (s *Store) loadLabels(ctx context.Context) ([]core.AddressEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, address FROM labels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	defer rows.Close()

	var out []core.AddressEntry
	for rows.Next() {
		var name, addr string
		if err := rows.Scan(&name, &addr); err != nil {
			return nil, fmt.Errorf("load labels: %w", err)
		}
		a, err := ledger.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("load labels: %w", err)
		}
		out = append(out, core.AddressEntry{Name: name, Address: a})
	}
	return out, rows.Err()
}

func nanoOf(s string) (ledger.Coins, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ledger.FromNano(n), nil
}
