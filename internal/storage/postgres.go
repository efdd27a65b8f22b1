//go:build postgres
// +build postgres

package storage

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "tickd/pkg/logx"
)

//go:embed postgres_migrations.sql
var postgresMigrations string

const (
	pgMaxConns    = 4
	pgPingTimeout = 5 * time.Second
)

type postgresStore struct {
	pool   *pgxpool.Pool
	log    logx.Logger
	retain int

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pc.MaxConns = pgMaxConns
	pc.MaxConnIdleTime = 10 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), pgPingTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresMigrations); err != nil {
		pool.Close()
		return nil, err
	}
	return &postgresStore{pool: pool, log: log, retain: cfg.retain(), pruneEvery: 100}, nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.pool == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tickd_runs(at, action, run_id, took_ms, ok, err, panicked) VALUES($1,$2,$3,$4,$5,$6,$7)`,
		r.At, r.Action, r.RunID, r.TookMS, r.OK, nullStr(r.Error), r.Panicked,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if _, perr := s.pool.Exec(pctx,
			`DELETE FROM tickd_runs WHERE id <= (SELECT id FROM tickd_runs ORDER BY id DESC LIMIT 1 OFFSET $1)`, s.retain); perr != nil {
			s.log.Debug("run history prune failed", logx.Any("err", perr))
		}
		cancel()
	}
	return err
}

func (s *postgresStore) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.pool == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 || limit > s.retain {
		limit = s.retain
	}
	rows, err := s.pool.Query(ctx,
		`SELECT at, action, run_id, took_ms, ok, COALESCE(err, ''), panicked FROM tickd_runs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RunRecord, error) {
		var r RunRecord
		err := row.Scan(&r.At, &r.Action, &r.RunID, &r.TookMS, &r.OK, &r.Error, &r.Panicked)
		return r, err
	})
	if err != nil {
		return nil, err
	}
	// Oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
