//go:build badger
// +build badger

package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	logx "tickd/pkg/logx"
)

var runPrefix = []byte("run/")

// badgerStore keys runs by a monotonically increasing sequence so key order
// is insertion order.
type badgerStore struct {
	db     *badger.DB
	log    logx.Logger
	retain int

	mu    sync.Mutex
	seq   uint64
	count int
}

func openBadger(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("badger path is required")
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	st := &badgerStore{db: db, log: log, retain: cfg.retain()}
	if err := st.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func runKey(seq uint64) []byte {
	k := make([]byte, len(runPrefix)+8)
	copy(k, runPrefix)
	binary.BigEndian.PutUint64(k[len(runPrefix):], seq)
	return k
}

func (s *badgerStore) load() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = runPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			s.seq = binary.BigEndian.Uint64(k[len(runPrefix):])
			s.count++
		}
		return nil
	})
}

func (s *badgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *badgerStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq + 1
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(seq), data)
	}); err != nil {
		return err
	}
	s.seq = seq
	s.count++
	if s.count > s.retain {
		if err := s.pruneLocked(s.count - s.retain); err != nil {
			s.log.Debug("run history prune failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *badgerStore) pruneLocked(n int) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = runPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid() && len(keys) < n; it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}
	s.count -= len(keys)
	return nil
}

func (s *badgerStore) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 || limit > s.retain {
		limit = s.retain
	}
	var out []RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = runPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks from the largest key carrying the prefix.
		seek := append(append([]byte(nil), runPrefix...), 0xFF)
		for it.Seek(seek); it.Valid() && len(out) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var r RunRecord
				if err := json.Unmarshal(val, &r); err != nil {
					return err
				}
				out = append(out, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
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
