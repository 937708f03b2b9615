package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Hara602/inputSentry/internal/model"
	"github.com/tidwall/buntdb"
)

const (
	spillPrefix = "batch:"
	deadPrefix  = "dead:"
)

// Spill 提交失败的批次落盘到 buntdb，成功提交后按写入顺序重放
type Spill struct {
	db  *buntdb.DB
	seq uint64
}

func OpenSpill(path string) (*Spill, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spill %s: %w", path, err)
	}
	var cfg buntdb.Config
	if err := db.ReadConfig(&cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("read spill config: %w", err)
	}
	// a spilled batch only counts once it is on disk
	cfg.SyncPolicy = buntdb.Always
	if err := db.SetConfig(cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("set spill config: %w", err)
	}

	s := &Spill{db: db}
	// set-aside batches keep their number, so both prefixes bound the sequence
	err = db.View(func(tx *buntdb.Tx) error {
		for _, prefix := range []string{spillPrefix, deadPrefix} {
			err := tx.DescendKeys(prefix+"*", func(key, _ string) bool {
				if seq, err := strconv.ParseUint(strings.TrimPrefix(key, prefix), 10, 64); err == nil && seq > s.seq {
					s.seq = seq
				}
				return false
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("scan spill: %w", err)
	}
	return s, nil
}

func spillKey(seq uint64) string { return fmt.Sprintf("%s%020d", spillPrefix, seq) }

// Put stores one batch durably.
func (s *Spill) Put(batch model.Batch) error {
	b, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode spilled batch: %w", err)
	}
	s.seq++
	key := spillKey(s.seq)
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(b), nil)
		return err
	})
}

// Len returns the number of batches waiting for replay. Set-aside batches are not counted.
func (s *Spill) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(spillPrefix+"*", func(_, _ string) bool {
			n++
			return true
		})
	})
	return n, err
}

// Dead returns the number of batches set aside after a permanent failure.
func (s *Spill) Dead() (int, error) {
	var n int
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(deadPrefix+"*", func(_, _ string) bool {
			n++
			return true
		})
	})
	return n, err
}

// Replay hands spilled batches to commit oldest first and deletes each one
// that commit accepts. A transient failure stops the replay and keeps the
// rest for later. A batch that fails permanently, or cannot be decoded, is
// moved under the dead: prefix so it never blocks the batches behind it.
func (s *Spill) Replay(commit func(model.Batch) error) (replayed int, err error) {
	var keys []string
	err = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(spillPrefix+"*", func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
	})
	if err != nil {
		return 0, fmt.Errorf("list spill: %w", err)
	}

	for _, key := range keys {
		var raw string
		err := s.db.View(func(tx *buntdb.Tx) error {
			var err error
			raw, err = tx.Get(key)
			return err
		})
		if errors.Is(err, buntdb.ErrNotFound) {
			continue
		}
		if err != nil {
			return replayed, fmt.Errorf("read spill %s: %w", key, err)
		}
		var batch model.Batch
		if err := json.Unmarshal([]byte(raw), &batch); err != nil {
			if merr := s.setAside(key, raw); merr != nil {
				return replayed, merr
			}
			continue
		}
		if err := commit(batch); err != nil {
			if IsTransient(err) {
				return replayed, err
			}
			if merr := s.setAside(key, raw); merr != nil {
				return replayed, merr
			}
			continue
		}
		if err := s.db.Update(func(tx *buntdb.Tx) error {
			_, err := tx.Delete(key)
			return err
		}); err != nil {
			return replayed, fmt.Errorf("delete spill %s: %w", key, err)
		}
		replayed++
	}
	return replayed, nil
}

func (s *Spill) setAside(key, raw string) error {
	dead := deadPrefix + strings.TrimPrefix(key, spillPrefix)
	err := s.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(dead, raw, nil); err != nil {
			return err
		}
		_, err := tx.Delete(key)
		return err
	})
	if err != nil {
		return fmt.Errorf("set aside spill %s: %w", key, err)
	}
	return nil
}

func (s *Spill) Close() error { return s.db.Close() }
