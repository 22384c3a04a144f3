package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"macro-go-engine/internal/macro"
)

var (
	bucketMacros   = []byte("macros")
	bucketRuns     = []byte("runs")
	bucketSettings = []byte("settings")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketMacros, bucketRuns, bucketSettings} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) put(bucket []byte, key string, v any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucket)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) get(bucket []byte, key, what string, dst any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucket)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", what, key, ErrNotFound)
		}
		return json.Unmarshal(data, dst)
	})
}

func (s *BoltStore) SaveMacro(m *macro.Macro) error {
	if m.ID == "" {
		return fmt.Errorf("save macro: empty id")
	}
	return s.put(bucketMacros, m.ID, m)
}

func (s *BoltStore) GetMacro(id string) (*macro.Macro, error) {
	var m macro.Macro
	if err := s.get(bucketMacros, id, "macro", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *BoltStore) DeleteMacro(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMacros)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketMacros)
		}
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("macro %s: %w", id, ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) ListMacros() ([]*macro.Macro, error) {
	var macros []*macro.Macro
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMacros)
		if b == nil {
			return nil
		}
		macros = make([]*macro.Macro, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var m macro.Macro
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			macros = append(macros, &m)
			return nil
		})
	})
	return macros, err
}

func (s *BoltStore) IncrementRunCount(id string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMacros)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketMacros)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("macro %s: %w", id, ErrNotFound)
		}
		var m macro.Macro
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		m.RunCount++
		m.LastRun = at
		updated, err := json.Marshal(&m)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

func (s *BoltStore) SaveRun(run *Run) error {
	return s.put(bucketRuns, run.ID, run)
}

func (s *BoltStore) GetRun(id string) (*Run, error) {
	var r Run
	if err := s.get(bucketRuns, id, "run", &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) ListRuns(macroID string) ([]*Run, error) {
	var runs []*Run
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if macroID == "" || r.MacroID == macroID {
				runs = append(runs, &r)
			}
			return nil
		})
	})
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, err
}

func (s *BoltStore) SaveSetting(key string, value any) error {
	return s.put(bucketSettings, key, value)
}

func (s *BoltStore) GetSetting(key string, dst any) error {
	return s.get(bucketSettings, key, "setting", dst)
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
