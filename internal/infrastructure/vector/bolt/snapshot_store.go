package bolt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
)

var bucketUserIndexes = []byte("user_indexes")

// SnapshotStore keeps one JSON-encoded passage list per user.
type SnapshotStore struct {
	db *bbolt.DB
}

func NewSnapshotStore(path string) (*SnapshotStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketUserIndexes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init snapshot bucket: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Save(userID string, passages []domain.EmbeddedPassage) error {
	data, err := json.Marshal(passages)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUserIndexes)
		if len(passages) == 0 {
			return b.Delete([]byte(userID))
		}
		return b.Put([]byte(userID), data)
	})
}

func (s *SnapshotStore) Load(userID string) ([]domain.EmbeddedPassage, error) {
	var passages []domain.EmbeddedPassage
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUserIndexes).Get([]byte(userID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &passages)
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", userID, err)
	}
	return passages, nil
}

func (s *SnapshotStore) Delete(userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUserIndexes).Delete([]byte(userID))
	})
}

func (s *SnapshotStore) Users() ([]string, error) {
	var users []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUserIndexes).ForEach(func(k, _ []byte) error {
			users = append(users, string(k))
			return nil
		})
	})
	return users, err
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
