package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("checkpoints")

// BoltStore keeps the checkpoint in a local bbolt file, for single-node
// deployments that have no Redis.
type BoltStore struct {
	db   *bolt.DB
	name []byte
}

func NewBoltStore(config map[string]interface{}) (*BoltStore, error) {
	path, ok := config["path"].(string)
	if !ok || path == "" {
		return nil, errors.New("missing bolt path in config")
	}

	name, _ := config["name"].(string)
	if name == "" {
		name = "default"
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, &StoreError{Op: "init", Err: err}
	}

	return &BoltStore{db: db, name: []byte(name)}, nil
}

func (s *BoltStore) Load(ctx context.Context) (*Checkpoint, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(boltBucket).Get(s.name); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}
	if data == nil {
		return nil, ErrNotFound
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &StoreError{Op: "decode", Err: err}
	}
	return &cp, nil
}

func (s *BoltStore) Save(ctx context.Context, cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return &StoreError{Op: "encode", Err: err}
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(s.name, data)
	})
	if err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
