package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "loghook:checkpoint:"

// RedisStore keeps the checkpoint in a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(config map[string]interface{}) (*RedisStore, error) {
	address, ok := config["redis_address"].(string)
	if !ok {
		return nil, errors.New("missing redis_address in config")
	}

	password, _ := config["redis_password"].(string)
	dbNum, _ := config["redis_db"].(int)
	name, _ := config["name"].(string)
	if name == "" {
		name = "default"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       dbNum,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, &StoreError{Op: "connect", Err: err}
	}

	return &RedisStore{
		client: client,
		key:    defaultKeyPrefix + name,
	}, nil
}

func (s *RedisStore) Load(ctx context.Context) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &StoreError{Op: "decode", Err: err}
	}
	return &cp, nil
}

func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return &StoreError{Op: "encode", Err: err}
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
