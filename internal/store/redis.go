package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

type (
	// RedisStore keeps workflows, run records, and sealed credentials in
	// Redis under a common key prefix
	RedisStore struct {
		client *redis.Client
		prefix string
	}

	// RedisConfig locates the Redis instance
	RedisConfig struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}

	getter interface {
		Get(ctx context.Context, key string) *redis.StringCmd
	}
)

const (
	keyWorkflow   = "workflow:"
	keyWorkflows  = "workflows"
	keyRun        = "run:"
	keyRunsByFlow = "runs:"
	keyRunsAll    = "runs"
	keyCredential = "credential:"
)

var (
	_ WorkflowSource = (*RedisStore)(nil)
	_ WorkflowWriter = (*RedisStore)(nil)
	_ RunStore       = (*RedisStore)(nil)
	_ SecretSource   = (*RedisStore)(nil)
)

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{
		client: client,
		prefix: cfg.Prefix + ":",
	}, nil
}

func (s *RedisStore) GetWorkflow(
	ctx context.Context, id api.WorkflowID,
) (*api.WorkflowDefinition, error) {
	data, err := s.client.Get(ctx, s.key(keyWorkflow, string(id))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decode[api.WorkflowDefinition](data)
}

func (s *RedisStore) ListWorkflows(
	ctx context.Context,
) ([]api.WorkflowID, error) {
	ids, err := s.client.SMembers(ctx, s.key(keyWorkflows)).Result()
	if err != nil {
		return nil, err
	}
	res := make([]api.WorkflowID, len(ids))
	for i, id := range ids {
		res[i] = api.WorkflowID(id)
	}
	slices.Sort(res)
	return res, nil
}

func (s *RedisStore) PutWorkflow(
	ctx context.Context, def *api.WorkflowDefinition,
) error {
	if err := validateWorkflow(def); err != nil {
		return err
	}
	data, err := encode(def)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(keyWorkflow, string(def.ID)), data, 0)
		pipe.SAdd(ctx, s.key(keyWorkflows), string(def.ID))
		return nil
	})
	return err
}

func (s *RedisStore) CreateRun(ctx context.Context, rec *api.RunRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.key(keyRun, string(rec.RunID)), data, 0).
		Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunExists, rec.RunID)
	}

	member := redis.Z{
		Score:  float64(rec.StartedAt.UnixMilli()),
		Member: string(rec.RunID),
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.key(keyRunsByFlow, string(rec.WorkflowID)), member)
		pipe.ZAdd(ctx, s.key(keyRunsAll), member)
		return nil
	})
	return err
}

func (s *RedisStore) FinishRun(
	ctx context.Context, id api.RunID, res *api.RunResult,
) error {
	key := s.key(keyRun, string(id))
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := s.getRun(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := finishRecord(rec, res); err != nil {
			return err
		}
		data, err := encode(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) GetRun(
	ctx context.Context, id api.RunID,
) (*api.RunRecord, error) {
	return s.getRun(ctx, s.client, id)
}

func (s *RedisStore) ListRuns(
	ctx context.Context, id api.WorkflowID,
) ([]*api.RunRecord, error) {
	index := s.key(keyRunsAll)
	if id != "" {
		index = s.key(keyRunsByFlow, string(id))
	}

	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*api.RunRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, runID := range ids {
		keys[i] = s.key(keyRun, runID)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	res := make([]*api.RunRecord, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decode[api.RunRecord]([]byte(str))
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}

// GetSecret returns the sealed credential blob stored under ref
func (s *RedisStore) GetSecret(
	ctx context.Context, ref string,
) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(keyCredential, ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, ref)
	}
	return data, err
}

// PutSecret stores a sealed credential blob under ref
func (s *RedisStore) PutSecret(
	ctx context.Context, ref string, sealed []byte,
) error {
	return s.client.Set(ctx, s.key(keyCredential, ref), sealed, 0).Err()
}

// Ping checks that Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) getRun(
	ctx context.Context, c getter, id api.RunID,
) (*api.RunRecord, error) {
	data, err := c.Get(ctx, s.key(keyRun, string(id))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decode[api.RunRecord](data)
}

func (s *RedisStore) key(parts ...string) string {
	res := s.prefix
	for _, p := range parts {
		res += p
	}
	return res
}
