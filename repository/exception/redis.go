package exception

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/Nystya/txgroup/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "txgroup:exception:"

// RedisStore keeps one hash per group holding the first recorded state and a
// list of JSON encoded records.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func stateKey(groupID string) string {
	return redisKeyPrefix + groupID
}

func recordsKey(groupID string) string {
	return redisKeyPrefix + groupID + ":records"
}

func (r *RedisStore) Record(ctx context.Context, record *domain.ExceptionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return domain.SerializationError{Err: err}
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if record.State.Terminal() {
			pipe.HSetNX(ctx, stateKey(record.GroupID), "state", int(record.State))
		}

		pipe.RPush(ctx, recordsKey(record.GroupID), data)

		return nil
	})

	return err
}

func (r *RedisStore) TransactionState(ctx context.Context, groupID string) (domain.State, error) {
	value, err := r.client.HGet(ctx, stateKey(groupID), "state").Result()
	if errors.Is(err, redis.Nil) {
		return domain.StateUnknown, nil
	}

	if err != nil {
		return domain.StateUnknown, err
	}

	state, err := strconv.Atoi(value)
	if err != nil {
		return domain.StateUnknown, domain.SerializationError{Err: err}
	}

	return domain.State(state), nil
}

func (r *RedisStore) Exceptions(ctx context.Context, groupID string) ([]*domain.ExceptionRecord, error) {
	values, err := r.client.LRange(ctx, recordsKey(groupID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*domain.ExceptionRecord, 0, len(values))
	for _, value := range values {
		record := &domain.ExceptionRecord{}
		if err := json.Unmarshal([]byte(value), record); err != nil {
			return nil, domain.SerializationError{Err: err}
		}

		records = append(records, record)
	}

	return records, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
