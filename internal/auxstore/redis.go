package auxstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	appLog "classcal/internal/log"
	"classcal/internal/model"
)

// Redis keeps all records in one hash: field = session id, value = JSON
// record. HSET and HDEL are atomic per field, so concurrent writers to
// different sessions never lose each other's updates.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

func (r *Redis) All(ctx context.Context) (map[string]model.AuxRecord, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, wrap("aux all", err)
	}
	out := make(map[string]model.AuxRecord, len(raw))
	for id, v := range raw {
		var rec model.AuxRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			appLog.Error("aux store: skip undecodable record", err, "id", id)
			continue
		}
		out[id] = rec
	}
	return out, nil
}

func (r *Redis) Get(ctx context.Context, id string) (model.AuxRecord, bool, error) {
	v, err := r.client.HGet(ctx, r.key, id).Result()
	if errors.Is(err, redis.Nil) {
		return model.AuxRecord{}, false, nil
	}
	if err != nil {
		return model.AuxRecord{}, false, wrap("aux get", err)
	}
	var rec model.AuxRecord
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		return model.AuxRecord{}, false, wrap("aux get", err)
	}
	return rec, true, nil
}

func (r *Redis) Put(ctx context.Context, id string, rec model.AuxRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return wrap("aux put", err)
	}
	return wrap("aux put", r.client.HSet(ctx, r.key, id, raw).Err())
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	return wrap("aux delete", r.client.HDel(ctx, r.key, id).Err())
}
