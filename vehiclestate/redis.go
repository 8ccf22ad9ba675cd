package vehiclestate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func stateKey(vehicleID int64) string {
	return fmt.Sprintf("fieldcore:vehicle:%d:state", vehicleID)
}

const allVehiclesKey = "fieldcore:vehicles"

func (r *RedisStore) SetState(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, stateKey(st.VehicleID), data, 0)
	pipe.SAdd(ctx, allVehiclesKey, st.VehicleID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetState(ctx context.Context, vehicleID int64) (*State, error) {
	data, err := r.client.Get(ctx, stateKey(vehicleID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *RedisStore) VehicleIDs(ctx context.Context) ([]int64, error) {
	vals, err := r.client.SMembers(ctx, allVehiclesKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(vals))
	for _, v := range vals {
		var id int64
		if _, err := fmt.Sscanf(v, "%d", &id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *RedisStore) Delete(ctx context.Context, vehicleID int64) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, stateKey(vehicleID))
	pipe.SRem(ctx, allVehiclesKey, vehicleID)
	_, err := pipe.Exec(ctx)
	return err
}
