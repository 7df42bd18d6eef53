package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Tracker shared between processes. Entries expire after ttl of
// inactivity so abandoned flows do not accumulate.
type Redis struct {
	client   *redis.Client
	keyspace string
	ttl      time.Duration
}

var _ Tracker = (*Redis)(nil)

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func NewRedis(client *redis.Client, keyspace string, ttl time.Duration) *Redis {
	return &Redis{client: client, keyspace: keyspace, ttl: ttl}
}

func NewRedisTrackers(client *redis.Client, ttl time.Duration) Trackers {
	return Trackers{
		Requester: NewRedis(client, "requester", ttl),
		Admin:     NewRedis(client, "admin", ttl),
		Student:   NewRedis(client, "student", ttl),
	}
}

func (r *Redis) key(actorID int64) string {
	return fmt.Sprintf("helpdesk:convo:%s:%d", r.keyspace, actorID)
}

func (r *Redis) Begin(ctx context.Context, actorID int64, flow Flow, payload Payload) error {
	data, err := json.Marshal(State{Flow: flow, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := r.client.Set(ctx, r.key(actorID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (r *Redis) Current(ctx context.Context, actorID int64) (State, bool, error) {
	return r.get(ctx, r.client, r.key(actorID))
}

func (r *Redis) get(ctx context.Context, c getter, key string) (State, bool, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("load state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, false, fmt.Errorf("decode state: %w", err)
	}
	return st, true, nil
}

// Advance runs as an optimistic WATCH transaction on the actor's key.
func (r *Redis) Advance(ctx context.Context, actorID int64, expected, next Flow, patch func(*Payload)) (State, error) {
	key := r.key(actorID)
	var result State
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		st, ok, err := r.get(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := mismatch(expected, st, ok); err != nil {
			return err
		}
		st.Flow = next
		if patch != nil {
			patch(&st.Payload)
		}
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = st
		return nil
	}, key)
	if err != nil {
		return State{}, err
	}
	return result, nil
}

func (r *Redis) End(ctx context.Context, actorID int64) error {
	if err := r.client.Del(ctx, r.key(actorID)).Err(); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
