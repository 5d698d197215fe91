package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis keeps each document as one JSON value under a prefixed key.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, addr, password string, db int, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) key(name string) string {
	return r.prefix + name
}

func (r *Redis) load(ctx context.Context, name string, v any) error {
	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", r.key(name), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, r.key(name), err)
	}
	return nil
}

func (r *Redis) save(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := r.client.Set(ctx, r.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", r.key(name), err)
	}
	return nil
}

func (r *Redis) LoadTracking(ctx context.Context) (*TrackingDocument, error) {
	doc := NewTrackingDocument()
	if err := r.load(ctx, "tracking", doc); err != nil {
		return NewTrackingDocument(), err
	}
	doc.normalize()
	return doc, nil
}

func (r *Redis) SaveTracking(ctx context.Context, doc *TrackingDocument) error {
	return r.save(ctx, "tracking", doc)
}

func (r *Redis) LoadMint(ctx context.Context) (*MintDocument, error) {
	doc := NewMintDocument()
	if err := r.load(ctx, "mint", doc); err != nil {
		return NewMintDocument(), err
	}
	doc.normalize()
	return doc, nil
}

func (r *Redis) SaveMint(ctx context.Context, doc *MintDocument) error {
	return r.save(ctx, "mint", doc)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
