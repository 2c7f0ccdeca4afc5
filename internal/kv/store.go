// Package kv defines the key-value store contract the survey engine is
// written against: sets, hashes with integer fields, and sorted sets, with
// colon-joined namespaced keys.
package kv

import (
	"context"
	"strings"
)

// Store is the subset of Redis-style operations the engine relies on.
// Implementations must make each individual operation atomic; no
// multi-operation transaction scope is assumed.
type Store interface {
	// Sets.
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// Hashes. HGet reports ok=false when the field is absent.
	HSet(ctx context.Context, key, field, value string) error
	HSetMap(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (value string, ok bool, err error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HExists(ctx context.Context, key, field string) (bool, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	// Sorted sets. ZRange with rev=true returns members highest-score first.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRange(ctx context.Context, key string, start, stop int64, rev bool) ([]string, error)

	// Keyspace.
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Key joins namespace segments with colons, the layout downstream export
// tooling depends on.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
