// Package cache stores serialised substitute lists behind a TTL cache with
// glob invalidation. The backend is chosen once at start-up.
package cache

import (
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
)

// Backend selects the cache implementation.
type Backend string

const (
	BackendInProcess Backend = "memory"
	BackendRedis     Backend = "redis"
)

// DefaultSweepInterval is how often the in-process backend drops expired entries.
const DefaultSweepInterval = time.Minute

// Options configures New.
type Options struct {
	Backend       Backend
	RedisURL      string
	KeyPrefix     string
	SweepInterval time.Duration
	Clock         clock.Clock
}

// New builds the configured backend.
func New(opts Options) (interfaces.Cache, error) {
	switch opts.Backend {
	case BackendInProcess, "":
		return NewInProcess(opts.Clock, opts.SweepInterval), nil
	case BackendRedis:
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return NewRedis(redis.NewClient(redisOpts), opts.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

const substitutePrefix = "substitutes:"

// SubstituteKey is the cache key of one substitute lookup. Every input that
// changes the result is part of the key.
func SubstituteKey(drugID, storeID string, includePartial bool) string {
	return substitutePrefix + drugID + ":" + storeID + ":" + strconv.FormatBool(includePartial)
}

// DrugPattern matches every cached lookup for a source drug.
func DrugPattern(drugID string) string {
	return substitutePrefix + drugID + ":*"
}

// StorePattern matches every cached lookup in a store.
func StorePattern(storeID string) string {
	return substitutePrefix + "*:" + storeID + ":*"
}

// AllSubstitutesPattern matches every cached lookup.
func AllSubstitutesPattern() string {
	return substitutePrefix + "*"
}

// MatchPattern reports whether key matches a glob in which '*' matches any
// substring and every other byte is literal.
func MatchPattern(pattern, key string) bool {
	p, k := 0, 0
	star, mark := -1, 0

	for k < len(key) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, k
			p++
		case p < len(pattern) && pattern[p] == key[k]:
			p++
			k++
		case star >= 0:
			mark++
			p, k = star+1, mark
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
