package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
)

// Compile-time check to ensure PebbleRepository implements AuditRepository
var _ interfaces.AuditRepository = (*PebbleRepository)(nil)

// Keys are "audit/" + big-endian unix nanos + "/" + id, so lexical order is
// time order and a reverse scan yields newest first. The nanos are offset by
// MinInt64 so times before 1970 sort ahead of later ones.
var (
	keyPrefix = []byte("audit/")
	keyUpper  = []byte("audit0") // '0' sorts right after '/'
)

// PebbleRepository is a durable single-node audit store.
type PebbleRepository struct {
	db *pebble.DB
}

// NewPebbleRepository opens (or creates) a Pebble database in dir.
func NewPebbleRepository(dir string) (*PebbleRepository, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleRepository{db: db}, nil
}

func appendTime(key []byte, t time.Time) []byte {
	return binary.BigEndian.AppendUint64(key, uint64(t.UnixNano()-math.MinInt64))
}

func entryKey(e entities.AuditLogEntry) []byte {
	key := make([]byte, 0, len(keyPrefix)+8+1+len(e.ID))
	key = append(key, keyPrefix...)
	key = appendTime(key, e.Timestamp)
	key = append(key, '/')
	return append(key, e.ID...)
}

func (p *PebbleRepository) Append(ctx context.Context, entry entities.AuditLogEntry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	if err := p.db.Set(entryKey(entry), value, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

// Query scans newest first and filters in process. A non-positive limit returns
// every match.
func (p *PebbleRepository) Query(ctx context.Context, filter entities.AuditFilter) ([]entities.AuditLogEntry, int, error) {
	lower := keyPrefix
	upper := keyUpper
	if filter.StartDate != nil {
		lower = appendTime(append([]byte(nil), keyPrefix...), *filter.StartDate)
	}

	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, 0, fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()

	var (
		results []entities.AuditLogEntry
		total   int
	)
	for it.Last(); it.Valid(); it.Prev() {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		var e entities.AuditLogEntry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return nil, 0, fmt.Errorf("decode audit entry %q: %w", it.Key(), err)
		}
		if !filter.Matches(e) {
			continue
		}
		total++
		if total <= filter.Offset {
			continue
		}
		if filter.Limit > 0 && len(results) >= filter.Limit {
			continue
		}
		results = append(results, e)
	}
	if err := it.Error(); err != nil {
		return nil, 0, fmt.Errorf("pebble iterate: %w", err)
	}

	return results, total, nil
}

// Ping checks that the database is still open and readable.
func (p *PebbleRepository) Ping(ctx context.Context) error {
	_, closer, err := p.db.Get(keyPrefix)
	if err == nil {
		return closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return err
}

func (p *PebbleRepository) Close() error {
	return p.db.Close()
}
