package draft

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Writes retry the optimistic loop a bounded number of times before
// reporting contention to the caller.
const maxWriteRetries = 16

// payload is the stored draft state. Items keep insertion order.
type payload struct {
	Version int64  `json:"version"`
	Items   []Item `json:"items"`
}

// Store keeps draft sessions in Redis. Each session lives under one key, so
// a WATCH on that key serializes writes per session while sessions remain
// independent of each other.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Get returns the current draft view. A session with no stored draft yields
// an empty view, not an error.
func (s *Store) Get(ctx context.Context, sessionID string) (View, error) {
	if sessionID == "" {
		return View{}, ErrValidation
	}
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return materialize(sessionID, payload{}), nil
		}
		return View{}, err
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return View{}, err
	}
	return materialize(sessionID, p), nil
}

// Upsert applies one versioned line mutation and returns the authoritative
// view. A mutation whose Seq is not newer than the stored version is dropped
// without error and the unchanged view returned.
func (s *Store) Upsert(ctx context.Context, sessionID string, m Mutation) (View, error) {
	if sessionID == "" || m.ProductID == 0 {
		return View{}, ErrValidation
	}
	if m.Quantity < 0 {
		return View{}, ErrValidation
	}

	key := s.key(sessionID)
	var view View

	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := s.load(ctx, tx, key)
			if err != nil {
				return err
			}

			next, err := apply(current, m)
			if errors.Is(err, ErrStaleWrite) {
				// Reconciliation contract: old writes lose silently.
				view = materialize(sessionID, current)
				return nil
			}
			if err != nil {
				return err
			}

			data, err := json.Marshal(next)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			view = materialize(sessionID, next)
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return View{}, err
		}
		return view, nil
	}
	return View{}, ErrConcurrentUpdate
}

// Clear removes the draft entirely. Clearing a missing session is a no-op.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrValidation
	}
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *Store) load(ctx context.Context, tx *redis.Tx, key string) (payload, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return payload{}, nil
		}
		return payload{}, err
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return payload{}, err
	}
	return p, nil
}

func (s *Store) key(sessionID string) string {
	return "draft:" + sessionID
}

// apply merges one mutation into the stored payload. Quantity zero removes
// the line; any other quantity replaces it wholesale while preserving the
// original insertion position.
func apply(current payload, m Mutation) (payload, error) {
	if m.Seq != 0 && m.Seq <= current.Version {
		return payload{}, ErrStaleWrite
	}

	next := payload{Items: append([]Item{}, current.Items...)}
	if m.Seq != 0 {
		next.Version = m.Seq
	} else {
		next.Version = current.Version + 1
	}

	line := Item{
		ProductID:   m.ProductID,
		BatchID:     m.BatchID,
		ProductName: m.ProductName,
		Quantity:    m.Quantity,
		UnitPrice:   m.UnitPrice,
		SupplierID:  m.SupplierID,
		Highlight:   m.Highlight,
	}

	pos := -1
	for i := range next.Items {
		if next.Items[i].sameKey(line) {
			pos = i
			break
		}
	}

	switch {
	case m.Quantity == 0 && pos >= 0:
		next.Items = append(next.Items[:pos], next.Items[pos+1:]...)
	case m.Quantity == 0:
		// Removing a line that never existed still bumps the version.
	case pos >= 0:
		next.Items[pos] = line
	default:
		next.Items = append(next.Items, line)
	}
	return next, nil
}
