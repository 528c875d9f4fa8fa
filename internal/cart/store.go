package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates the requested cart does not exist or has expired.
var ErrNotFound = errors.New("cart not found")

// Store persists carts as JSON documents in Redis, one per session, with a
// sliding TTL. No other component reads or writes cart keys directly.
type Store struct {
	R      *redis.Client
	Prefix string
	TTL    time.Duration
}

func (s *Store) key(id uuid.UUID) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "cart:"
	}
	return prefix + id.String()
}

func (s *Store) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 24 * time.Hour
	}
	return s.TTL
}

// Get loads a cart by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Cart, error) {
	if s == nil || s.R == nil {
		return Cart{}, errors.New("cart store not configured")
	}
	data, err := s.R.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("load cart %s: %w", id, err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("decode cart %s: %w", id, err)
	}
	return c, nil
}

// Save writes the cart back and refreshes its TTL.
func (s *Store) Save(ctx context.Context, c Cart) error {
	if s == nil || s.R == nil {
		return errors.New("cart store not configured")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", c.ID, err)
	}
	if err := s.R.Set(ctx, s.key(c.ID), data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("save cart %s: %w", c.ID, err)
	}
	return nil
}

// Delete removes the cart, typically after a successful checkout.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.R == nil {
		return errors.New("cart store not configured")
	}
	return s.R.Del(ctx, s.key(id)).Err()
}
