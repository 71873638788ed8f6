package inventory

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ecomcore/orderflow/internal/redisx"
)

// Decrement only when enough stock is available; floor at zero.
// Returns {1, remaining} on success, {0, available} on shortfall.
var decrementScript = redis.NewScript(`
local avail = tonumber(redis.call('GET', KEYS[1]) or '0')
local want = tonumber(ARGV[1])
if avail < want then
  return {0, avail}
end
local left = redis.call('DECRBY', KEYS[1], want)
return {1, left}
`)

// Credit stock back exactly once per marker key. The SETNX marker and the
// INCRBY run in one script, so a retried restore after a crash can never
// double-credit an item.
var creditOnceScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], '1') == 0 then
  return 0
end
redis.call('EXPIRE', KEYS[1], ARGV[2])
redis.call('INCRBY', KEYS[2], ARGV[1])
return 1
`)

// Counter is the per-product available-quantity counter. All mutations are
// single-key atomic on the Redis side; no application-level locking.
type Counter struct{ Redis *redis.Client }

func stockKey(productID string) string {
	return fmt.Sprintf(redisx.KeyStock, productID)
}

func (c *Counter) Available(ctx context.Context, productID string) (int64, error) {
	n, err := c.Redis.Get(ctx, stockKey(productID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Set seeds the counter; used by product sync and tests.
func (c *Counter) Set(ctx context.Context, productID string, qty int64) error {
	return c.Redis.Set(ctx, stockKey(productID), qty, 0).Err()
}

// DecrementIfAvailable atomically takes qty units, or takes nothing and
// reports the quantity that was available.
func (c *Counter) DecrementIfAvailable(ctx context.Context, productID string, qty int64) (ok bool, available int64, err error) {
	res, err := decrementScript.Run(ctx, c.Redis, []string{stockKey(productID)}, qty).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("decrement stock %s: %w", productID, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("decrement stock %s: unexpected reply %v", productID, res)
	}
	return res[0] == 1, res[1], nil
}

// Increment credits qty back unconditionally. Used to unwind partial
// reservations within the same request.
func (c *Counter) Increment(ctx context.Context, productID string, qty int64) error {
	return c.Redis.IncrBy(ctx, stockKey(productID), qty).Err()
}

// CreditOnce credits qty back at most once for the given reservation, keyed
// by a per-item idempotency marker.
func (c *Counter) CreditOnce(ctx context.Context, reservationID, productID string, qty int64) (bool, error) {
	marker := fmt.Sprintf(redisx.KeyRestoreMarker, reservationID, productID)
	n, err := creditOnceScript.Run(ctx, c.Redis,
		[]string{marker, stockKey(productID)},
		qty, int(redisx.TTLRestoreMarker.Seconds()),
	).Int()
	if err != nil {
		return false, fmt.Errorf("credit stock %s: %w", productID, err)
	}
	return n == 1, nil
}
