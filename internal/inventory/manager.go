package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CounterOps interface {
	DecrementIfAvailable(ctx context.Context, productID string, qty int64) (bool, int64, error)
	Increment(ctx context.Context, productID string, qty int64) error
	CreditOnce(ctx context.Context, reservationID, productID string, qty int64) (bool, error)
}

type ReservationStore interface {
	Create(ctx context.Context, res Reservation) error
	Get(ctx context.Context, id string) (Reservation, error)
	GetByOrder(ctx context.Context, orderNo string) (Reservation, error)
	MarkRestored(ctx context.Context, id string) (bool, error)
}

// Manager coordinates the counter and the reservation ledger. Reserve is
// all-or-nothing; Restore is idempotent and retry-safe after a crash.
type Manager struct {
	Counter CounterOps
	Store   ReservationStore
	Log     *zap.Logger
}

func (m *Manager) Reserve(ctx context.Context, orderNo string, items []ReservedItem) (Reservation, error) {
	if len(items) == 0 {
		return Reservation{}, errors.New("reserve: no items")
	}

	// Idempotency short-circuit for retried checkouts.
	if existing, err := m.Store.GetByOrder(ctx, orderNo); err == nil {
		if existing.Status == ReservationActive {
			return existing, nil
		}
	} else if !errors.Is(err, ErrReservationNotFound) {
		return Reservation{}, err
	}

	taken := make([]ReservedItem, 0, len(items))
	for _, it := range items {
		ok, available, err := m.Counter.DecrementIfAvailable(ctx, it.ProductID, it.Qty)
		if err != nil {
			m.unwind(ctx, orderNo, taken)
			return Reservation{}, err
		}
		if !ok {
			m.unwind(ctx, orderNo, taken)
			return Reservation{}, &InsufficientStockError{
				ProductID: it.ProductID,
				Requested: it.Qty,
				Available: available,
			}
		}
		taken = append(taken, it)
	}

	res := Reservation{
		ID:        uuid.NewString(),
		OrderNo:   orderNo,
		Items:     items,
		Status:    ReservationActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.Store.Create(ctx, res); err != nil {
		m.unwind(ctx, orderNo, taken)
		return Reservation{}, fmt.Errorf("persist reservation: %w", err)
	}

	m.Log.Info("stock reserved",
		zap.String("order_no", orderNo),
		zap.String("reservation_id", res.ID),
		zap.Int("items", len(items)))
	return res, nil
}

// unwind re-credits every item already decremented, so a failed reservation
// leaves no partial hold behind.
func (m *Manager) unwind(ctx context.Context, orderNo string, taken []ReservedItem) {
	for _, it := range taken {
		if err := m.Counter.Increment(ctx, it.ProductID, it.Qty); err != nil {
			m.Log.Error("unwind partial reservation failed",
				zap.String("order_no", orderNo),
				zap.String("product_id", it.ProductID),
				zap.Int64("qty", it.Qty),
				zap.Error(err))
		}
	}
}

// Restore returns every reserved quantity to the counter and flips the
// reservation to RESTORED. Restoring twice is a no-op: per-item idempotency
// markers guarantee each item is credited at most once even when a crash
// interrupts a previous attempt.
func (m *Manager) Restore(ctx context.Context, reservationID string) error {
	res, err := m.Store.Get(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.Status == ReservationRestored {
		return nil
	}

	for _, it := range res.Items {
		credited, err := m.Counter.CreditOnce(ctx, res.ID, it.ProductID, it.Qty)
		if err != nil {
			return fmt.Errorf("restore reservation %s: %w", res.ID, err)
		}
		if !credited {
			m.Log.Debug("item already credited on earlier restore attempt",
				zap.String("reservation_id", res.ID),
				zap.String("product_id", it.ProductID))
		}
	}

	ok, err := m.Store.MarkRestored(ctx, reservationID)
	if err != nil {
		return err
	}
	if !ok {
		// Concurrent restore flipped it first; items are already safe.
		return nil
	}

	m.Log.Info("reservation restored",
		zap.String("order_no", res.OrderNo),
		zap.String("reservation_id", res.ID))
	return nil
}
