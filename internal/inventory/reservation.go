package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationRestored ReservationStatus = "RESTORED"
)

type ReservedItem struct {
	ProductID string `json:"product_id"`
	Qty       int64  `json:"qty"`
}

// Reservation is a hold against available stock, tied 1:1 to an order.
// Once RESTORED it is terminal; restoring again is a no-op.
type Reservation struct {
	ID         string
	OrderNo    string
	Items      []ReservedItem
	Status     ReservationStatus
	CreatedAt  time.Time
	RestoredAt *time.Time
}

var ErrReservationNotFound = errors.New("reservation not found")

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Create(ctx context.Context, res Reservation) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO reservations(id, order_no, status) VALUES ($1, $2, $3)`,
		res.ID, res.OrderNo, res.Status)
	if err != nil {
		return err
	}
	for _, it := range res.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO reservation_items(reservation_id, product_id, qty)
			VALUES ($1, $2, $3)`,
			res.ID, it.ProductID, it.Qty)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, id string) (Reservation, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, order_no, status, created_at, restored_at
		FROM reservations WHERE id=$1`, id)

	var res Reservation
	if err := row.Scan(&res.ID, &res.OrderNo, &res.Status, &res.CreatedAt, &res.RestoredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrReservationNotFound
		}
		return Reservation{}, err
	}
	if err := r.loadItems(ctx, &res); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

func (r *Repo) GetByOrder(ctx context.Context, orderNo string) (Reservation, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, order_no, status, created_at, restored_at
		FROM reservations WHERE order_no=$1`, orderNo)

	var res Reservation
	if err := row.Scan(&res.ID, &res.OrderNo, &res.Status, &res.CreatedAt, &res.RestoredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrReservationNotFound
		}
		return Reservation{}, err
	}
	if err := r.loadItems(ctx, &res); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

func (r *Repo) loadItems(ctx context.Context, res *Reservation) error {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, qty FROM reservation_items
		WHERE reservation_id=$1 ORDER BY product_id`, res.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it ReservedItem
		if err := rows.Scan(&it.ProductID, &it.Qty); err != nil {
			return err
		}
		res.Items = append(res.Items, it)
	}
	return rows.Err()
}

// MarkRestored flips ACTIVE -> RESTORED. Returns false when the reservation
// was already restored by a concurrent restore.
func (r *Repo) MarkRestored(ctx context.Context, id string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE reservations SET status=$2, restored_at=now()
		WHERE id=$1 AND status=$3`,
		id, ReservationRestored, ReservationActive)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// ListStuck returns reservations still ACTIVE on cancelled orders, for the
// reconciliation sweep.
func (r *Repo) ListStuck(ctx context.Context) ([]Reservation, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT r.id, r.order_no, r.status, r.created_at, r.restored_at
		FROM reservations r
		JOIN orders o ON o.order_no = r.order_no
		WHERE r.status=$1 AND o.status=$2
		ORDER BY r.created_at`, ReservationActive, "CANCELLED")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.OrderNo, &res.Status, &res.CreatedAt, &res.RestoredAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
