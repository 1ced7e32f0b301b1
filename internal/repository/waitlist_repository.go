package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

const waitlistColumns = `id, holder_id, pool_id, quantity, status, allocation_type, allocated_quantity,
	booking_id, joined_at, notified_at, notification_expires_at`

// WaitlistRepo provides data access to the waitlist_entries table.
type WaitlistRepo struct{}

// CreateTx inserts a new entry and sets its id.
func (WaitlistRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, e *model.WaitlistEntry) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO waitlist_entries (holder_id, pool_id, quantity, status, allocation_type, allocated_quantity, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.HolderID, e.PoolID, e.Quantity, e.Status, e.AllocationType, e.AllocatedQuantity, e.JoinedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// GetTx loads an entry.
func (WaitlistRepo) GetTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	err := tx.GetContext(ctx, &e, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = ?`, id)
	return e, notFound(err, "waitlist entry", id)
}

// LockTx loads an entry and locks its row.
func (WaitlistRepo) LockTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	err := tx.GetContext(ctx, &e, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = ? FOR UPDATE`, id)
	return e, notFound(err, "waitlist entry", id)
}

// UpdateTx writes the mutable columns of an entry.
func (WaitlistRepo) UpdateTx(ctx context.Context, tx *sqlx.Tx, e model.WaitlistEntry) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = ?, allocation_type = ?, allocated_quantity = ?,
		   booking_id = ?, notified_at = ?, notification_expires_at = ?
		 WHERE id = ?`,
		e.Status, e.AllocationType, e.AllocatedQuantity, e.BookingID, e.NotifiedAt, e.NotificationExpiresAt, e.ID)
	return err
}

// WaitingTx returns a pool's waiting entries in join order, locking them so
// that two promotion passes over the same pool serialize.
func (WaitlistRepo) WaitingTx(ctx context.Context, tx *sqlx.Tx, poolID uint64) ([]model.WaitlistEntry, error) {
	var entries []model.WaitlistEntry
	err := tx.SelectContext(ctx, &entries,
		`SELECT `+waitlistColumns+` FROM waitlist_entries
		 WHERE pool_id = ? AND status = 'waiting' ORDER BY joined_at, id FOR UPDATE`, poolID)
	return entries, err
}

// OpenTx returns the holder's waiting or notified entry for a pool.
func (WaitlistRepo) OpenTx(ctx context.Context, tx *sqlx.Tx, poolID, holderID uint64) (model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	err := tx.GetContext(ctx, &e,
		`SELECT `+waitlistColumns+` FROM waitlist_entries
		 WHERE pool_id = ? AND holder_id = ? AND status IN ('waiting', 'notified')
		 ORDER BY id LIMIT 1`, poolID, holderID)
	if err != nil {
		return e, notFound(err, fmt.Sprintf("open waitlist entry in pool %d for holder", poolID), holderID)
	}
	return e, nil
}

// OutstandingTx sums units offered to notified entries whose window is open.
func (WaitlistRepo) OutstandingTx(ctx context.Context, tx *sqlx.Tx, poolID uint64, now time.Time) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n,
		`SELECT COALESCE(SUM(allocated_quantity), 0) FROM waitlist_entries
		 WHERE pool_id = ? AND status = 'notified' AND notification_expires_at > ?`, poolID, now)
	return n, err
}

// PositionTx returns the 1-based rank of a waiting entry, or 0.
func (WaitlistRepo) PositionTx(ctx context.Context, tx *sqlx.Tx, e model.WaitlistEntry) (int, error) {
	if e.Status != model.WaitlistWaiting {
		return 0, nil
	}
	var ahead int
	err := tx.GetContext(ctx, &ahead,
		`SELECT COUNT(*) FROM waitlist_entries
		 WHERE pool_id = ? AND status = 'waiting' AND (joined_at < ? OR (joined_at = ? AND id < ?))`,
		e.PoolID, e.JoinedAt.UTC(), e.JoinedAt.UTC(), e.ID)
	return ahead + 1, err
}

// LapsedNotificationsTx lists notified entries whose window has closed.
func (WaitlistRepo) LapsedNotificationsTx(ctx context.Context, tx *sqlx.Tx, now time.Time, limit int) ([]model.WaitlistEntry, error) {
	var entries []model.WaitlistEntry
	err := tx.SelectContext(ctx, &entries,
		`SELECT `+waitlistColumns+` FROM waitlist_entries
		 WHERE status = 'notified' AND notification_expires_at <= ? ORDER BY id LIMIT ?`, now, limit)
	return entries, err
}

// PoolsWithWaitingTx lists pools that have at least one waiting entry.
func (WaitlistRepo) PoolsWithWaitingTx(ctx context.Context, tx *sqlx.Tx) ([]uint64, error) {
	var ids []uint64
	err := tx.SelectContext(ctx, &ids,
		`SELECT DISTINCT pool_id FROM waitlist_entries WHERE status = 'waiting' ORDER BY pool_id`)
	return ids, err
}
