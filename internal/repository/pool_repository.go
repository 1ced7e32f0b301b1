package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

const poolColumns = `id, name, capacity, price, published, created_at`

// PoolRepo reads the pools table. Pools are maintained by the
// administrative side of the platform; the engine never writes them.
type PoolRepo struct{}

// GetTx loads a pool by id.
func (PoolRepo) GetTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.Pool, error) {
	var p model.Pool
	err := tx.GetContext(ctx, &p, `SELECT `+poolColumns+` FROM pools WHERE id = ?`, id)
	return p, notFound(err, "pool", id)
}

// LockTx loads a pool and locks its row. Aggregate-capacity bookings lock
// the pool so that concurrent capacity checks serialize.
func (PoolRepo) LockTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.Pool, error) {
	var p model.Pool
	err := tx.GetContext(ctx, &p, `SELECT `+poolColumns+` FROM pools WHERE id = ? FOR UPDATE`, id)
	return p, notFound(err, "pool", id)
}
