package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool is a sellable resource pool: an event's seats or its general
// admission capacity. The engine only reads pools; they are created by the
// administrative side of the platform.
//
// Fields:
//
//	ID        – primary key identifier.
//	Name      – display name.
//	Capacity  – immutable ceiling on sellable units.
//	Price     – unit price used to compute a booking's total.
//	Published – whether the pool is open for sale.
//	CreatedAt – creation timestamp.
type Pool struct {
	ID        uint64          `db:"id" json:"id"`               // pools.id
	Name      string          `db:"name" json:"name"`           // pools.name
	Capacity  int             `db:"capacity" json:"capacity"`   // pools.capacity
	Price     decimal.Decimal `db:"price" json:"price"`         // pools.price
	Published bool            `db:"published" json:"published"` // pools.published
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// PriceFor returns the total price of quantity units.
func (p Pool) PriceFor(quantity int) decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(quantity)))
}
