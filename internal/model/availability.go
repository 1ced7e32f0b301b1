package model

import "time"

// Tier is the coarse availability band shown to buyers.
type Tier uint8

const (
	TierAvailable Tier = iota + 1
	TierLimited
	TierVeryLimited
	TierSoldOut
)

var tierNames = map[Tier]string{
	TierAvailable:   "available",
	TierLimited:     "limited",
	TierVeryLimited: "very_limited",
	TierSoldOut:     "sold_out",
}

func (t Tier) String() string {
	if n, ok := tierNames[t]; ok {
		return n
	}
	return "unknown"
}

func (t Tier) MarshalText() ([]byte, error) { return marshalEnum(t, tierNames) }
func (t *Tier) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, t, tierNames, "availability tier")
}

// Thresholds below which a pool is reported as limited or very limited.
const (
	LimitedThreshold     = 10
	VeryLimitedThreshold = 5
)

// TierFor maps remaining units to a tier.
func TierFor(available int) Tier {
	switch {
	case available <= 0:
		return TierSoldOut
	case available < VeryLimitedThreshold:
		return TierVeryLimited
	case available < LimitedThreshold:
		return TierLimited
	default:
		return TierAvailable
	}
}

// Source names the counting strategy used for a pool.
type Source string

const (
	SourceSeats     Source = "seats"
	SourceAggregate Source = "aggregate"
)

// Availability is a point-in-time snapshot of a pool's capacity.
type Availability struct {
	PoolID         uint64    `json:"pool_id"`
	Source         Source    `json:"source"`
	Capacity       int       `json:"capacity"`
	Booked         int       `json:"booked"`
	Paid           int       `json:"paid"`
	Held           int       `json:"held"`
	Available      int       `json:"available"`
	Status         Tier      `json:"status"`
	PercentageSold int       `json:"percentage_sold"`
	ComputedAt     time.Time `json:"computed_at"`
}
