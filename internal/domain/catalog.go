package domain

import "time"

type RoomType struct {
	ID           string
	Name         string
	Code         string // stable slug used in provider mappings
	BasePrice    float64
	MaxOccupancy int // guests per room
	Units        int // inventory units owned by this type
	Active       bool
}

type RatePlan struct {
	ID                 string
	RoomTypeID         string
	Name               string
	Code               string
	PriceModifierPct   float64 // relative to RoomType.BasePrice
	MinStayNights      int
	CancellationPolicy string
	DepositPct         float64
	Active             bool
	DisplayOrder       int
}

// PricingRule adjusts the nightly price inside a date range. RoomTypeID is
// empty for global rules. Ranges are inclusive on both ends.
type PricingRule struct {
	ID            string
	RoomTypeID    string // empty = applies to all room types
	StartDate     time.Time
	EndDate       time.Time
	ModifierPct   float64
	MinStayNights int
	Priority      int
	Active        bool
	CreatedAt     time.Time
}

// Covers reports whether night n falls inside the rule's inclusive range.
func (r PricingRule) Covers(n time.Time) bool {
	return !n.Before(r.StartDate) && !n.After(r.EndDate)
}

// OccupancyPricing maps an occupancy percentage band [Min,Max] to a price
// modifier. Bands are validated min <= max at input time.
type OccupancyPricing struct {
	ID           string
	RoomTypeID   string
	MinOccupancy int
	MaxOccupancy int
	ModifierPct  float64
}

func (o OccupancyPricing) Matches(pct int) bool {
	return pct >= o.MinOccupancy && pct <= o.MaxOccupancy
}
