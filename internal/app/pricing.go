package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"roomsync/internal/domain"
)

// PricingConfig is the two-bracket, tax-inclusive tax model. Quotes at or
// above Threshold use HighPct; below it LowPct. Percentages, e.g. 18 for 18%.
type PricingConfig struct {
	TaxThreshold float64
	TaxHighPct   float64
	TaxLowPct    float64
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{TaxThreshold: 7500, TaxHighPct: 18, TaxLowPct: 12}
}

type NightPrice struct {
	Night       time.Time `json:"night"`
	Amount      float64   `json:"amount"`
	RuleID      string    `json:"rule_id,omitempty"`
	ModifierPct float64   `json:"modifier_pct"`
}

// PriceQuote is tax-inclusive: TotalAmount is the quoted gross,
// BaseAmount the taxable part and TaxAmount the extracted tax, with
// BaseAmount + TaxAmount == TotalAmount to the minor unit.
type PriceQuote struct {
	BaseAmount           float64      `json:"base_amount"`
	TaxAmount            float64      `json:"tax_amount"`
	TotalAmount          float64      `json:"total_amount"`
	TaxRatePct           float64      `json:"tax_rate_pct"`
	Nights               []NightPrice `json:"nights"`
	OccupancyModifierPct float64      `json:"occupancy_modifier_pct"`
}

type PricingEngine struct {
	catalog domain.Catalog
	cfg     PricingConfig
}

func NewPricingEngine(c domain.Catalog, cfg PricingConfig) *PricingEngine {
	if cfg.TaxThreshold == 0 && cfg.TaxHighPct == 0 && cfg.TaxLowPct == 0 {
		cfg = DefaultPricingConfig()
	}
	return &PricingEngine{catalog: c, cfg: cfg}
}

// Quote computes the effective price for a stay. Rules are applied per night,
// not as a whole-stay multiplier, because a rule may cover only part of the
// range. guests drives the occupancy band selection.
func (e *PricingEngine) Quote(ctx context.Context, roomTypeID, ratePlanID string, checkIn, checkOut time.Time, guests, rooms int) (PriceQuote, error) {
	if !checkIn.Before(checkOut) {
		return PriceQuote{}, fmt.Errorf("%w: check-in must precede check-out", domain.ErrValidation)
	}
	if rooms < 1 || guests < 1 {
		return PriceQuote{}, fmt.Errorf("%w: rooms and guests must be positive", domain.ErrValidation)
	}

	rt, err := e.catalog.GetRoomType(ctx, roomTypeID)
	if err != nil {
		return PriceQuote{}, err
	}
	rp, err := e.catalog.GetRatePlan(ctx, ratePlanID)
	if err != nil {
		return PriceQuote{}, err
	}
	if !rt.Active || !rp.Active {
		return PriceQuote{}, fmt.Errorf("%w: room type or rate plan inactive", domain.ErrValidation)
	}
	if rp.RoomTypeID != rt.ID {
		return PriceQuote{}, fmt.Errorf("%w: rate plan %s does not belong to room type %s", domain.ErrValidation, rp.ID, rt.ID)
	}

	rules, err := e.catalog.PricingRules(ctx, rt.ID)
	if err != nil {
		return PriceQuote{}, err
	}

	nights := int(checkOut.Sub(checkIn).Hours() / 24)
	minStay := rp.MinStayNights

	planNightly := rt.BasePrice * (1 + rp.PriceModifierPct/100)

	var sum float64
	nightPrices := make([]NightPrice, 0, nights)
	for n := checkIn; n.Before(checkOut); n = n.AddDate(0, 0, 1) {
		np := NightPrice{Night: n, Amount: planNightly}
		if r := winningRule(rules, n); r != nil {
			np.RuleID = r.ID
			np.ModifierPct = r.ModifierPct
			np.Amount = planNightly * (1 + r.ModifierPct/100)
			if r.MinStayNights > minStay {
				minStay = r.MinStayNights
			}
		}
		np.Amount = round2(np.Amount)
		nightPrices = append(nightPrices, np)
		sum += np.Amount
	}

	if nights < minStay {
		return PriceQuote{}, fmt.Errorf("%w: stay of %d nights is below the %d-night minimum", domain.ErrValidation, nights, minStay)
	}

	gross := sum * float64(rooms)

	q := PriceQuote{Nights: nightPrices}
	if pct := occupancyPct(guests, rooms, rt.MaxOccupancy); pct > 0 {
		bands, err := e.catalog.OccupancyBands(ctx, rt.ID)
		if err != nil {
			return PriceQuote{}, err
		}
		for _, b := range bands {
			if b.Matches(pct) {
				q.OccupancyModifierPct = b.ModifierPct
				gross *= 1 + b.ModifierPct/100
				break
			}
		}
	}

	gross = round2(gross)

	// Boundary is inclusive: a quote exactly at the threshold is taxed high.
	rate := e.cfg.TaxLowPct
	if gross >= e.cfg.TaxThreshold {
		rate = e.cfg.TaxHighPct
	}

	// Quoted amount is tax-inclusive; solve for the taxable part and take the
	// tax as the exact remainder so the rounded parts always sum back to gross.
	taxable := round2(gross / (1 + rate/100))
	q.BaseAmount = taxable
	q.TaxAmount = round2(gross - taxable)
	q.TotalAmount = gross
	q.TaxRatePct = rate
	return q, nil
}

// winningRule picks the rule applying to night n. Resolution is deterministic:
// highest priority wins; at equal priority a room-type-scoped rule beats a
// global one; then the most recently created; rule ID is the final tiebreak.
func winningRule(rules []domain.PricingRule, n time.Time) *domain.PricingRule {
	var best *domain.PricingRule
	for i := range rules {
		r := &rules[i]
		if !r.Active || !r.Covers(n) {
			continue
		}
		if best == nil || ruleBeats(r, best) {
			best = r
		}
	}
	return best
}

func ruleBeats(a, b *domain.PricingRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	aScoped, bScoped := a.RoomTypeID != "", b.RoomTypeID != ""
	if aScoped != bScoped {
		return aScoped
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// occupancyPct expresses requested guests as a percentage of the total
// capacity across the requested rooms.
func occupancyPct(guests, rooms, maxOccupancy int) int {
	if maxOccupancy <= 0 || rooms <= 0 {
		return 0
	}
	return int(math.Round(float64(guests) * 100 / float64(maxOccupancy*rooms)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
