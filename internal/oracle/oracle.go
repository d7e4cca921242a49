// Package oracle scores completed harvest queries: loss-risk tier, price
// forecast and matching buyers. The scoring is a fixed heuristic; it carries
// no statistical meaning and is kept deterministic so replies are testable.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"harvestlink/internal/domain"
)

// Oracle is injected into the session driver and the HTTP handlers.
type Oracle interface {
	Assess(ctx context.Context, q domain.HarvestQuery) (domain.Assessment, error)
	ForecastPrice(ctx context.Context, crop string) (domain.PriceForecast, error)
	FindBuyers(ctx context.Context, crop string) ([]domain.Buyer, error)
}

// BuyerSource is satisfied by repo.Repo.
type BuyerSource interface {
	BuyersForCrop(ctx context.Context, crop string) ([]domain.Buyer, error)
}

// PriceSource reports the quantity-weighted market price recorded since a
// point in time. It is satisfied by repo.Repo.
type PriceSource interface {
	AveragePrice(ctx context.Context, crop string, since time.Time) (float64, int, error)
}

var ErrIncompleteQuery = errors.New("harvest query is incomplete")

const (
	DefaultDaysAhead = 7
	DefaultMaxBuyers = 3
	// marketWindow bounds how far back recorded transactions count.
	marketWindow = 30 * 24 * time.Hour
)

// Heuristic is the built-in Oracle.
type Heuristic struct {
	Buyers    BuyerSource
	Prices    PriceSource
	Now       func() time.Time
	DaysAhead int
	MaxBuyers int
	// Conditions stands in for the field readings the menu does not collect.
	Conditions Conditions
}

// NewHeuristic returns a Heuristic with default settings.
func NewHeuristic(buyers BuyerSource, prices PriceSource) *Heuristic {
	return &Heuristic{
		Buyers:     buyers,
		Prices:     prices,
		Now:        time.Now,
		DaysAhead:  DefaultDaysAhead,
		MaxBuyers:  DefaultMaxBuyers,
		Conditions: DefaultConditions,
	}
}

func (h *Heuristic) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Heuristic) Assess(ctx context.Context, q domain.HarvestQuery) (domain.Assessment, error) {
	if !q.Complete() {
		return domain.Assessment{}, ErrIncompleteQuery
	}
	if err := ctx.Err(); err != nil {
		return domain.Assessment{}, err
	}
	tier, confidence := vote(q, h.Conditions)
	price, err := h.ForecastPrice(ctx, q.Crop)
	if err != nil {
		return domain.Assessment{}, err
	}
	buyers, err := h.FindBuyers(ctx, q.Crop)
	if err != nil {
		return domain.Assessment{}, err
	}
	return domain.Assessment{
		RiskTier:      tier,
		Confidence:    confidence,
		Probabilities: probabilities(tier),
		PriceEstimate: price.Price,
		PriceTrend:    price.Trend,
		Advice:        Advice(tier, q.Crop, confidence),
		Recommend:     price.Recommend,
		ClusterGroup:  Cluster(q),
		Buyers:        buyers,
	}, nil
}

func (h *Heuristic) FindBuyers(ctx context.Context, crop string) ([]domain.Buyer, error) {
	if h.Buyers == nil {
		return nil, nil
	}
	buyers, err := h.Buyers.BuyersForCrop(ctx, crop)
	if err != nil {
		return nil, fmt.Errorf("find buyers: %w", err)
	}
	limit := h.MaxBuyers
	if limit <= 0 {
		limit = DefaultMaxBuyers
	}
	if len(buyers) > limit {
		buyers = buyers[:limit]
	}
	return buyers, nil
}

func (h *Heuristic) ForecastPrice(ctx context.Context, crop string) (domain.PriceForecast, error) {
	crop = strings.ToLower(strings.TrimSpace(crop))
	if crop == "" {
		return domain.PriceForecast{}, errors.New("crop required")
	}
	days := h.DaysAhead
	if days < 0 {
		days = 0
	}
	now := h.now()
	price := modelPrice(crop, now, days)
	if h.Prices != nil {
		avg, n, err := h.Prices.AveragePrice(ctx, crop, now.Add(-marketWindow))
		if err != nil {
			return domain.PriceForecast{}, fmt.Errorf("market price: %w", err)
		}
		if n > 0 && avg > 0 {
			price = (price + avg) / 2
		}
	}
	f := domain.PriceForecast{
		Crop:      crop,
		Price:     price,
		DaysAhead: days,
		Trend:     TrendStable,
		Recommend: "Sell now",
	}
	if price > holdThreshold {
		f.Trend = TrendRising
		f.Recommend = "Hold for better price"
	}
	return f, nil
}
