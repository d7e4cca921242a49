package oracle

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvestlink/internal/domain"
)

type fakeBuyers struct {
	buyers []domain.Buyer
	err    error
	crops  []string
}

func (f *fakeBuyers) BuyersForCrop(_ context.Context, crop string) ([]domain.Buyer, error) {
	f.crops = append(f.crops, crop)
	return f.buyers, f.err
}

type fakePrices struct {
	avg float64
	n   int
	err error
}

func (f fakePrices) AveragePrice(context.Context, string, time.Time) (float64, int, error) {
	return f.avg, f.n, f.err
}

// Day 365 puts the seasonal wave at zero.
var lastDay = time.Date(2025, 12, 31, 9, 0, 0, 0, time.UTC)

func newTestOracle(b BuyerSource, p PriceSource) *Heuristic {
	h := NewHeuristic(b, p)
	h.Now = func() time.Time { return lastDay }
	return h
}

func TestAssessDefaultConditions(t *testing.T) {
	buyers := &fakeBuyers{buyers: []domain.Buyer{
		{Name: "AgriCorp Kenya", Location: "Nairobi"},
		{Name: "Grain Traders Co", Location: "Kisumu"},
		{Name: "Farm Fresh Kenya", Location: "Nakuru"},
		{Name: "Local Market Hub", Location: "Thika"},
	}}
	h := newTestOracle(buyers, nil)
	q := domain.HarvestQuery{Crop: "maize", Quantity: 50, Location: "Nairobi", Storage: "traditional", Weather: "dry"}

	a, err := h.Assess(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, a.RiskTier)
	assert.InDelta(t, (0.85+0.82+0.78)/3, a.Confidence, 1e-9)
	assert.InDelta(t, 0.6, a.Probabilities[domain.RiskHigh], 1e-9)
	assert.InDelta(t, 214, a.PriceEstimate, 1e-6)
	assert.Equal(t, TrendRising, a.PriceTrend)
	assert.Equal(t, "Hold for better price", a.Recommend)
	assert.Len(t, a.Buyers, DefaultMaxBuyers)
	assert.Equal(t, []string{"maize"}, buyers.crops)
	assert.Equal(t, "Dry maize urgently (within 24 hours)", a.Advice[0])
	assert.Contains(t, a.Advice, "High confidence: based on similar cases.")
	assert.GreaterOrEqual(t, a.ClusterGroup, 0)
	assert.Less(t, a.ClusterGroup, 3)

	again, err := h.Assess(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestVoteTiers(t *testing.T) {
	q := domain.HarvestQuery{Crop: "wheat", Quantity: 10, Location: "Meru", Storage: "hermetic", Weather: "dry"}
	cases := []struct {
		name string
		c    Conditions
		want domain.RiskTier
	}{
		{"defaults", DefaultConditions, domain.RiskHigh},
		{"fresh and cool", Conditions{Humidity: 50, Temperature: 25}, domain.RiskMedium},
		{"cold and dry air", Conditions{Humidity: 20, Temperature: 10}, domain.RiskLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tier, _ := vote(q, tc.c)
			assert.Equal(t, tc.want, tier)
		})
	}
}

func TestAssessRejectsIncompleteQuery(t *testing.T) {
	h := newTestOracle(nil, nil)
	_, err := h.Assess(context.Background(), domain.HarvestQuery{Crop: "maize", Quantity: 10})
	assert.ErrorIs(t, err, ErrIncompleteQuery)
}

func TestAssessHonoursCancelledContext(t *testing.T) {
	h := newTestOracle(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Assess(ctx, domain.HarvestQuery{Crop: "maize", Quantity: 10, Location: "Meru", Storage: "silo", Weather: "dry"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssessPropagatesBuyerFailure(t *testing.T) {
	boom := errors.New("db closed")
	h := newTestOracle(&fakeBuyers{err: boom}, nil)
	_, err := h.Assess(context.Background(), domain.HarvestQuery{Crop: "beans", Quantity: 10, Location: "Meru", Storage: "silo", Weather: "dry"})
	assert.ErrorIs(t, err, boom)
}

func TestForecastPrice(t *testing.T) {
	h := newTestOracle(nil, nil)

	f, err := h.ForecastPrice(context.Background(), "Tomatoes")
	require.NoError(t, err)
	assert.Equal(t, "tomatoes", f.Crop)
	assert.InDelta(t, 160.5, f.Price, 1e-6)
	assert.Equal(t, TrendStable, f.Trend)
	assert.Equal(t, "Sell now", f.Recommend)
	assert.Equal(t, DefaultDaysAhead, f.DaysAhead)

	h.DaysAhead = 0
	f, err = h.ForecastPrice(context.Background(), "maize")
	require.NoError(t, err)
	assert.InDelta(t, 200, f.Price, 1e-6)
	assert.Equal(t, TrendStable, f.Trend)

	f, err = h.ForecastPrice(context.Background(), "yams")
	require.NoError(t, err)
	assert.InDelta(t, defaultBasePrice, f.Price, 1e-6)

	_, err = h.ForecastPrice(context.Background(), " ")
	assert.Error(t, err)
}

func TestForecastPriceBlendsMarketAverage(t *testing.T) {
	h := newTestOracle(nil, fakePrices{avg: 100, n: 2})
	f, err := h.ForecastPrice(context.Background(), "maize")
	require.NoError(t, err)
	assert.InDelta(t, (214+100)/2.0, f.Price, 1e-6)

	h.Prices = fakePrices{}
	f, err = h.ForecastPrice(context.Background(), "maize")
	require.NoError(t, err)
	assert.InDelta(t, 214, f.Price, 1e-6)

	h.Prices = fakePrices{err: errors.New("locked")}
	_, err = h.ForecastPrice(context.Background(), "maize")
	assert.Error(t, err)
}

func TestModelPriceSeasonalWave(t *testing.T) {
	spring := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	autumn := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	assert.Greater(t, modelPrice("maize", spring, 0), 200.0)
	assert.Less(t, modelPrice("maize", autumn, 0), 200.0)
	assert.Greater(t, modelPrice("maize", lastDay, 14), modelPrice("maize", lastDay, 7))
}

func TestFindBuyersLimit(t *testing.T) {
	h := newTestOracle(&fakeBuyers{buyers: make([]domain.Buyer, 6)}, nil)
	h.MaxBuyers = 5
	got, err := h.FindBuyers(context.Background(), "all")
	require.NoError(t, err)
	assert.Len(t, got, 5)

	none, err := newTestOracle(nil, nil).FindBuyers(context.Background(), "maize")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAdviceConfidenceNotes(t *testing.T) {
	assert.Equal(t, []string{"Your rice is well preserved. Keep current storage conditions."}, Advice(domain.RiskLow, "rice", 0.7))
	assert.Contains(t, Advice(domain.RiskMedium, "rice", 0.5), "Lower confidence: consider other factors too.")
	assert.Len(t, Advice(domain.RiskMedium, "rice", 0.7), 4)
}

func TestClusterIsStable(t *testing.T) {
	q := domain.HarvestQuery{Crop: "beans", Quantity: 120, Location: "Kisumu", Storage: "silo", Weather: "humid"}
	assert.Equal(t, Cluster(q), Cluster(q))
	q2 := q
	q2.Weather = "rainy"
	assert.Equal(t, Cluster(q), Cluster(q2))
}

func TestClusterStaysInRangeForHugeQuantities(t *testing.T) {
	for _, qty := range []float64{0.5, 10, 1e9, 1e20, 1e300, math.MaxFloat64, math.Inf(1)} {
		q := domain.HarvestQuery{Crop: "maize", Quantity: qty, Location: "Nairobi", Storage: "traditional"}
		got := Cluster(q)
		assert.GreaterOrEqual(t, got, 0, "quantity %g", qty)
		assert.Less(t, got, 3, "quantity %g", qty)
	}
	assert.Equal(t, 2, quantityBucket(20))
	assert.Equal(t, 0, quantityBucket(30))
	assert.Equal(t, 0, quantityBucket(math.NaN()))
}
