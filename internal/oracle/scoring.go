package oracle

import (
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"harvestlink/internal/domain"
)

const (
	TrendRising = "rising"
	TrendStable = "stable"

	defaultBasePrice = 200.0
	holdThreshold    = 200.0
)

// Conditions are environmental readings folded into the risk score.
type Conditions struct {
	Humidity    float64
	Temperature float64
	StorageDays float64
	PestSigns   float64
}

// DefaultConditions is used until readings are collected per query.
var DefaultConditions = Conditions{Humidity: 60, Temperature: 25, StorageDays: 7}

// BasePrices are KES per kg before seasonal and trend adjustments.
var BasePrices = map[string]float64{
	"maize": 200, "rice": 300, "wheat": 250, "beans": 400,
	"tomatoes": 150, "millet": 180, "sorghum": 190, "cassava": 120,
}

type voter struct {
	confidence float64
	crop       map[string]float64
	storage    map[string]float64
	weather    map[string]float64
	fallback   float64
	low, high  float64
	env        func(Conditions) float64
}

func (v voter) score(q domain.HarvestQuery, c Conditions) float64 {
	lookup := func(table map[string]float64, key string) float64 {
		if x, ok := table[key]; ok {
			return x
		}
		return v.fallback
	}
	return lookup(v.crop, q.Crop) + lookup(v.storage, q.Storage) + lookup(v.weather, q.Weather) + v.env(c)
}

func (v voter) tier(q domain.HarvestQuery, c Conditions) domain.RiskTier {
	s := v.score(q, c)
	switch {
	case s < v.low:
		return domain.RiskLow
	case s < v.high:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

var voters = []voter{
	{
		confidence: 0.85,
		crop:       map[string]float64{"tomatoes": 0.8, "beans": 0.6, "maize": 0.4, "rice": 0.3, "wheat": 0.3},
		storage:    map[string]float64{"traditional": 0.7, "improved": 0.4, "cold_storage": 0.2, "silo": 0.3, "hermetic": 0.1},
		weather:    map[string]float64{"dry": 0.2, "humid": 0.6, "rainy": 0.8, "stormy": 1.0, "drought": 0.3},
		fallback:   0.4,
		low:        0.3,
		high:       0.7,
		env: func(c Conditions) float64 {
			return (c.Humidity-50)/100 + (c.Temperature-25)/50 + c.StorageDays/100 + c.PestSigns*0.3
		},
	},
	{
		confidence: 0.82,
		crop:       map[string]float64{"tomatoes": 0.9, "beans": 0.7, "maize": 0.5, "rice": 0.4, "wheat": 0.4},
		storage:    map[string]float64{"traditional": 0.8, "improved": 0.5, "cold_storage": 0.3, "silo": 0.4, "hermetic": 0.2},
		weather:    map[string]float64{"dry": 0.3, "humid": 0.7, "rainy": 0.9, "stormy": 1.1, "drought": 0.4},
		fallback:   0.5,
		low:        0.4,
		high:       0.8,
		env: func(c Conditions) float64 {
			return (c.Humidity-45)/80 + (c.Temperature-22)/40 + c.StorageDays/80 + c.PestSigns*0.4
		},
	},
	{
		confidence: 0.78,
		crop:       map[string]float64{"tomatoes": 0.7, "beans": 0.5, "maize": 0.3, "rice": 0.2, "wheat": 0.2},
		storage:    map[string]float64{"traditional": 0.6, "improved": 0.3, "cold_storage": 0.1, "silo": 0.2, "hermetic": 0.05},
		weather:    map[string]float64{"dry": 0.1, "humid": 0.5, "rainy": 0.7, "stormy": 0.9, "drought": 0.2},
		fallback:   0.3,
		low:        0.2,
		high:       0.6,
		env: func(c Conditions) float64 {
			return math.Sin((c.Humidity-50)/50)*0.2 + math.Cos((c.Temperature-25)/25)*0.2 +
				math.Log(c.StorageDays+1)/10 + c.PestSigns*0.5
		},
	},
}

// vote returns the majority tier of the voters and their mean confidence.
// Without a majority the first voter decides.
func vote(q domain.HarvestQuery, c Conditions) (domain.RiskTier, float64) {
	counts := map[domain.RiskTier]int{}
	var first domain.RiskTier
	var confidence float64
	for i, v := range voters {
		t := v.tier(q, c)
		if i == 0 {
			first = t
		}
		counts[t]++
		confidence += v.confidence
	}
	confidence /= float64(len(voters))
	for t, n := range counts {
		if n*2 > len(voters) {
			return t, confidence
		}
	}
	return first, confidence
}

func probabilities(t domain.RiskTier) map[domain.RiskTier]float64 {
	switch t {
	case domain.RiskHigh:
		return map[domain.RiskTier]float64{domain.RiskLow: 0.1, domain.RiskMedium: 0.3, domain.RiskHigh: 0.6}
	case domain.RiskLow:
		return map[domain.RiskTier]float64{domain.RiskLow: 0.6, domain.RiskMedium: 0.3, domain.RiskHigh: 0.1}
	default:
		return map[domain.RiskTier]float64{domain.RiskLow: 0.2, domain.RiskMedium: 0.6, domain.RiskHigh: 0.2}
	}
}

// Advice returns the mitigation steps for a tier, most important first.
func Advice(t domain.RiskTier, crop string, confidence float64) []string {
	var out []string
	switch t {
	case domain.RiskLow:
		out = []string{fmt.Sprintf("Your %s is well preserved. Keep current storage conditions.", crop)}
	case domain.RiskMedium:
		out = []string{
			fmt.Sprintf("Dry %s for 2-3 more days", crop),
			"Check for pest activity",
			"Improve ventilation",
			"Monitor temperature daily",
		}
	case domain.RiskHigh:
		out = []string{
			fmt.Sprintf("Dry %s urgently (within 24 hours)", crop),
			"Apply pest treatment",
			"Sell within 3 days",
			"Consider emergency storage upgrade",
		}
	default:
		out = []string{"Monitor your harvest closely."}
	}
	switch {
	case confidence > 0.8:
		out = append(out, "High confidence: based on similar cases.")
	case confidence < 0.6:
		out = append(out, "Lower confidence: consider other factors too.")
	}
	return out
}

// Cluster places a query in one of three farmer groups.
func Cluster(q domain.HarvestQuery) int {
	score := hashMod(q.Crop) + hashMod(q.Location) + hashMod(q.Storage) + quantityBucket(q.Quantity)
	return score % 3
}

// quantityBucket is floor(qty/10) mod 3, kept in floating point so that huge
// quantities cannot overflow int.
func quantityBucket(qty float64) int {
	b := math.Mod(math.Floor(qty/10), 3)
	if math.IsNaN(b) || b < 0 {
		return 0
	}
	return int(b)
}

func hashMod(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % 10)
}

// modelPrice is the base price scaled by a yearly seasonal wave and a linear
// trend over the forecast horizon, floored at half the base price.
func modelPrice(crop string, now time.Time, daysAhead int) float64 {
	base, ok := BasePrices[crop]
	if !ok {
		base = defaultBasePrice
	}
	seasonal := 1 + 0.1*math.Sin(2*math.Pi*float64(now.YearDay())/365)
	trend := 1 + float64(daysAhead)*0.01
	return math.Max(base*seasonal*trend, base*0.5)
}
