package domain

import "time"

// StepInitial is the current step of a session that has not been resolved yet.
const StepInitial = "initial"

// Session is one farmer's in-progress walk through the USSD menu.
type Session struct {
	ID          string       `json:"session_id"`
	PhoneNumber string       `json:"phone_number,omitempty"`
	CurrentStep string       `json:"current_step"`
	State       HarvestQuery `json:"state"`
	// TokenOffset is the number of leading input tokens that belong to an
	// expired walk and are skipped on every request.
	TokenOffset int          `json:"token_offset,omitempty"`
	CreatedAt   time.Time    `json:"created_at" format:"date-time"`
	UpdatedAt   time.Time    `json:"updated_at" format:"date-time"`
}

// IsNew reports whether the session was never persisted.
func (s Session) IsNew() bool {
	return s.UpdatedAt.IsZero()
}

// HarvestQuery is accumulated field by field across the loss-risk screens.
type HarvestQuery struct {
	Crop     string  `json:"crop,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
	Location string  `json:"location,omitempty"`
	Storage  string  `json:"storage_method,omitempty"`
	Weather  string  `json:"weather_condition,omitempty"`
	// Topic is only set by the advice flow.
	Topic string `json:"topic,omitempty"`
}

// Complete reports whether all five loss-risk fields are populated.
func (q HarvestQuery) Complete() bool {
	return q.Crop != "" && q.Quantity > 0 && q.Location != "" && q.Storage != "" && q.Weather != ""
}

type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Assessment is what the scoring oracle returns for a completed query.
type Assessment struct {
	RiskTier      RiskTier             `json:"risk_tier" enum:"low,medium,high"`
	Confidence    float64              `json:"confidence" minimum:"0" maximum:"1"`
	Probabilities map[RiskTier]float64 `json:"probabilities,omitempty"`
	PriceEstimate float64              `json:"price_estimate"`
	PriceTrend    string               `json:"price_trend" enum:"rising,stable"`
	Advice        []string             `json:"advice,omitempty"`
	Recommend     string               `json:"recommendation"`
	ClusterGroup  int                  `json:"cluster_group"`
	Buyers        []Buyer              `json:"buyers"`
}

// PriceForecast is the per-crop forecast behind the price menu.
type PriceForecast struct {
	Crop      string  `json:"crop"`
	Price     float64 `json:"price"`
	DaysAhead int     `json:"days_ahead"`
	Trend     string  `json:"trend" enum:"rising,stable"`
	Recommend string  `json:"recommendation"`
}

type Buyer struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	CropsInterested string `json:"crops_interested"`
	Location        string `json:"location"`
	PriceRange      string `json:"price_range"`
	CreatedAt       string `json:"created_at" format:"date-time"`
}

type Farmer struct {
	ID        string `json:"id"`
	Phone     string `json:"phone"`
	Name      string `json:"name,omitempty"`
	Location  string `json:"location,omitempty"`
	Crops     string `json:"crops,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Prediction is a recorded loss assessment.
type Prediction struct {
	ID             string  `json:"id"`
	FarmerPhone    string  `json:"farmer_phone"`
	Channel        string  `json:"channel" enum:"ussd,sms,api"`
	Crop           string  `json:"crop"`
	Quantity       float64 `json:"quantity"`
	Location       string  `json:"location"`
	Storage        string  `json:"storage_method"`
	Weather        string  `json:"weather_condition"`
	RiskTier       string  `json:"risk_tier"`
	Confidence     float64 `json:"confidence"`
	PriceEstimate  float64 `json:"price_estimate"`
	MitigationNote string  `json:"mitigation_advice,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Payload   string `json:"payload_json"`
}
