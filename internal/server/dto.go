package server

import (
	"encoding/json"

	"harvestlink/internal/domain"
	"harvestlink/internal/repo"
)

// Request payloads

type AnalyzeRequest struct {
	Crop     string  `json:"crop" example:"maize"`
	Quantity float64 `json:"quantity" exclusiveMinimum:"0" doc:"Quantity in kg"`
	Location string  `json:"location,omitempty" example:"Nairobi"`
	Storage  string  `json:"storage_method,omitempty" enum:"traditional,improved,cold_storage,silo,hermetic"`
	Weather  string  `json:"weather_condition,omitempty" enum:"dry,humid,rainy,stormy,drought"`
	Phone    string  `json:"phone,omitempty" doc:"Farmer phone number; the prediction is recorded against it"`
}

type CreateBuyerRequest struct {
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	CropsInterested string `json:"crops_interested" example:"maize,beans" doc:"Comma-separated crops, or all"`
	Location        string `json:"location"`
	PriceRange      string `json:"price_range,omitempty" example:"40-50 KES/kg"`
}

type CreateTransactionRequest struct {
	FarmerID string  `json:"farmer_id,omitempty"`
	BuyerID  string  `json:"buyer_id,omitempty"`
	Crop     string  `json:"crop_type"`
	Quantity float64 `json:"quantity" exclusiveMinimum:"0"`
	Price    float64 `json:"price" exclusiveMinimum:"0" doc:"Price per kg in KES"`
	Date     string  `json:"transaction_date,omitempty" format:"date-time"`
}

// Response payloads

type AnalyzeResponse struct {
	Query        domain.HarvestQuery `json:"query"`
	Assessment   domain.Assessment   `json:"assessment"`
	PredictionID string              `json:"prediction_id,omitempty"`
}

type EventResponse struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts" format:"date-time"`
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Payload   map[string]any `json:"payload"`
}

type listBuyers struct {
	Items []domain.Buyer `json:"items"`
}

type listFarmers struct {
	Items []domain.Farmer `json:"items"`
}

type listPredictions struct {
	Items []domain.Prediction `json:"items"`
}

type listSessions struct {
	Items []domain.Session `json:"items"`
}

type listEvents struct {
	Items []EventResponse `json:"items"`
}

type listTransactions struct {
	Items []repo.Transaction `json:"items"`
}

// Conversion helpers

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:        e.ID,
		TS:        e.TS,
		Type:      e.Type,
		SessionID: e.SessionID,
		Phone:     e.Phone,
		Payload:   decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
