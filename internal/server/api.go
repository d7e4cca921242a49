package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"harvestlink/internal/domain"
	"harvestlink/internal/oracle"
	"harvestlink/internal/repo"
	"harvestlink/internal/session"
	"harvestlink/internal/sms"
	"harvestlink/internal/ussd"
)

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAnalyze(api huma.API, cfg Config, log *zap.Logger) {
	timeout := cfg.OracleTimeout
	huma.Register(api, huma.Operation{
		OperationID: "analyze",
		Method:      http.MethodPost,
		Path:        "/analyze",
		Summary:     "Assess harvest loss risk",
		Description: "Runs the same assessment as the USSD loss-risk flow. Missing location, storage and weather fall back to Other, traditional and dry.",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body AnalyzeRequest
	}) (*struct {
		Body AnalyzeResponse `json:"body"`
	}, error) {
		in := input.Body
		q := domain.HarvestQuery{
			Crop:     strings.ToLower(strings.TrimSpace(in.Crop)),
			Quantity: in.Quantity,
			Location: strings.TrimSpace(in.Location),
			Storage:  in.Storage,
			Weather:  in.Weather,
		}
		if !ussd.Known(ussd.Crops, q.Crop) {
			return nil, newAPIError(http.StatusBadRequest, "unknown_crop", "unknown crop", map[string]any{"crop": in.Crop})
		}
		if q.Location == "" {
			q.Location = sms.DefaultLocation
		}
		if q.Storage == "" {
			q.Storage = sms.DefaultStorage
		}
		if q.Weather == "" {
			q.Weather = sms.DefaultWeather
		}

		a, err := oracle.Call(ctx, timeout, "assess", func(ctx context.Context) (domain.Assessment, error) {
			return cfg.Oracle.Assess(ctx, q)
		})
		if err != nil {
			log.Warn("analyze failed", zap.String("crop", q.Crop), zap.Error(err))
			return nil, newAPIError(http.StatusServiceUnavailable, "oracle_unavailable", "assessment unavailable", nil)
		}

		resp := AnalyzeResponse{Query: q, Assessment: a}
		if cfg.Repo.DB != nil {
			p, err := cfg.Repo.InsertPrediction(ctx, domain.Prediction{
				FarmerPhone:    strings.TrimSpace(in.Phone),
				Channel:        "api",
				Crop:           q.Crop,
				Quantity:       q.Quantity,
				Location:       q.Location,
				Storage:        q.Storage,
				Weather:        q.Weather,
				RiskTier:       string(a.RiskTier),
				Confidence:     a.Confidence,
				PriceEstimate:  a.PriceEstimate,
				MitigationNote: strings.Join(a.Advice, "; "),
			})
			if err != nil {
				log.Error("record prediction", zap.Error(err))
			} else {
				resp.PredictionID = p.ID
			}
		}
		if resp.Assessment.Buyers == nil {
			resp.Assessment.Buyers = []domain.Buyer{}
		}
		return &struct {
			Body AnalyzeResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerBuyers(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-buyers",
		Method:      http.MethodGet,
		Path:        "/buyers",
		Summary:     "List buyers",
	}, func(ctx context.Context, input *struct {
		Crop string `query:"crop" doc:"Only buyers interested in this crop"`
	}) (*struct {
		Body listBuyers `json:"body"`
	}, error) {
		buyers, err := r.BuyersForCrop(ctx, input.Crop)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listBuyers `json:"body"`
		}{Body: listBuyers{Items: orEmpty(buyers)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-buyer",
		Method:        http.MethodPost,
		Path:          "/buyers",
		Summary:       "Add a buyer",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateBuyerRequest
	}) (*struct {
		Body domain.Buyer `json:"body"`
	}, error) {
		b, err := r.InsertBuyer(ctx, domain.Buyer{
			Name:            strings.TrimSpace(input.Body.Name),
			Phone:           strings.TrimSpace(input.Body.Phone),
			CropsInterested: input.Body.CropsInterested,
			Location:        strings.TrimSpace(input.Body.Location),
			PriceRange:      strings.TrimSpace(input.Body.PriceRange),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Buyer `json:"body"`
		}{Body: b}, nil
	})
}

func registerFarmers(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-farmers",
		Method:      http.MethodGet,
		Path:        "/farmers",
		Summary:     "List registered farmers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body listFarmers `json:"body"`
	}, error) {
		farmers, err := r.ListFarmers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listFarmers `json:"body"`
		}{Body: listFarmers{Items: orEmpty(farmers)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-farmer",
		Method:      http.MethodGet,
		Path:        "/farmers/{phone}",
		Summary:     "Get a farmer by phone number",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Phone string `path:"phone"`
	}) (*struct {
		Body domain.Farmer `json:"body"`
	}, error) {
		f, err := r.GetFarmerByPhone(ctx, input.Phone)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Farmer `json:"body"`
		}{Body: f}, nil
	})
}

func registerPredictions(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-predictions",
		Method:      http.MethodGet,
		Path:        "/predictions",
		Summary:     "List recorded loss predictions, newest first",
	}, func(ctx context.Context, input *struct {
		Phone string `query:"phone"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body listPredictions `json:"body"`
	}, error) {
		preds, err := r.ListPredictions(ctx, input.Phone, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listPredictions `json:"body"`
		}{Body: listPredictions{Items: orEmpty(preds)}}, nil
	})
}

func registerSessions(api huma.API, store session.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List live USSD sessions",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body listSessions `json:"body"`
	}, error) {
		sessions, err := store.List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listSessions `json:"body"`
		}{Body: listSessions{Items: orEmpty(sessions)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{session_id}",
		Summary:       "Drop a USSD session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct{}, error) {
		if err := store.Delete(ctx, input.SessionID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerEvents(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
	}, func(ctx context.Context, input *struct {
		Type      string `query:"type"`
		SessionID string `query:"session_id"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body listEvents `json:"body"`
	}, error) {
		items, err := r.LatestEvents(ctx, normalizeLimit(input.Limit), input.Type, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := listEvents{Items: []EventResponse{}}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body listEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerTransactions(api huma.API, r repo.Repo, log *zap.Logger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-transactions",
		Method:      http.MethodGet,
		Path:        "/transactions",
		Summary:     "List recorded sales",
	}, func(ctx context.Context, input *struct {
		Crop  string `query:"crop"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body listTransactions `json:"body"`
	}, error) {
		items, err := r.ListTransactions(ctx, input.Crop, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body listTransactions `json:"body"`
		}{Body: listTransactions{Items: orEmpty(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-transaction",
		Method:        http.MethodPost,
		Path:          "/transactions",
		Summary:       "Record a sale",
		Description:   "Recorded sales feed the market average used by price forecasts.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTransactionRequest
	}) (*struct {
		Body repo.Transaction `json:"body"`
	}, error) {
		in := input.Body
		t, err := r.InsertTransaction(ctx, repo.Transaction{
			FarmerID: in.FarmerID,
			BuyerID:  in.BuyerID,
			Crop:     in.Crop,
			Quantity: in.Quantity,
			Price:    in.Price,
			Date:     in.Date,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if p, ok := principalFromContext(ctx); ok {
			log.Info("transaction recorded", zap.String("id", t.ID), zap.String("by", p.Subject))
		}
		return &struct {
			Body repo.Transaction `json:"body"`
		}{Body: t}, nil
	})
}
