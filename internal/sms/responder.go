package sms

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"harvestlink/internal/domain"
	"harvestlink/internal/events"
	"harvestlink/internal/metrics"
	"harvestlink/internal/oracle"
	"harvestlink/internal/repo"
)

const processingError = "Sorry, we could not analyse your harvest right now. Please try again with the format below.\n"

// Responder turns an inbound SMS into the reply text.
type Responder struct {
	Oracle      oracle.Oracle
	Repo        repo.Repo
	Events      events.Writer
	Logger      *zap.Logger
	Timeout     time.Duration
	ServiceCode string
	Now         func() time.Time
}

// NewResponder records predictions in conn when it is not nil.
func NewResponder(orc oracle.Oracle, conn *sql.DB, timeout time.Duration, serviceCode string, log *zap.Logger) Responder {
	if log == nil {
		log = zap.NewNop()
	}
	return Responder{
		Oracle:      orc,
		Repo:        repo.Repo{DB: conn},
		Events:      events.Writer{DB: conn},
		Logger:      log.Named("sms"),
		Timeout:     timeout,
		ServiceCode: serviceCode,
		Now:         time.Now,
	}
}

// Reply answers one message. Unparseable messages get the usage text.
func (r Responder) Reply(ctx context.Context, from, body string) string {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	q, ok := Parse(body)
	if !ok {
		metrics.SMSRequest("help")
		return Help(r.ServiceCode)
	}
	a, err := oracle.Call(ctx, r.Timeout, "assess", func(ctx context.Context) (domain.Assessment, error) {
		return r.Oracle.Assess(ctx, q)
	})
	if err != nil {
		metrics.SMSRequest("oracle_failure")
		log.Warn("oracle assess failed", zap.String("phone", from), zap.Error(err))
		return processingError + Help(r.ServiceCode)
	}
	metrics.SMSRequest("parsed")
	r.record(ctx, from, q, a, log)
	return FormatAssessment(q, a)
}

func (r Responder) record(ctx context.Context, from string, q domain.HarvestQuery, a domain.Assessment, log *zap.Logger) {
	if r.Repo.DB == nil {
		return
	}
	rp := r.Repo
	rp.Now = r.Now
	p, err := rp.InsertPrediction(ctx, domain.Prediction{
		FarmerPhone:    from,
		Channel:        "sms",
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
		return
	}
	if from != "" {
		if _, err := rp.UpsertFarmer(ctx, domain.Farmer{Phone: from, Location: q.Location, Crops: q.Crop}); err != nil {
			log.Error("update farmer", zap.Error(err))
		}
	}
	w := r.Events
	w.Now = r.Now
	if err := w.Append(ctx, nil, events.SMSAssessed, "", from, events.EventPayload{"prediction_id": p.ID, "risk_tier": p.RiskTier}); err != nil {
		log.Warn("append event", zap.Error(err))
	}
}

// Help is the usage text sent for messages that cannot be parsed.
func Help(serviceCode string) string {
	if serviceCode == "" {
		serviceCode = "*123#"
	}
	return fmt.Sprintf(`Welcome to HarvestLink!

SMS: send harvest details
Format: CROP QUANTITY LOCATION STORAGE WEATHER
Example: maize 50kg Nairobi traditional dry

USSD: dial %s for the guided menu`, serviceCode)
}

// FormatAssessment renders the full assessment for an SMS reply.
func FormatAssessment(q domain.HarvestQuery, a domain.Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HARVESTLINK ANALYSIS: %.0f kg %s, %s\n\n", q.Quantity, q.Crop, q.Location)
	fmt.Fprintf(&b, "LOSS RISK: %s (confidence %.0f%%)\n", strings.ToUpper(string(a.RiskTier)), a.Confidence*100)
	for i, line := range a.Advice {
		fmt.Fprintf(&b, "%d) %s\n", i+1, line)
	}
	fmt.Fprintf(&b, "\nPRICE FORECAST: %.0f KES/kg (%s)\n", a.PriceEstimate, a.PriceTrend)
	fmt.Fprintf(&b, "RECOMMENDATION: %s\n", a.Recommend)
	fmt.Fprintf(&b, "\nBUYER MATCHES: %d found\n", len(a.Buyers))
	if len(a.Buyers) == 0 {
		b.WriteString("No buyers found. We'll notify you when matches are available.\n")
	}
	for i, buyer := range a.Buyers {
		fmt.Fprintf(&b, "%d. %s (%s) - %s", i+1, buyer.Name, buyer.Location, buyer.PriceRange)
		if buyer.Phone != "" {
			fmt.Fprintf(&b, ", %s", buyer.Phone)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nCluster group: %d", a.ClusterGroup)
	return b.String()
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// TwiML wraps a reply in the messaging response document expected by Twilio.
func TwiML(message string) ([]byte, error) {
	out, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
