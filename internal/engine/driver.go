package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"harvestlink/internal/config"
	"harvestlink/internal/domain"
	"harvestlink/internal/events"
	"harvestlink/internal/metrics"
	"harvestlink/internal/oracle"
	"harvestlink/internal/repo"
	"harvestlink/internal/session"
	"harvestlink/internal/ussd"
)

// Kind is the control tag in front of every USSD reply.
type Kind string

const (
	KindContinue Kind = "CON"
	KindEnd      Kind = "END"
)

// Outcome classifies how a request ended. Storage failures are not an
// outcome: Handle returns them as errors.
type Outcome string

const (
	OutcomeContinue        Outcome = "continue"
	OutcomeCompleted       Outcome = "completed"
	OutcomeInvalidChoice   Outcome = "invalid_choice"
	OutcomeInvalidQuantity Outcome = "invalid_quantity"
	OutcomeOracleFailure   Outcome = "oracle_failure"
)

// DefaultOracleTimeout bounds one scoring call.
const DefaultOracleTimeout = oracle.DefaultTimeout

var ErrMissingSessionID = errors.New("sessionId is required")

// Request is one aggregator round trip.
type Request struct {
	SessionID   string
	PhoneNumber string
	ServiceCode string
	Text        string
}

type Reply struct {
	Kind    Kind
	Message string
	Outcome Outcome
	Screen  ussd.ScreenID
	Action  ussd.Action
}

// String renders the reply body sent back to the aggregator.
func (r Reply) String() string {
	return string(r.Kind) + " " + r.Message
}

func (r Reply) Final() bool {
	return r.Kind == KindEnd
}

// Driver runs the menu for inbound USSD requests. The menu is replayed from
// the root on every request because aggregators resend the whole input.
type Driver struct {
	Store         session.Store
	Graph         *ussd.Graph
	Oracle        oracle.Oracle
	Repo          repo.Repo
	Events        events.Writer
	Locker        *session.KeyedLocker
	Logger        *zap.Logger
	OracleTimeout time.Duration
	MaxChars      int
	ServiceCode   string
	DaysAhead     int
	Now           func() time.Time
}

// New wires a Driver over the records database. conn may be nil, in which
// case predictions, farmers and events are not recorded.
func New(store session.Store, orc oracle.Oracle, conn *sql.DB, cfg *config.Config, log *zap.Logger) Driver {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return Driver{
		Store:         store,
		Graph:         ussd.DefaultGraph(),
		Oracle:        orc,
		Repo:          repo.Repo{DB: conn},
		Events:        events.Writer{DB: conn},
		Locker:        session.NewKeyedLocker(),
		Logger:        log.Named("ussd"),
		OracleTimeout: cfg.Oracle.Timeout,
		MaxChars:      cfg.USSD.MaxScreenChars,
		ServiceCode:   cfg.USSD.ServiceCode,
		DaysAhead:     cfg.Oracle.DaysAhead,
		Now:           time.Now,
	}
}

func (d Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Driver) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Handle resolves one request. The returned error is always a session store
// failure or a missing session id; every menu outcome is a Reply.
func (d Driver) Handle(ctx context.Context, req Request) (Reply, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return Reply{}, ErrMissingSessionID
	}
	if d.Locker != nil {
		unlock := d.Locker.Lock(req.SessionID)
		defer unlock()
	}
	log := d.log().With(zap.String("session_id", req.SessionID), zap.String("phone", req.PhoneNumber))

	sess, err := d.Store.Get(ctx, req.SessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("load session %s: %w", req.SessionID, err)
	}
	tokens := ussd.Tokenize(req.Text)
	if sess.IsNew() {
		payload := events.EventPayload{"service_code": req.ServiceCode}
		if len(tokens) > 0 {
			// Aggregators send empty text on first contact, so input for an
			// unknown session belongs to a walk that expired. Start over at
			// the root and ignore those choices from now on.
			sess.TokenOffset = len(tokens)
			payload["skipped_tokens"] = len(tokens)
			log.Info("session expired, restarting at root", zap.Int("skipped_tokens", len(tokens)))
		}
		d.event(ctx, events.SessionStarted, req, payload)
	}
	offset := min(sess.TokenOffset, len(tokens))
	res := d.Graph.Resolve(tokens[offset:])

	var reply Reply
	switch res.Status {
	case ussd.StatusContinue:
		if req.PhoneNumber != "" {
			sess.PhoneNumber = req.PhoneNumber
		}
		sess.CurrentStep = string(res.Screen.ID)
		sess.State = res.Query
		if err := d.Store.Put(ctx, sess); err != nil {
			return Reply{}, fmt.Errorf("save session %s: %w", req.SessionID, err)
		}
		reply = Reply{
			Kind:    KindContinue,
			Message: ussd.Fit(res.Screen.Render(res.Query), d.MaxChars),
			Outcome: OutcomeContinue,
			Screen:  res.Screen.ID,
		}
	case ussd.StatusInvalid:
		outcome := OutcomeInvalidChoice
		if res.Failure == ussd.FailureInvalidQuantity {
			outcome = OutcomeInvalidQuantity
		}
		log.Info("invalid input",
			zap.String("screen", string(res.Screen.ID)),
			zap.Int("position", res.Consumed),
			zap.String("token", res.Token))
		reply = d.end(d.invalidMessage(), outcome, res)
	case ussd.StatusTerminal:
		reply, err = d.terminal(ctx, req, res, log)
		if err != nil {
			return Reply{}, err
		}
	}

	if reply.Final() {
		if err := d.Store.Delete(ctx, req.SessionID); err != nil {
			return Reply{}, fmt.Errorf("clear session %s: %w", req.SessionID, err)
		}
		evt := events.SessionCompleted
		if reply.Outcome != OutcomeCompleted {
			evt = events.SessionFailed
		}
		d.event(ctx, evt, req, events.EventPayload{
			"outcome": string(reply.Outcome),
			"screen":  string(res.Screen.ID),
			"action":  string(reply.Action),
		})
	}
	metrics.USSDRequest(string(reply.Outcome))
	log.Debug("ussd reply", zap.String("outcome", string(reply.Outcome)), zap.Int("tokens", len(tokens)))
	return reply, nil
}

func (d Driver) end(msg string, outcome Outcome, res ussd.Result) Reply {
	return Reply{
		Kind:    KindEnd,
		Message: ussd.Fit(msg, d.MaxChars),
		Outcome: outcome,
		Screen:  res.Screen.ID,
		Action:  res.Action,
	}
}

func (d Driver) terminal(ctx context.Context, req Request, res ussd.Result, log *zap.Logger) (Reply, error) {
	q := res.Query
	switch res.Action {
	case ussd.ActionExit:
		return d.end(d.exitMessage(), OutcomeCompleted, res), nil
	case ussd.ActionAdvice:
		return d.end(AdviceMessage(q.Topic), OutcomeCompleted, res), nil
	case ussd.ActionBenefits:
		return d.end(benefitsMessage, OutcomeCompleted, res), nil
	case ussd.ActionRegister:
		if err := d.register(ctx, req); err != nil {
			return Reply{}, err
		}
		return d.end(d.registeredMessage(), OutcomeCompleted, res), nil
	case ussd.ActionSubmit:
		a, err := oracle.Call(ctx, d.timeout(), "assess", func(ctx context.Context) (domain.Assessment, error) {
			return d.Oracle.Assess(ctx, q)
		})
		if err != nil {
			log.Warn("oracle assess failed", zap.Error(err))
			return d.end(processingErrorMessage, OutcomeOracleFailure, res), nil
		}
		d.record(ctx, req, q, a, log)
		return d.end(FormatAssessment(q, a), OutcomeCompleted, res), nil
	case ussd.ActionPriceForecast:
		f, err := oracle.Call(ctx, d.timeout(), "price", func(ctx context.Context) (domain.PriceForecast, error) {
			return d.Oracle.ForecastPrice(ctx, q.Crop)
		})
		if err != nil {
			log.Warn("oracle price forecast failed", zap.Error(err))
			return d.end(processingErrorMessage, OutcomeOracleFailure, res), nil
		}
		return d.end(d.formatForecast(f), OutcomeCompleted, res), nil
	case ussd.ActionFindBuyers:
		buyers, err := oracle.Call(ctx, d.timeout(), "buyers", func(ctx context.Context) ([]domain.Buyer, error) {
			return d.Oracle.FindBuyers(ctx, q.Crop)
		})
		if err != nil {
			log.Warn("oracle buyer lookup failed", zap.Error(err))
			return d.end(processingErrorMessage, OutcomeOracleFailure, res), nil
		}
		return d.end(FormatBuyers(q.Crop, buyers), OutcomeCompleted, res), nil
	default:
		return d.end(d.invalidMessage(), OutcomeInvalidChoice, res), nil
	}
}

func (d Driver) timeout() time.Duration {
	if d.OracleTimeout > 0 {
		return d.OracleTimeout
	}
	return DefaultOracleTimeout
}

// record stores the prediction and refreshes the farmer profile. Failures are
// logged; the farmer still gets the assessment.
func (d Driver) record(ctx context.Context, req Request, q domain.HarvestQuery, a domain.Assessment, log *zap.Logger) {
	if d.Repo.DB == nil {
		return
	}
	r := d.Repo
	r.Now = d.Now
	if _, err := r.InsertPrediction(ctx, domain.Prediction{
		FarmerPhone:    req.PhoneNumber,
		Channel:        "ussd",
		Crop:           q.Crop,
		Quantity:       q.Quantity,
		Location:       q.Location,
		Storage:        q.Storage,
		Weather:        q.Weather,
		RiskTier:       string(a.RiskTier),
		Confidence:     a.Confidence,
		PriceEstimate:  a.PriceEstimate,
		MitigationNote: strings.Join(a.Advice, "; "),
	}); err != nil {
		log.Error("record prediction", zap.Error(err))
	}
	if req.PhoneNumber == "" {
		return
	}
	if _, err := r.UpsertFarmer(ctx, domain.Farmer{Phone: req.PhoneNumber, Location: q.Location, Crops: q.Crop}); err != nil {
		log.Error("update farmer", zap.Error(err))
	}
}

func (d Driver) register(ctx context.Context, req Request) error {
	if d.Repo.DB == nil || req.PhoneNumber == "" {
		return nil
	}
	r := d.Repo
	r.Now = d.Now
	f, err := r.UpsertFarmer(ctx, domain.Farmer{Phone: req.PhoneNumber})
	if err != nil {
		return fmt.Errorf("register farmer: %w", err)
	}
	d.event(ctx, events.FarmerRegistered, req, events.EventPayload{"farmer_id": f.ID})
	return nil
}

func (d Driver) event(ctx context.Context, evtType string, req Request, payload events.EventPayload) {
	if d.Events.DB == nil {
		return
	}
	w := d.Events
	w.Now = d.Now
	if err := w.Append(ctx, nil, evtType, req.SessionID, req.PhoneNumber, payload); err != nil {
		d.log().Warn("append event", zap.String("type", evtType), zap.Error(err))
	}
}
