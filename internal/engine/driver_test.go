package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"harvestlink/internal/config"
	"harvestlink/internal/db"
	"harvestlink/internal/domain"
	"harvestlink/internal/engine"
	"harvestlink/internal/events"
	"harvestlink/internal/migrate"
	"harvestlink/internal/repo"
	"harvestlink/internal/session"
	"harvestlink/internal/ussd"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeOracle struct {
	mu       sync.Mutex
	assessed []domain.HarvestQuery
	priced   []string
	buyersOf []string
	err      error
	block    bool
	buyers   []domain.Buyer
}

func (f *fakeOracle) Assess(ctx context.Context, q domain.HarvestQuery) (domain.Assessment, error) {
	f.mu.Lock()
	f.assessed = append(f.assessed, q)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return domain.Assessment{}, ctx.Err()
	}
	if f.err != nil {
		return domain.Assessment{}, f.err
	}
	return domain.Assessment{
		RiskTier:      domain.RiskHigh,
		Confidence:    0.82,
		PriceEstimate: 214,
		PriceTrend:    "rising",
		Advice:        []string{"Dry " + q.Crop + " urgently (within 24 hours)"},
		Recommend:     "Hold for better price",
		Buyers:        f.buyers,
	}, nil
}

func (f *fakeOracle) ForecastPrice(_ context.Context, crop string) (domain.PriceForecast, error) {
	f.mu.Lock()
	f.priced = append(f.priced, crop)
	f.mu.Unlock()
	if f.err != nil {
		return domain.PriceForecast{}, f.err
	}
	return domain.PriceForecast{Crop: crop, Price: 214, DaysAhead: 7, Trend: "rising", Recommend: "Hold for better price"}, nil
}

func (f *fakeOracle) FindBuyers(_ context.Context, crop string) ([]domain.Buyer, error) {
	f.mu.Lock()
	f.buyersOf = append(f.buyersOf, crop)
	f.mu.Unlock()
	return f.buyers, f.err
}

type testEnv struct {
	Driver engine.Driver
	Store  *session.SQLiteStore
	Oracle *fakeOracle
	Repo   repo.Repo
	Clock  *clock
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn))

	clk := &clock{t: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	store := session.NewSQLiteStore(conn, 5*time.Minute)
	store.Now = clk.Now
	orc := &fakeOracle{buyers: []domain.Buyer{
		{Name: "AgriCorp Kenya", Location: "Nairobi", Phone: "+254700123456"},
		{Name: "Grain Traders Co", Location: "Kisumu"},
	}}
	d := engine.New(store, orc, conn, config.Default(), zap.NewNop())
	d.Now = clk.Now
	return testEnv{Driver: d, Store: store, Oracle: orc, Repo: repo.Repo{DB: conn}, Clock: clk, Ctx: ctx}
}

func (env testEnv) handle(t *testing.T, text string) engine.Reply {
	t.Helper()
	reply, err := env.Driver.Handle(env.Ctx, engine.Request{SessionID: "ATUid_1", PhoneNumber: "+254711000001", ServiceCode: "*123#", Text: text})
	require.NoError(t, err)
	return reply
}

// dial opens the session with an empty first round, the way aggregators do,
// and then sends text.
func (env testEnv) dial(t *testing.T, text string) engine.Reply {
	t.Helper()
	first := env.handle(t, "")
	if text == "" {
		return first
	}
	return env.handle(t, text)
}

func (env testEnv) sessions(t *testing.T) []domain.Session {
	t.Helper()
	list, err := env.Store.List(env.Ctx)
	require.NoError(t, err)
	return list
}

func TestFirstContactShowsRootMenu(t *testing.T) {
	env := newTestEnv(t)
	reply := env.handle(t, "")
	assert.Equal(t, engine.KindContinue, reply.Kind)
	assert.Equal(t, engine.OutcomeContinue, reply.Outcome)
	assert.True(t, strings.HasPrefix(reply.String(), "CON Welcome to HarvestLink\n"))
	assert.Len(t, strings.Split(reply.Message, "\n"), 7)

	list := env.sessions(t)
	require.Len(t, list, 1)
	assert.Equal(t, string(ussd.ScreenRoot), list[0].CurrentStep)
	assert.Equal(t, "+254711000001", list[0].PhoneNumber)

	started, err := env.Repo.LatestEvents(env.Ctx, 10, events.SessionStarted, "ATUid_1")
	require.NoError(t, err)
	assert.Len(t, started, 1)
}

func TestCompleteLossFlowCallsOracle(t *testing.T) {
	env := newTestEnv(t)
	replies, err := env.Driver.Simulate(env.Ctx, "ATUid_1", "+254711000001", []string{"1", "1", "50kg", "1", "1", "1"})
	require.NoError(t, err)
	require.Len(t, replies, 7)
	for _, r := range replies[:6] {
		assert.Equal(t, engine.KindContinue, r.Kind)
	}
	assert.Equal(t, ussd.ScreenLossQuantity, replies[2].Screen)
	assert.Contains(t, replies[2].Message, "Enter quantity of maize")

	last := replies[6]
	assert.Equal(t, engine.KindEnd, last.Kind)
	assert.Equal(t, engine.OutcomeCompleted, last.Outcome)
	assert.Equal(t, ussd.ActionSubmit, last.Action)
	assert.Contains(t, last.Message, "HIGH loss risk")
	assert.Contains(t, last.Message, "AgriCorp Kenya (Nairobi)")
	assert.LessOrEqual(t, len([]rune(last.Message)), ussd.DefaultMaxChars)

	require.Len(t, env.Oracle.assessed, 1)
	assert.Equal(t, domain.HarvestQuery{Crop: "maize", Quantity: 50, Location: "Nairobi", Storage: "traditional", Weather: "dry"}, env.Oracle.assessed[0])
	assert.Empty(t, env.sessions(t))

	preds, err := env.Repo.ListPredictions(env.Ctx, "+254711000001", 0)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, "ussd", preds[0].Channel)
	assert.Equal(t, "high", preds[0].RiskTier)

	farmer, err := env.Repo.GetFarmerByPhone(env.Ctx, "+254711000001")
	require.NoError(t, err)
	assert.Equal(t, "Nairobi", farmer.Location)
	assert.Equal(t, "maize", farmer.Crops)

	done, err := env.Repo.LatestEvents(env.Ctx, 10, events.SessionCompleted, "ATUid_1")
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

func TestInvalidChoiceEndsSession(t *testing.T) {
	env := newTestEnv(t)
	env.handle(t, "")
	env.handle(t, "1")
	require.Len(t, env.sessions(t), 1)

	reply := env.handle(t, "1*9")
	assert.Equal(t, engine.KindEnd, reply.Kind)
	assert.Equal(t, engine.OutcomeInvalidChoice, reply.Outcome)
	assert.True(t, strings.HasPrefix(reply.String(), "END Invalid selection"))
	assert.Empty(t, env.sessions(t))
	assert.Empty(t, env.Oracle.assessed)

	failed, err := env.Repo.LatestEvents(env.Ctx, 10, events.SessionFailed, "ATUid_1")
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestInvalidQuantityEndsSession(t *testing.T) {
	env := newTestEnv(t)
	reply := env.dial(t, "1*1*plenty")
	assert.Equal(t, engine.KindEnd, reply.Kind)
	assert.Equal(t, engine.OutcomeInvalidQuantity, reply.Outcome)
	assert.Equal(t, ussd.ScreenLossQuantity, reply.Screen)
	assert.Empty(t, env.sessions(t))
}

func TestPriceForecastIgnoresLossState(t *testing.T) {
	env := newTestEnv(t)
	env.dial(t, "1*3*20kg")

	replies, err := env.Driver.Simulate(env.Ctx, "ATUid_2", "", []string{"2", "1"})
	require.NoError(t, err)
	require.Len(t, replies, 3)
	other := replies[2]
	assert.Equal(t, engine.KindEnd, other.Kind)
	assert.Equal(t, engine.OutcomeCompleted, other.Outcome)
	assert.True(t, strings.HasPrefix(other.Message, "MAIZE PRICE FORECAST"))
	assert.Contains(t, other.Message, "7-day trend: Rising")
	assert.Equal(t, []string{"maize"}, env.Oracle.priced)
	assert.Empty(t, env.Oracle.assessed)

	list := env.sessions(t)
	require.Len(t, list, 1)
	assert.Equal(t, "ATUid_1", list[0].ID)
}

func TestExpiredSessionStartsFresh(t *testing.T) {
	env := newTestEnv(t)
	env.dial(t, "1*1")
	before := env.sessions(t)
	require.Len(t, before, 1)
	assert.Equal(t, "maize", before[0].State.Crop)

	env.Clock.Advance(6 * time.Minute)
	reply := env.handle(t, "")
	assert.Equal(t, engine.KindContinue, reply.Kind)
	assert.Equal(t, ussd.ScreenRoot, reply.Screen)

	sess, err := env.Store.Get(env.Ctx, "ATUid_1")
	require.NoError(t, err)
	assert.Equal(t, domain.HarvestQuery{}, sess.State)
	assert.Equal(t, string(ussd.ScreenRoot), sess.CurrentStep)
	assert.True(t, sess.CreatedAt.After(before[0].CreatedAt))

	started, err := env.Repo.LatestEvents(env.Ctx, 10, events.SessionStarted, "ATUid_1")
	require.NoError(t, err)
	assert.Len(t, started, 2)
}

func TestExpiredSessionIgnoresResentInput(t *testing.T) {
	env := newTestEnv(t)
	env.dial(t, "1*1")
	env.Clock.Advance(6 * time.Minute)

	reply := env.handle(t, "1*1*50kg")
	assert.Equal(t, engine.KindContinue, reply.Kind)
	assert.Equal(t, ussd.ScreenRoot, reply.Screen)
	sess, err := env.Store.Get(env.Ctx, "ATUid_1")
	require.NoError(t, err)
	assert.Equal(t, string(ussd.ScreenRoot), sess.CurrentStep)
	assert.Equal(t, domain.HarvestQuery{}, sess.State)
	assert.Equal(t, 3, sess.TokenOffset)

	reply = env.handle(t, "1*1*50kg*2")
	assert.Equal(t, ussd.ScreenPriceCrop, reply.Screen)
	reply = env.handle(t, "1*1*50kg*2*1")
	assert.Equal(t, engine.OutcomeCompleted, reply.Outcome)
	assert.Equal(t, []string{"maize"}, env.Oracle.priced)
	assert.Empty(t, env.Oracle.assessed)

	started, err := env.Repo.LatestEvents(env.Ctx, 10, events.SessionStarted, "ATUid_1")
	require.NoError(t, err)
	require.Len(t, started, 2)
	assert.Contains(t, started[0].Payload, `"skipped_tokens":3`)
}

func TestPurgedSessionIgnoresResentInput(t *testing.T) {
	env := newTestEnv(t)
	env.dial(t, "1*2*20kg")
	env.Clock.Advance(6 * time.Minute)
	n, err := env.Store.Purge(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	reply := env.handle(t, "1*2*20kg*1")
	assert.Equal(t, engine.KindContinue, reply.Kind)
	assert.Equal(t, ussd.ScreenRoot, reply.Screen)
	assert.Empty(t, env.Oracle.assessed)
}

func TestBackNavigationKeepsSessionOpen(t *testing.T) {
	env := newTestEnv(t)
	reply := env.dial(t, "1*1*0")
	assert.Equal(t, engine.KindContinue, reply.Kind)
	assert.Equal(t, ussd.ScreenLossCrop, reply.Screen)

	list := env.sessions(t)
	require.Len(t, list, 1)
	assert.Equal(t, domain.HarvestQuery{}, list[0].State)
}

func TestOracleFailureEndsSession(t *testing.T) {
	env := newTestEnv(t)
	env.Oracle.err = errors.New("model offline")
	reply := env.dial(t, "1*1*50kg*1*1*1")
	assert.Equal(t, engine.KindEnd, reply.Kind)
	assert.Equal(t, engine.OutcomeOracleFailure, reply.Outcome)
	assert.Contains(t, reply.Message, "could not process")
	assert.Empty(t, env.sessions(t))

	preds, err := env.Repo.ListPredictions(env.Ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, preds)

	reply = env.dial(t, "3*1")
	assert.Equal(t, engine.OutcomeOracleFailure, reply.Outcome)
}

func TestOracleTimeout(t *testing.T) {
	env := newTestEnv(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	env.Oracle.block = true
	env.Driver.OracleTimeout = 50 * time.Millisecond

	start := time.Now()
	reply := env.dial(t, "1*2*1 ton*3*4*2")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, engine.OutcomeOracleFailure, reply.Outcome)
	require.Len(t, env.Oracle.assessed, 1)
	assert.Equal(t, 1000.0, env.Oracle.assessed[0].Quantity)
}

// brokenStore fails the operation named by failOn and delegates the rest.
type brokenStore struct {
	session.Store
	failOn string
}

func (s brokenStore) fail(op string) error {
	if s.failOn == op {
		return fmt.Errorf("%w: %s: disk I/O error", session.ErrUnavailable, op)
	}
	return nil
}

func (s brokenStore) Get(ctx context.Context, id string) (domain.Session, error) {
	if err := s.fail("get"); err != nil {
		return domain.Session{}, err
	}
	return s.Store.Get(ctx, id)
}

func (s brokenStore) Put(ctx context.Context, sess domain.Session) error {
	if err := s.fail("put"); err != nil {
		return err
	}
	return s.Store.Put(ctx, sess)
}

func (s brokenStore) Delete(ctx context.Context, id string) error {
	if err := s.fail("delete"); err != nil {
		return err
	}
	return s.Store.Delete(ctx, id)
}

func TestStorageFailureIsReturned(t *testing.T) {
	for _, tc := range []struct {
		op   string
		text string
	}{
		{op: "get", text: "1"},
		{op: "put", text: "1"},
		{op: "delete", text: "1*9"},
	} {
		t.Run(tc.op, func(t *testing.T) {
			env := newTestEnv(t)
			env.handle(t, "")
			env.Driver.Store = brokenStore{Store: env.Store, failOn: tc.op}
			_, err := env.Driver.Handle(env.Ctx, engine.Request{SessionID: "ATUid_1", Text: tc.text})
			assert.ErrorIs(t, err, session.ErrUnavailable)
		})
	}
}

func TestMissingSessionID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Driver.Handle(env.Ctx, engine.Request{SessionID: " ", Text: ""})
	assert.ErrorIs(t, err, engine.ErrMissingSessionID)
}

func TestRepliesFitScreenBudget(t *testing.T) {
	env := newTestEnv(t)
	env.Driver.MaxChars = 60
	reply := env.dial(t, "1*4*10*2*5*3")
	assert.Equal(t, engine.OutcomeCompleted, reply.Outcome)
	assert.LessOrEqual(t, len([]rune(reply.Message)), 60)
	assert.True(t, strings.HasPrefix(reply.Message, "HIGH loss risk"))
}

func TestRegisterAndBenefits(t *testing.T) {
	env := newTestEnv(t)
	reply := env.dial(t, "5*1")
	assert.Equal(t, engine.OutcomeCompleted, reply.Outcome)
	assert.Contains(t, reply.Message, "registered")
	_, err := env.Repo.GetFarmerByPhone(env.Ctx, "+254711000001")
	require.NoError(t, err)
	evts, err := env.Repo.LatestEvents(env.Ctx, 10, events.FarmerRegistered, "")
	require.NoError(t, err)
	assert.Len(t, evts, 1)

	reply = env.dial(t, "5*2")
	assert.Equal(t, engine.OutcomeCompleted, reply.Outcome)
	assert.Contains(t, reply.Message, "HarvestLink members get")
}

func TestAdviceExitAndBuyers(t *testing.T) {
	env := newTestEnv(t)
	reply := env.dial(t, "4*2")
	assert.True(t, strings.HasPrefix(reply.Message, "Pest control:"))

	reply = env.dial(t, "0")
	assert.Equal(t, engine.KindEnd, reply.Kind)
	assert.True(t, strings.HasPrefix(reply.Message, "Thank you for using HarvestLink!"))

	reply = env.dial(t, "3*6")
	assert.Equal(t, engine.OutcomeCompleted, reply.Outcome)
	assert.True(t, strings.HasPrefix(reply.Message, "BUYERS FOR ALL CROPS:"))
	assert.Contains(t, reply.Message, "1. AgriCorp Kenya (Nairobi) +254700123456")
	assert.Equal(t, []string{"all"}, env.Oracle.buyersOf)

	env.Oracle.buyers = nil
	reply = env.dial(t, "3*5")
	assert.Equal(t, "No buyers found for tomatoes.\nWe'll notify you when available.", reply.Message)
}

func TestConcurrentSessions(t *testing.T) {
	env := newTestEnv(t)
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies, err := env.Driver.Simulate(env.Ctx, fmt.Sprintf("sess-%d", i), fmt.Sprintf("+2547000000%02d", i),
				[]string{"1", "2", "30kg", "3", "2", "2"})
			if err != nil {
				errs <- err
				return
			}
			if last := replies[len(replies)-1]; last.Outcome != engine.OutcomeCompleted {
				errs <- fmt.Errorf("session %d ended with %s", i, last.Outcome)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Len(t, env.Oracle.assessed, 10)
	assert.Empty(t, env.sessions(t))
}
