package runner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mjessen/stockalerts/internal/delta"
	"github.com/mjessen/stockalerts/internal/models"
	"github.com/mjessen/stockalerts/internal/ntfy"
)

type fakeGate struct{ open bool }

func (g fakeGate) Open() bool { return g.open }

type fakeState struct {
	st    map[string]models.TickerSnapshot
	saves []map[string]models.TickerSnapshot
}

func newFakeState() *fakeState {
	return &fakeState{st: map[string]models.TickerSnapshot{}}
}

func (s *fakeState) Load() map[string]models.TickerSnapshot { return s.st }

func (s *fakeState) Save(st map[string]models.TickerSnapshot) error {
	copied := make(map[string]models.TickerSnapshot, len(st))
	for k, v := range st {
		copied[k] = v
	}
	s.saves = append(s.saves, copied)
	return nil
}

type fakePrices struct {
	open, last map[string]float64
	errs       map[string]error
}

func (p *fakePrices) OpenAndLast(_ context.Context, ticker string) (float64, float64, error) {
	if err, ok := p.errs[ticker]; ok {
		return 0, 0, err
	}
	return p.open[ticker], p.last[ticker], nil
}

type fakeResolver struct{ name string }

func (r fakeResolver) AutoKeywords(_ context.Context, ticker string) (string, []string) {
	if r.name == "" {
		return ticker, []string{ticker}
	}
	return r.name, []string{r.name, ticker}
}

type fakeHeadlines struct {
	items []models.HeadlineItem
	err   error
	calls int
}

func (h *fakeHeadlines) AlertHeadlines(_ context.Context, _, _ string, _ []string) ([]models.HeadlineItem, error) {
	h.calls++
	return h.items, h.err
}

func (h *fakeHeadlines) FormatHeadlines(_ context.Context, items []models.HeadlineItem) string {
	if len(items) == 0 {
		return ""
	}
	return "\n\nNEWS-BLOCK"
}

type fakePusher struct {
	published []ntfy.Notification
	err       error
}

func (p *fakePusher) Publish(_ context.Context, n ntfy.Notification) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, n)
	return nil
}

type fakeRecorder struct{ records []models.AlertRecord }

func (r *fakeRecorder) Record(rec models.AlertRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type fakeMirror struct{ sent []models.AlertRecord }

func (m *fakeMirror) SendAlert(rec models.AlertRecord, _ []models.HeadlineItem) error {
	m.sent = append(m.sent, rec)
	return nil
}

type testHarness struct {
	state     *fakeState
	prices    *fakePrices
	headlines *fakeHeadlines
	pusher    *fakePusher
	recorder  *fakeRecorder
	mirror    *fakeMirror
	runner    *Runner
}

func newHarness(t *testing.T, cfg Config, thresholdPct float64) *testHarness {
	t.Helper()
	h := &testHarness{
		state:     newFakeState(),
		prices:    &fakePrices{open: map[string]float64{}, last: map[string]float64{}, errs: map[string]error{}},
		headlines: &fakeHeadlines{},
		pusher:    &fakePusher{},
		recorder:  &fakeRecorder{},
		mirror:    &fakeMirror{},
	}
	h.runner = New(cfg, Deps{
		Gate:      fakeGate{open: true},
		State:     h.state,
		Prices:    h.prices,
		Evaluator: delta.New(thresholdPct, delta.Override{}, zerolog.Nop()),
		Resolver:  fakeResolver{name: "Apple"},
		Headlines: h.headlines,
		Pusher:    h.pusher,
		Mirror:    h.mirror,
		Recorder:  h.recorder,
	}, zerolog.Nop())
	return h
}

func TestRunAlertFires(t *testing.T) {
	h := newHarness(t, Config{Tickers: []string{"AAPL"}, NewsEnabled: true}, 3.0)
	h.prices.open["AAPL"] = 100
	h.prices.last["AAPL"] = 104
	h.headlines.items = []models.HeadlineItem{{Title: "Apple Q3 Results", Source: "Reuters"}}

	report := h.runner.Run(context.Background())

	if report.Skipped {
		t.Fatal("cycle skipped unexpectedly")
	}
	if report.Alerted != 1 || len(report.Failures) != 0 {
		t.Fatalf("report = %+v", report)
	}

	if len(h.pusher.published) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(h.pusher.published))
	}
	n := h.pusher.published[0]
	if !strings.Contains(n.Title, "AAPL") || !strings.Contains(n.Title, "+4.00%") {
		t.Errorf("unexpected title: %q", n.Title)
	}
	if !strings.Contains(n.Message, "NEWS-BLOCK") {
		t.Errorf("message missing news block: %q", n.Message)
	}
	if !n.Markdown {
		t.Error("expected markdown when a news block is present")
	}
	if n.ClickURL != "https://finance.yahoo.com/quote/AAPL" {
		t.Errorf("click URL = %q", n.ClickURL)
	}

	if len(h.state.saves) != 1 {
		t.Fatalf("expected 1 state save, got %d", len(h.state.saves))
	}
	snap := h.state.saves[0]["AAPL"]
	if snap.OpenPrice != 100 || snap.LastPrice != 104 || !snap.Alerted {
		t.Errorf("persisted snapshot = %+v", snap)
	}

	if len(h.recorder.records) != 1 || h.recorder.records[0].HeadlineCount != 1 {
		t.Errorf("history records = %+v", h.recorder.records)
	}
	if len(h.mirror.sent) != 1 {
		t.Errorf("mirror calls = %d, want 1", len(h.mirror.sent))
	}
}

func TestRunBelowThreshold(t *testing.T) {
	h := newHarness(t, Config{Tickers: []string{"AAPL"}, NewsEnabled: true}, 3.0)
	h.prices.open["AAPL"] = 100
	h.prices.last["AAPL"] = 101

	report := h.runner.Run(context.Background())

	if report.Alerted != 0 {
		t.Errorf("Alerted = %d, want 0", report.Alerted)
	}
	if len(h.pusher.published) != 0 {
		t.Errorf("expected no notifications, got %d", len(h.pusher.published))
	}
	if h.headlines.calls != 0 {
		t.Error("headlines fetched without an alert")
	}

	// The snapshot is still written so the next cycle sees alerted=false.
	if len(h.state.saves) != 1 {
		t.Fatalf("expected 1 state save, got %d", len(h.state.saves))
	}
	snap := h.state.saves[0]["AAPL"]
	if snap.Alerted {
		t.Errorf("persisted snapshot = %+v, want alerted=false", snap)
	}
}

func TestRunGateClosed(t *testing.T) {
	h := newHarness(t, Config{Tickers: []string{"AAPL"}}, 3.0)
	h.runner.deps.Gate = fakeGate{open: false}
	h.prices.open["AAPL"] = 100
	h.prices.last["AAPL"] = 104

	report := h.runner.Run(context.Background())

	if !report.Skipped {
		t.Error("expected skipped cycle")
	}
	if len(h.pusher.published) != 0 || len(h.state.saves) != 0 {
		t.Error("closed gate must not process tickers")
	}
}

func TestRunGateClosedWithBypass(t *testing.T) {
	h := newHarness(t, Config{Tickers: []string{"AAPL"}, BypassMarketHours: true}, 3.0)
	h.runner.deps.Gate = fakeGate{open: false}
	h.prices.open["AAPL"] = 100
	h.prices.last["AAPL"] = 104

	report := h.runner.Run(context.Background())

	if report.Skipped {
		t.Error("bypass must proceed through a closed gate")
	}
	if report.Alerted != 1 {
		t.Errorf("Alerted = %d, want 1", report.Alerted)
	}
}

func TestRunPerTickerIsolationAndWriteThrough(t *testing.T) {
	h := newHarness(t, Config{Tickers: []string{"BAD", "AAPL"}}, 3.0)
	h.prices.errs["BAD"] = errors.New("connection refused")
	h.prices.open["AAPL"] = 100
	h.prices.last["AAPL"] = 104

	report := h.runner.Run(context.Background())

	if len(report.Failures) != 1 {
		t.Fatalf("failures = %+v", report.Failures)
	}
	if report.Failures[0].Ticker != "BAD" || report.Failures[0].Stage != "price" {
		t.Errorf("unexpected failure: %+v", report.Failures[0])
	}

	// The failing ticker writes nothing; the healthy one is persisted.
	if len(h.state.saves) != 1 {
		t.Fatalf("expected 1 state save, got %d", len(h.state.saves))
	}
	if _, ok := h.state.saves[0]["BAD"]; ok {
		t.Error("failed ticker must not be persisted")
	}
	if _, ok := h.state.saves[0]["AAPL"]; !ok {
		t.Error("healthy ticker missing from persisted state")
	}
	if report.Alerted != 1 {
		t.Errorf("Alerted = %d, want 1", report.Alerted)
	}
}

func TestRunZeroOpenPrice(t *testing.T) {
	h := newHarness(t, Config{Tickers: []string{"AAPL"}}, 3.0)
	h.prices.open["AAPL"] = 0
	h.prices.last["AAPL"] = 104

	report := h.runner.Run(context.Background())

	if len(report.Failures) != 1 || report.Failures[0].Stage != "delta" {
		t.Fatalf("failures = %+v", report.Failures)
	}
	var zerr *delta.ZeroOpenPriceError
	if !errors.As(report.Failures[0], &zerr) {
		t.Errorf("expected ZeroOpenPriceError, got %v", report.Failures[0].Err)
	}
	if len(h.state.saves) != 0 {
		t.Error("zero-open ticker must not be persisted")
	}
}

func TestRunPushFailureStillPersists(t *testing.T) {
	h := newHarness(t, Config{Tickers: []string{"AAPL"}}, 3.0)
	h.prices.open["AAPL"] = 100
	h.prices.last["AAPL"] = 104
	h.pusher.err = errors.New("ntfy unreachable")

	report := h.runner.Run(context.Background())

	if len(report.Failures) != 1 || report.Failures[0].Stage != "push" {
		t.Fatalf("failures = %+v", report.Failures)
	}
	if len(h.state.saves) != 1 {
		t.Fatal("snapshot must persist when only delivery failed")
	}
	if !h.state.saves[0]["AAPL"].Alerted {
		t.Error("persisted snapshot should record the fired decision")
	}
}

func TestRunHeadlineFailureDegrades(t *testing.T) {
	h := newHarness(t, Config{Tickers: []string{"AAPL"}, NewsEnabled: true}, 3.0)
	h.prices.open["AAPL"] = 100
	h.prices.last["AAPL"] = 104
	h.headlines.err = errors.New("feed timeout")

	report := h.runner.Run(context.Background())

	if len(report.Failures) != 0 {
		t.Errorf("headline failure must not fail the ticker: %+v", report.Failures)
	}
	if len(h.pusher.published) != 1 {
		t.Fatalf("expected notification despite headline failure, got %d", len(h.pusher.published))
	}
	if strings.Contains(h.pusher.published[0].Message, "NEWS-BLOCK") {
		t.Error("message should not contain news after fetch failure")
	}
}

func TestRunNewsDisabled(t *testing.T) {
	h := newHarness(t, Config{Tickers: []string{"AAPL"}, NewsEnabled: false}, 3.0)
	h.prices.open["AAPL"] = 100
	h.prices.last["AAPL"] = 104

	h.runner.Run(context.Background())

	if h.headlines.calls != 0 {
		t.Error("headlines fetched with news disabled")
	}
	if len(h.pusher.published) != 1 {
		t.Fatalf("expected notification, got %d", len(h.pusher.published))
	}
	if h.pusher.published[0].Markdown {
		t.Error("plain price alert should not enable markdown")
	}
}

func TestRunForcedDelta(t *testing.T) {
	forced := 5.0
	h := newHarness(t, Config{Tickers: []string{"AAPL"}}, 3.0)
	h.runner.deps.Evaluator = delta.New(3.0, delta.Override{Enabled: true, ForcePct: &forced}, zerolog.Nop())
	h.prices.open["AAPL"] = 100
	h.prices.last["AAPL"] = 100.5

	report := h.runner.Run(context.Background())

	if report.Alerted != 1 {
		t.Fatalf("Alerted = %d, want 1", report.Alerted)
	}
	snap := h.state.saves[0]["AAPL"]
	if snap.LastPrice != 105.0 {
		t.Errorf("persisted last price = %f, want recomputed 105.0", snap.LastPrice)
	}
}
