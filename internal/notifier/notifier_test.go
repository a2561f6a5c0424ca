package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"SignalScanner/internal/model"
	"SignalScanner/internal/recorder"

	"github.com/rs/zerolog"
)

func TestTelegramNotifier_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	n.BaseURL = srv.URL
	if err := n.Notify(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if got["chat_id"] != "42" || got["text"] != "hello" || got["parse_mode"] != "HTML" {
		t.Errorf("payload = %v", got)
	}
}

func TestTelegramNotifier_RetryExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"ok":false}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	n.BaseURL = srv.URL
	err := n.SendWithRetry(context.Background(), "hello", 0)
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Errorf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestFormatTradeClosed(t *testing.T) {
	entry := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	msg := FormatTradeClosed(model.ClosedTrade{
		Symbol: "BTCUSDT", Strategy: model.StrategyMomentum, Direction: model.DirectionLong,
		EntryPrice: 100, ExitPrice: 110, EntryTime: entry, ExitTime: entry.Add(90 * time.Minute),
		PnLPercent: 10, PnLUSD: 25, ExitReason: model.ExitVWAPBreak,
	})
	for _, want := range []string{"[MOMENTUM]", "VWAP_BREAK", "+10.00%", "+$25", "1h30m"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatPortfolio(t *testing.T) {
	msg := FormatPortfolio(model.Portfolio{
		InitialBalance: 1000, TotalBalance: 1234.5, AvailableBalance: 1184.5, UsedBalance: 50, TotalPnL: 234.5,
	})
	for _, want := range []string{"$1,234.5", "+$234.5", "+23.45%"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	fresh := &recorder.CycleReport{StartedAt: now.Add(-70 * time.Second), FinishedAt: now.Add(-time.Minute), Symbols: 3}
	if msg := FormatStatus(fresh, 2*time.Minute, now); !strings.Contains(msg, "online") {
		t.Errorf("fresh cycle: %s", msg)
	}
	stale := &recorder.CycleReport{FinishedAt: now.Add(-10 * time.Minute)}
	if msg := FormatStatus(stale, 2*time.Minute, now); !strings.Contains(msg, "offline") {
		t.Errorf("stale cycle: %s", msg)
	}
}

type fakeRecorder struct {
	recorder.NoopRecorder
	portfolio *model.Portfolio
	positions []model.Position
}

func (f *fakeRecorder) LoadPortfolio(context.Context) (*model.Portfolio, error) { return f.portfolio, nil }

func (f *fakeRecorder) OpenPositions(context.Context) ([]model.Position, error) { return f.positions, nil }

func TestCommands_Handle(t *testing.T) {
	rec := &fakeRecorder{
		portfolio: &model.Portfolio{InitialBalance: 1000, TotalBalance: 1000, AvailableBalance: 950, UsedBalance: 50},
		positions: []model.Position{{Symbol: "ETHUSDT", Strategy: model.StrategySwing, Direction: model.DirectionLong, EntryPrice: 3000, EntryTime: time.Now()}},
	}
	c := &Commands{Recorder: rec, StaleAfter: 2 * time.Minute}

	tests := []struct {
		command string
		want    string
	}{
		{"/portfolio", "$950"},
		{"/positions", "ETHUSDT"},
		{"/status", "not completed"},
		{"/help", "/positions"},
	}
	for _, tt := range tests {
		if got := c.Handle(context.Background(), tt.command); !strings.Contains(got, tt.want) {
			t.Errorf("Handle(%q) = %q, want substring %q", tt.command, got, tt.want)
		}
	}
}
