package portfolio

import (
	"errors"
	"math"
	"testing"
	"time"

	"SignalScanner/internal/model"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func balanced(p model.Portfolio) bool {
	return math.Abs(p.AvailableBalance+p.UsedBalance-p.TotalBalance) < 1e-6 &&
		math.Abs(p.InitialBalance+p.TotalPnL-p.TotalBalance) < 1e-6
}

func TestAccountant_AllocateRelease(t *testing.T) {
	a := NewAccountant(1000, 50, 5)

	p, err := a.Allocate(50)
	if err != nil {
		t.Fatal(err)
	}
	if p.AvailableBalance != 950 || p.UsedBalance != 50 || p.TotalBalance != 1000 {
		t.Errorf("after allocate: %+v", p)
	}

	p, err = a.Release(50, 25)
	if err != nil {
		t.Fatal(err)
	}
	if p.AvailableBalance != 1025 || p.UsedBalance != 0 || p.TotalBalance != 1025 {
		t.Errorf("after release: %+v", p)
	}
	if p.TotalPnL != 25 {
		t.Errorf("total pnl = %v, want 25", p.TotalPnL)
	}
}

func TestAccountant_InsufficientCapital(t *testing.T) {
	a := NewAccountant(60, 50, 5)
	if _, err := a.Allocate(50); err != nil {
		t.Fatal(err)
	}
	p, err := a.Allocate(50)
	if !errors.Is(err, ErrInsufficientCapital) {
		t.Fatalf("err = %v, want ErrInsufficientCapital", err)
	}
	if p.AvailableBalance != 10 || p.UsedBalance != 50 {
		t.Errorf("failed allocation must not change balances: %+v", p)
	}
}

func TestAccountant_LossBelowZeroStaysBalanced(t *testing.T) {
	a := NewAccountant(50, 50, 5)
	if _, err := a.Allocate(50); err != nil {
		t.Fatal(err)
	}
	p, err := a.Release(50, -60)
	if err != nil {
		t.Fatal(err)
	}
	if !balanced(p) {
		t.Errorf("unbalanced: %+v", p)
	}
	if p.TotalBalance != -10 {
		t.Errorf("total = %v, want -10", p.TotalBalance)
	}
}

func TestAccountant_Restore(t *testing.T) {
	a := NewAccountant(1000, 50, 5)
	snap := model.Portfolio{InitialBalance: 1000, TotalBalance: 1010, AvailableBalance: 960, UsedBalance: 50, TotalPnL: 10, UpdatedAt: time.Now()}
	if err := a.Restore(snap); err != nil {
		t.Fatal(err)
	}
	if got := a.Snapshot(); got.AvailableBalance != 960 || got.TotalBalance != 1010 {
		t.Errorf("restored = %+v", got)
	}

	tests := []struct {
		name string
		edit func(p *model.Portfolio)
	}{
		{"used does not add up", func(p *model.Portfolio) { p.UsedBalance = 10 }},
		{"pnl does not add up", func(p *model.Portfolio) { p.TotalPnL = 0 }},
		{"negative used", func(p *model.Portfolio) {
			*p = model.Portfolio{InitialBalance: 1000, TotalBalance: 1010, AvailableBalance: 1060, UsedBalance: -50, TotalPnL: 10}
		}},
	}
	for _, tt := range tests {
		bad := snap
		tt.edit(&bad)
		if err := a.Restore(bad); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
	if got := a.Snapshot(); got.AvailableBalance != 960 {
		t.Errorf("rejected snapshot changed the pool: %+v", got)
	}
}

func TestAccountant_OverRelease(t *testing.T) {
	a := NewAccountant(1000, 50, 5)
	if _, err := a.Allocate(50); err != nil {
		t.Fatal(err)
	}
	p, err := a.Release(80, 5)
	if !errors.Is(err, ErrOverRelease) {
		t.Fatalf("err = %v, want ErrOverRelease", err)
	}
	if p.UsedBalance != 0 || p.TotalPnL != 5 || !balanced(p) {
		t.Errorf("after over-release: %+v", p)
	}
}

func TestAccountant_Reconcile(t *testing.T) {
	tests := []struct {
		name      string
		snap      *model.Portfolio
		pnl       float64
		committed float64
		wantTotal float64
		wantUsed  float64
		changed   bool
	}{
		{
			name:      "crash after open, snapshot missed the allocation",
			snap:      &model.Portfolio{InitialBalance: 1000, TotalBalance: 1000, AvailableBalance: 1000},
			committed: 50,
			wantTotal: 1000,
			wantUsed:  50,
			changed:   true,
		},
		{
			name:      "crash after close, snapshot missed the pnl",
			snap:      &model.Portfolio{InitialBalance: 1000, TotalBalance: 1000, AvailableBalance: 950, UsedBalance: 50},
			pnl:       25,
			wantTotal: 1025,
			changed:   true,
		},
		{
			name:      "consistent snapshot",
			snap:      &model.Portfolio{InitialBalance: 1000, TotalBalance: 1010, AvailableBalance: 960, UsedBalance: 50, TotalPnL: 10},
			pnl:       10,
			committed: 50,
			wantTotal: 1010,
			wantUsed:  50,
		},
		{
			name:      "no snapshot yet",
			committed: 100,
			wantTotal: 1000,
			wantUsed:  100,
			changed:   true,
		},
		{
			name:      "losses leave less than is committed",
			pnl:       -980,
			committed: 50,
			wantTotal: 20,
			wantUsed:  50,
			changed:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAccountant(1000, 50, 5)
			if tt.snap != nil {
				if err := a.Restore(*tt.snap); err != nil {
					t.Fatal(err)
				}
			}
			p, changed := a.Reconcile(tt.pnl, tt.committed)
			if changed != tt.changed {
				t.Errorf("changed = %v, want %v", changed, tt.changed)
			}
			if p.TotalBalance != tt.wantTotal || p.UsedBalance != tt.wantUsed || !balanced(p) {
				t.Errorf("portfolio = %+v", p)
			}
		})
	}
}

// Property: any sequence of allocations and releases keeps
// available + used == total within 1e-6.
func TestProperty_BalanceInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("available + used == total and total == initial + pnl", prop.ForAll(
		func(initial float64, ops []float64) bool {
			a := NewAccountant(initial, 50, 5)
			var open []float64
			for _, v := range ops {
				if v >= 0 || len(open) == 0 {
					size := math.Abs(v) * 3
					if _, err := a.Allocate(size); err == nil {
						open = append(open, size)
					}
				} else {
					size := open[len(open)-1]
					open = open[:len(open)-1]
					a.Release(size, v)
				}
				if !balanced(a.Snapshot()) {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0, 5000),
		gen.SliceOf(gen.Float64Range(-40, 40)),
	))

	properties.TestingRun(t)
}
