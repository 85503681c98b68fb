package storefront

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/pickup-storefront/internal/availability"
	"github.com/mmeshcher/pickup-storefront/internal/capacity"
	"github.com/mmeshcher/pickup-storefront/internal/cart"
	"github.com/mmeshcher/pickup-storefront/internal/checkout"
	"github.com/mmeshcher/pickup-storefront/internal/model"
	"github.com/mmeshcher/pickup-storefront/internal/validation"
)

var testNow = time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu        sync.Mutex
	counts    model.RemoteCounts
	fetchErr  error
	submitErr error
	fetches   int
	orders    []model.OrderPayload
}

func (f *fakeBackend) FetchCounts(ctx context.Context) (model.RemoteCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.counts.Clone(), nil
}

func (f *fakeBackend) Submit(ctx context.Context, payload model.OrderPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.orders = append(f.orders, payload)
	if f.counts == nil {
		f.counts = model.RemoteCounts{}
	}
	f.counts[payload.PickupDate] += payload.TotalQuantity()
	return nil
}

func newTestDeps(t *testing.T, backend *fakeBackend) Deps {
	t.Helper()

	rules, err := availability.ParseRules(availability.RulesConfig{
		MinLeadDays:     1,
		MaxLeadDays:     30,
		BlockedWeekdays: []string{"sunday"},
		DailyLimit:      8,
		Timezone:        "UTC",
	})
	require.NoError(t, err)

	engine := availability.NewEngine(rules, func() time.Time { return testNow })
	syncer := capacity.NewSyncer(backend, nil)
	coordinator := checkout.NewCoordinator(backend, syncer, engine, nil)

	return Deps{Capacity: syncer, Engine: engine, Coordinator: coordinator}
}

func wednesday() time.Time {
	return time.Date(2026, time.October, 21, 0, 0, 0, 0, time.UTC)
}

func TestSession_CartGrowthClosesDate(t *testing.T) {
	backend := &fakeBackend{counts: model.RemoteCounts{"2026-10-21": 5}}
	deps := newTestDeps(t, backend)
	deps.Capacity.Refresh(context.Background())
	s := NewSession("s1", deps)
	defer s.Close()

	require.NoError(t, s.AddItem("Sourdough", "Large", "3", decimal.RequireFromString("4")))
	assert.True(t, s.DateAllowed(wednesday()))

	require.NoError(t, s.Cart().Increment(0))
	assert.False(t, s.DateAllowed(wednesday()))
	assert.Equal(t, availability.ReasonCapacity, s.Evaluate(wednesday()).Reason)

	require.NoError(t, s.Cart().Decrement(0))
	assert.True(t, s.DateAllowed(wednesday()))
}

func TestSession_AddItemRejectsMalformedQuantity(t *testing.T) {
	s := NewSession("s1", newTestDeps(t, &fakeBackend{}))
	defer s.Close()

	for _, raw := range []string{"", "0", "abc", "-1"} {
		err := s.AddItem("Sourdough", "Large", raw, decimal.RequireFromString("4"))
		assert.ErrorIs(t, err, validation.ErrInvalidQuantity, raw)
	}
	assert.True(t, s.Cart().IsEmpty())
}

func TestSession_OversizedQuantityCannotBypassCapacity(t *testing.T) {
	backend := &fakeBackend{counts: model.RemoteCounts{"2026-10-21": 1}}
	deps := newTestDeps(t, backend)
	deps.Capacity.Refresh(context.Background())
	s := NewSession("s1", deps)
	defer s.Close()

	err := s.AddItem("Rye", "Loaf", "9223372036854775807", decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, validation.ErrInvalidQuantity)
	assert.True(t, s.Cart().IsEmpty())

	require.NoError(t, s.AddItem("Rye", "Loaf", "999", decimal.RequireFromString("1")))
	assert.ErrorIs(t, s.AddItem("Rye", "Loaf", "1", decimal.RequireFromString("1")), cart.ErrQuantityLimit)
	assert.Equal(t, 999, s.Cart().TotalQuantity())

	dec := s.Evaluate(wednesday())
	assert.False(t, dec.Allowed)
	assert.Equal(t, availability.ReasonCapacity, dec.Reason)
	assert.Equal(t, 1000, dec.Used)
}

func TestSession_FormValidityTracksEveryChange(t *testing.T) {
	s := NewSession("s1", newTestDeps(t, &fakeBackend{}))
	defer s.Close()

	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	s.SetForm(model.FormState{Name: "Ann", Contact: "555-0100", PickupDate: "2026-10-21"})
	assert.False(t, s.FormValid())

	require.NoError(t, s.AddItem("Muffin", "Single", "2", decimal.RequireFromString("2.50")))
	assert.True(t, s.FormValid())

	require.NoError(t, s.Cart().Remove(0))
	assert.False(t, s.FormValid())

	require.Len(t, changes, 3)
	assert.Equal(t, ChangeForm, changes[0].Source)
	assert.Equal(t, ChangeCart, changes[1].Source)
	assert.True(t, changes[1].FormValid)
	assert.True(t, changes[1].PickupDateAllowed)
	assert.Equal(t, 2, changes[1].TotalQuantity)
	assert.False(t, changes[2].FormValid)
}

func TestSession_CapacityRefreshNotifies(t *testing.T) {
	backend := &fakeBackend{counts: model.RemoteCounts{"2026-10-21": 8}}
	s := NewSession("s1", newTestDeps(t, backend))
	defer s.Close()

	s.SetForm(model.FormState{PickupDate: "2026-10-21"})

	var last Change
	s.Subscribe(func(c Change) { last = c })

	assert.True(t, s.DateAllowed(wednesday()))
	s.RefreshCapacity(context.Background())

	assert.Equal(t, ChangeCapacity, last.Source)
	assert.True(t, last.PickupDateAllowed, "8 of 8 with an empty cart is still within the limit")

	require.NoError(t, s.AddItem("Muffin", "Single", "1", decimal.RequireFromString("2.50")))
	assert.Equal(t, ChangeCart, last.Source)
	assert.False(t, last.PickupDateAllowed)
	assert.False(t, s.DateAllowed(wednesday()))
}

func TestSession_CountsFetchFailureFallsBackToStaticRules(t *testing.T) {
	backend := &fakeBackend{fetchErr: errors.New("timeout")}
	s := NewSession("s1", newTestDeps(t, backend))
	defer s.Close()

	counts := s.RefreshCapacity(context.Background())
	assert.Empty(t, counts)

	require.NoError(t, s.AddItem("Muffin", "Single", "8", decimal.RequireFromString("2.50")))
	assert.True(t, s.DateAllowed(wednesday()))
	assert.False(t, s.DateAllowed(time.Date(2026, time.October, 25, 0, 0, 0, 0, time.UTC)))
}

func TestSession_SubmitSuccessClearsCartAndRefetches(t *testing.T) {
	backend := &fakeBackend{counts: model.RemoteCounts{"2026-10-21": 4}}
	s := NewSession("s1", newTestDeps(t, backend))
	defer s.Close()
	s.RefreshCapacity(context.Background())

	require.NoError(t, s.AddItem("Sourdough", "Large", "4", decimal.RequireFromString("4")))
	s.SetForm(model.FormState{Name: "Ann", Contact: "555-0100", PickupDate: "2026-10-21"})
	require.True(t, s.FormValid())

	outcome, err := s.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeAccepted, outcome.Status)
	assert.True(t, s.Cart().IsEmpty())
	assert.False(t, s.FormValid())
	assert.Equal(t, 2, backend.fetches)
	assert.Equal(t, 8, s.Counts()["2026-10-21"])
	assert.True(t, s.DateAllowed(wednesday()))

	require.NoError(t, s.AddItem("Sourdough", "Large", "1", decimal.RequireFromString("4")))
	assert.False(t, s.DateAllowed(wednesday()))
}

func TestSession_SubmitFailureKeepsCart(t *testing.T) {
	backend := &fakeBackend{submitErr: errors.New("broken pipe")}
	s := NewSession("s1", newTestDeps(t, backend))
	defer s.Close()

	require.NoError(t, s.AddItem("Sourdough", "Large", "2", decimal.RequireFromString("4")))
	s.SetForm(model.FormState{Name: "Ann", Contact: "555-0100", PickupDate: "2026-10-21"})
	before := s.Cart().Lines()

	outcome, err := s.Submit(context.Background())

	require.ErrorIs(t, err, checkout.ErrTransport)
	assert.Equal(t, model.OutcomeFailed, outcome.Status)
	assert.Equal(t, before, s.Cart().Lines())
	assert.Equal(t, 0, backend.fetches)
	assert.True(t, s.FormValid())
}

func TestSession_CloseStopsCapacityNotifications(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{})
	s := NewSession("s1", deps)

	calls := 0
	s.Subscribe(func(Change) { calls++ })
	s.Close()

	deps.Capacity.Refresh(context.Background())
	assert.Equal(t, 0, calls)
}

func TestSession_WindowAndCalendar(t *testing.T) {
	s := NewSession("s1", newTestDeps(t, &fakeBackend{}))
	defer s.Close()

	first, last := s.Bounds()
	assert.Equal(t, "2026-10-20", model.DateKey(first))
	assert.Equal(t, "2026-11-18", model.DateKey(last))

	decisions, err := s.Window(first, first.AddDate(0, 0, 6))
	require.NoError(t, err)
	require.Len(t, decisions, 7)
	assert.Equal(t, availability.ReasonWeekday, decisions[5].Reason)

	allowed := s.Calendar()
	assert.True(t, allowed(wednesday()))
}
