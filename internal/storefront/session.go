// Package storefront связывает корзину, правила доступности, счётчики заказов и оформление в одну сессию покупателя.
package storefront

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pickup-storefront/internal/availability"
	"github.com/mmeshcher/pickup-storefront/internal/capacity"
	"github.com/mmeshcher/pickup-storefront/internal/cart"
	"github.com/mmeshcher/pickup-storefront/internal/checkout"
	"github.com/mmeshcher/pickup-storefront/internal/model"
	"github.com/mmeshcher/pickup-storefront/internal/validation"
)

// ChangeSource описывает, что вызвало изменение состояния сессии.
type ChangeSource string

const (
	ChangeCart     ChangeSource = "cart"
	ChangeCapacity ChangeSource = "capacity"
	ChangeForm     ChangeSource = "form"
)

// Change передаётся подписчикам сессии, чтобы календарь и кнопка отправки перерисовались.
type Change struct {
	Source        ChangeSource
	TotalQuantity int
	FormValid     bool
	// PickupDateAllowed показывает, проходит ли выбранная дата правила после изменения.
	PickupDateAllowed bool
}

// Deps содержит общие для всех сессий компоненты.
type Deps struct {
	Capacity    *capacity.Syncer
	Engine      *availability.Engine
	Coordinator *checkout.Coordinator
}

// Session хранит состояние одного покупателя.
type Session struct {
	id          string
	cart        *cart.Store
	capacity    *capacity.Syncer
	engine      *availability.Engine
	coordinator *checkout.Coordinator

	mu        sync.RWMutex
	form      model.FormState
	formValid bool
	lastSeen  time.Time

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Change)

	unsubscribe []func()
}

// NewSession создаёт сессию и подписывает её на изменения корзины и счётчиков.
func NewSession(id string, deps Deps) *Session {
	s := &Session{
		id:          id,
		cart:        cart.NewStore(),
		capacity:    deps.Capacity,
		engine:      deps.Engine,
		coordinator: deps.Coordinator,
		lastSeen:    time.Now(),
		subs:        make(map[int]func(Change)),
	}

	s.unsubscribe = append(s.unsubscribe, s.cart.Subscribe(func(ev cart.Event) {
		s.changed(ChangeCart)
	}))
	if s.capacity != nil {
		s.unsubscribe = append(s.unsubscribe, s.capacity.Subscribe(func(model.RemoteCounts) {
			s.changed(ChangeCapacity)
		}))
	}

	return s
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string {
	return s.id
}

// Cart возвращает корзину сессии.
func (s *Session) Cart() *cart.Store {
	return s.cart
}

// Close отписывает сессию от общих компонентов.
func (s *Session) Close() {
	for _, fn := range s.unsubscribe {
		fn()
	}
	s.unsubscribe = nil
}

// Touch отмечает активность покупателя.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen возвращает время последней активности.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Subscribe регистрирует обработчик изменений сессии и возвращает функцию отписки.
func (s *Session) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) changed(source ChangeSource) {
	valid := s.recomputeValidity()

	ch := Change{
		Source:            source,
		TotalQuantity:     s.cart.TotalQuantity(),
		FormValid:         valid,
		PickupDateAllowed: s.pickupDateAllowed(),
	}

	s.subMu.Lock()
	handlers := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.subMu.Unlock()

	for _, fn := range handlers {
		fn(ch)
	}
}

func (s *Session) recomputeValidity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formValid = s.coordinator.CanSubmit(s.form, s.cart)
	return s.formValid
}

// AddItem добавляет товар, разбирая количество из пользовательского ввода.
func (s *Session) AddItem(itemName, sizeLabel, rawQuantity string, unitPrice decimal.Decimal) error {
	qty, err := validation.ParseQuantity(rawQuantity)
	if err != nil {
		return err
	}
	return s.cart.AddOrMerge(itemName, sizeLabel, qty, unitPrice)
}

// Counts возвращает текущие счётчики заказов.
func (s *Session) Counts() model.RemoteCounts {
	if s.capacity == nil {
		return model.RemoteCounts{}
	}
	return s.capacity.Counts()
}

// DateAllowed вызывается календарём для каждой отображаемой даты.
func (s *Session) DateAllowed(date time.Time) bool {
	return s.engine.Allowed(date, s.cart.TotalQuantity(), s.Counts())
}

// Evaluate возвращает подробное решение по дате с учётом текущей корзины.
func (s *Session) Evaluate(date time.Time) availability.Decision {
	return s.engine.Evaluate(date, s.cart.TotalQuantity(), s.Counts())
}

// Calendar возвращает предикат для одного прохода отрисовки календаря.
func (s *Session) Calendar() func(time.Time) bool {
	return s.engine.Predicate(s.cart.TotalQuantity(), s.Counts())
}

// Window возвращает решения по диапазону дат.
func (s *Session) Window(from, to time.Time) ([]availability.Decision, error) {
	return s.engine.Window(from, to, s.cart.TotalQuantity(), s.Counts())
}

// Bounds возвращает границы окна заказа на сегодня.
func (s *Session) Bounds() (time.Time, time.Time) {
	return s.engine.Bounds()
}

// Location возвращает часовой пояс календаря.
func (s *Session) Location() *time.Location {
	return s.engine.Location()
}

// SetForm заменяет поля формы и пересчитывает признак готовности к отправке.
func (s *Session) SetForm(form model.FormState) {
	s.mu.Lock()
	s.form = form
	s.mu.Unlock()

	s.changed(ChangeForm)
}

// Form возвращает текущие поля формы.
func (s *Session) Form() model.FormState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.form
}

// FormValid возвращает признак готовности формы, пересчитываемый при каждом изменении.
func (s *Session) FormValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.formValid
}

func (s *Session) pickupDateAllowed() bool {
	form := s.Form()
	if !validation.Present(form.PickupDate) {
		return false
	}
	date, err := validation.ParsePickupDate(form.PickupDate, s.engine.Location())
	if err != nil {
		return false
	}
	return s.DateAllowed(date)
}

// Submit оформляет заказ из текущей корзины и формы.
func (s *Session) Submit(ctx context.Context) (model.Outcome, error) {
	return s.coordinator.Submit(ctx, s.Form(), s.cart)
}

// RefreshCapacity заново запрашивает счётчики заказов.
func (s *Session) RefreshCapacity(ctx context.Context) model.RemoteCounts {
	if s.capacity == nil {
		return model.RemoteCounts{}
	}
	return s.capacity.Refresh(ctx)
}
