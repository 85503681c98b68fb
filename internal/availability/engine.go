package availability

import (
	"errors"
	"math"
	"time"

	"github.com/mmeshcher/pickup-storefront/internal/model"
)

// MaxWindowDays ограничивает диапазон, который можно запросить за один вызов Window.
const MaxWindowDays = 366

var (
	// ErrInvalidWindow возвращается, если конец диапазона раньше начала.
	ErrInvalidWindow = errors.New("window end is before start")
	// ErrWindowTooLarge возвращается для диапазона длиннее MaxWindowDays.
	ErrWindowTooLarge = errors.New("window is too large")
)

// Reason объясняет, почему дата недоступна.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonLeadTime Reason = "lead_time"
	ReasonWeekday  Reason = "weekday"
	ReasonHoliday  Reason = "holiday"
	ReasonCapacity Reason = "capacity"
)

// Decision описывает результат проверки одной даты.
type Decision struct {
	Date      string `json:"date"`
	Allowed   bool   `json:"allowed"`
	Reason    Reason `json:"reason,omitempty"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}

// Evaluate проверяет дату по всем правилам в порядке: окно заказа, день недели, праздники, вместимость.
// Функция чистая: now передаётся явно, состояние не изменяется.
func Evaluate(date time.Time, cartQty int, counts model.RemoteCounts, rules StaticRules, now time.Time) Decision {
	dec := Decision{Date: model.DateKey(date)}

	loc := rules.Location
	if loc == nil {
		loc = time.Local
	}
	today := dayNumber(now.In(loc))
	day := dayNumber(date)

	if day < today+int64(rules.MinLeadDays) || day > today+int64(rules.MaxLeadDays) {
		dec.Reason = ReasonLeadTime
		return dec
	}

	if rules.BlockedWeekdays[date.Weekday()] {
		dec.Reason = ReasonWeekday
		return dec
	}

	for _, h := range rules.Holidays {
		if h.Contains(date) {
			dec.Reason = ReasonHoliday
			return dec
		}
	}

	limit := rules.DailyLimit
	if override, ok := rules.Overrides[dec.Date]; ok {
		limit = override
	}
	limit = max(limit, 0)
	used := max(counts.Get(date), 0)
	cartQty = max(cartQty, 0)

	dec.Limit = limit
	dec.Used = used + cartQty
	if cartQty > math.MaxInt-used {
		dec.Used = math.MaxInt
	}
	if limit > dec.Used {
		dec.Remaining = limit - dec.Used
	}

	// Сравнение без сложения: limit и used неотрицательны, разность не переполняется.
	if cartQty > limit-used {
		dec.Reason = ReasonCapacity
		return dec
	}

	dec.Allowed = true
	return dec
}

// IsDateAllowed сообщает, проходит ли дата все правила.
func IsDateAllowed(date time.Time, cartQty int, counts model.RemoteCounts, rules StaticRules, now time.Time) bool {
	return Evaluate(date, cartQty, counts, rules, now).Allowed
}

// Engine связывает статические правила с источником текущего времени.
type Engine struct {
	rules StaticRules
	now   func() time.Time
}

// NewEngine создаёт движок правил. Если clock равен nil, используется time.Now.
func NewEngine(rules StaticRules, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	if rules.Location == nil {
		rules.Location = time.Local
	}
	return &Engine{rules: rules, now: clock}
}

// Rules возвращает правила движка.
func (e *Engine) Rules() StaticRules {
	return e.rules
}

// Location возвращает часовой пояс, в котором считаются календарные даты.
func (e *Engine) Location() *time.Location {
	return e.rules.Location
}

// Allowed проверяет дату относительно текущего момента.
func (e *Engine) Allowed(date time.Time, cartQty int, counts model.RemoteCounts) bool {
	return IsDateAllowed(date, cartQty, counts, e.rules, e.now())
}

// Evaluate возвращает подробное решение по дате относительно текущего момента.
func (e *Engine) Evaluate(date time.Time, cartQty int, counts model.RemoteCounts) Decision {
	return Evaluate(date, cartQty, counts, e.rules, e.now())
}

// Predicate возвращает функцию для календаря, привязанную к снимку корзины и счётчиков.
func (e *Engine) Predicate(cartQty int, counts model.RemoteCounts) func(time.Time) bool {
	now := e.now()
	return func(date time.Time) bool {
		return IsDateAllowed(date, cartQty, counts, e.rules, now)
	}
}

// Bounds возвращает первую и последнюю даты окна заказа на сегодня.
func (e *Engine) Bounds() (time.Time, time.Time) {
	y, m, d := e.now().In(e.rules.Location).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, e.rules.Location)
	return today.AddDate(0, 0, e.rules.MinLeadDays), today.AddDate(0, 0, e.rules.MaxLeadDays)
}

// Window возвращает решения по каждой дате включительного диапазона [from, to].
func (e *Engine) Window(from, to time.Time, cartQty int, counts model.RemoteCounts) ([]Decision, error) {
	start, end := dayNumber(from), dayNumber(to)
	if end < start {
		return nil, ErrInvalidWindow
	}
	if end-start+1 > MaxWindowDays {
		return nil, ErrWindowTooLarge
	}

	now := e.now()
	y, m, d := from.Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, e.rules.Location)

	res := make([]Decision, 0, end-start+1)
	for i := 0; i <= int(end-start); i++ {
		res = append(res, Evaluate(first.AddDate(0, 0, i), cartQty, counts, e.rules, now))
	}
	return res, nil
}
