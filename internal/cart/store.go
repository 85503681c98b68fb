// Package cart реализует хранилище корзины одной сессии.
package cart

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pickup-storefront/internal/model"
)

var (
	// ErrInvalidQuantity возвращается для неположительного количества.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrMissingItem возвращается, если не указано название товара.
	ErrMissingItem = errors.New("item name is required")
	// ErrMissingSize возвращается, если не выбран размер.
	ErrMissingSize = errors.New("size selection is required")
	// ErrNegativePrice возвращается для отрицательной цены за единицу.
	ErrNegativePrice = errors.New("unit price must not be negative")
	// ErrLineNotFound возвращается для индекса за пределами корзины.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrQuantityLimit возвращается, если позиция превысила бы MaxLineQuantity.
	ErrQuantityLimit = fmt.Errorf("%w: at most %d per line", ErrInvalidQuantity, model.MaxLineQuantity)
	// ErrPriceMismatch возвращается при объединении позиции с другой ценой за единицу.
	ErrPriceMismatch = errors.New("unit price differs from the line in the cart")
)

// EventKind описывает вид изменения корзины.
type EventKind string

const (
	EventAdded       EventKind = "added"
	EventMerged      EventKind = "merged"
	EventIncremented EventKind = "incremented"
	EventDecremented EventKind = "decremented"
	EventRemoved     EventKind = "removed"
	EventCleared     EventKind = "cleared"
)

// Event передаётся подписчикам после каждого изменения корзины.
type Event struct {
	Kind          EventKind
	TotalQuantity int
}

// Store хранит упорядоченные позиции корзины и уведомляет подписчиков об изменениях.
type Store struct {
	mu    sync.Mutex
	lines []model.CartLine

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// NewStore создаёт пустую корзину.
func NewStore() *Store {
	return &Store{
		subs: make(map[int]func(Event)),
	}
}

// Subscribe регистрирует обработчик изменений и возвращает функцию отписки.
func (s *Store) Subscribe(fn func(Event)) func() {
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

func (s *Store) notify(kind EventKind, total int) {
	s.subMu.Lock()
	handlers := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.subMu.Unlock()

	ev := Event{Kind: kind, TotalQuantity: total}
	for _, fn := range handlers {
		fn(ev)
	}
}

// AddOrMerge добавляет позицию или увеличивает существующую с тем же товаром и размером.
func (s *Store) AddOrMerge(itemName, sizeLabel string, quantity int, unitPrice decimal.Decimal) error {
	itemName = strings.TrimSpace(itemName)
	sizeLabel = strings.TrimSpace(sizeLabel)

	switch {
	case itemName == "":
		return ErrMissingItem
	case sizeLabel == "":
		return ErrMissingSize
	case quantity <= 0:
		return ErrInvalidQuantity
	case quantity > model.MaxLineQuantity:
		return ErrQuantityLimit
	case unitPrice.IsNegative():
		return ErrNegativePrice
	}

	s.mu.Lock()
	kind := EventAdded
	merged := false
	for i := range s.lines {
		line := &s.lines[i]
		if !line.SameKey(itemName, sizeLabel) {
			continue
		}
		if !line.UnitPrice.Equal(unitPrice) {
			s.mu.Unlock()
			return ErrPriceMismatch
		}
		if line.Quantity > model.MaxLineQuantity-quantity {
			s.mu.Unlock()
			return ErrQuantityLimit
		}
		line.Quantity += quantity
		line.LineTotal = decimal.NewFromInt(int64(line.Quantity)).Mul(line.UnitPrice)
		kind = EventMerged
		merged = true
		break
	}
	if !merged {
		s.lines = append(s.lines, model.CartLine{
			ItemName:  itemName,
			SizeLabel: sizeLabel,
			Quantity:  quantity,
			UnitPrice: unitPrice,
			LineTotal: decimal.NewFromInt(int64(quantity)).Mul(unitPrice),
		})
	}
	total := s.totalQuantityLocked()
	s.mu.Unlock()

	s.notify(kind, total)
	return nil
}

// Increment увеличивает количество позиции на единицу.
func (s *Store) Increment(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.lines) {
		s.mu.Unlock()
		return ErrLineNotFound
	}
	line := &s.lines[index]
	if line.Quantity >= model.MaxLineQuantity {
		s.mu.Unlock()
		return ErrQuantityLimit
	}
	line.Quantity++
	line.LineTotal = decimal.NewFromInt(int64(line.Quantity)).Mul(line.UnitPrice)
	total := s.totalQuantityLocked()
	s.mu.Unlock()

	s.notify(EventIncremented, total)
	return nil
}

// Decrement уменьшает количество позиции на единицу; позиция с количеством 1 удаляется.
func (s *Store) Decrement(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.lines) {
		s.mu.Unlock()
		return ErrLineNotFound
	}

	kind := EventDecremented
	if s.lines[index].Quantity <= 1 {
		s.lines = append(s.lines[:index], s.lines[index+1:]...)
		kind = EventRemoved
	} else {
		line := &s.lines[index]
		line.Quantity--
		line.LineTotal = decimal.NewFromInt(int64(line.Quantity)).Mul(line.UnitPrice)
	}
	total := s.totalQuantityLocked()
	s.mu.Unlock()

	s.notify(kind, total)
	return nil
}

// Remove удаляет позицию независимо от её количества.
func (s *Store) Remove(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.lines) {
		s.mu.Unlock()
		return ErrLineNotFound
	}
	s.lines = append(s.lines[:index], s.lines[index+1:]...)
	total := s.totalQuantityLocked()
	s.mu.Unlock()

	s.notify(EventRemoved, total)
	return nil
}

// Clear очищает корзину.
func (s *Store) Clear() {
	s.mu.Lock()
	s.lines = nil
	s.mu.Unlock()

	s.notify(EventCleared, 0)
}

// Lines возвращает копию позиций в порядке добавления.
func (s *Store) Lines() []model.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Len возвращает число позиций.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// IsEmpty сообщает, что в корзине нет позиций.
func (s *Store) IsEmpty() bool {
	return s.Len() == 0
}

// TotalQuantity возвращает суммарное количество единиц, учитываемое при проверке вместимости.
func (s *Store) TotalQuantity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalQuantityLocked()
}

func (s *Store) totalQuantityLocked() int {
	total := 0
	for _, l := range s.lines {
		total += l.Quantity
	}
	return total
}

// TotalPrice возвращает сумму позиций, округлённую до двух знаков.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.LineTotal)
	}
	return total.Round(2)
}
