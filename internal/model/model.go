// Package model содержит доменные сущности витрины самовывоза.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout задаёт строковое представление календарной даты (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// MaxLineQuantity ограничивает количество единиц в одной позиции корзины.
const MaxLineQuantity = 999

// DateKey возвращает ключ календарной даты в формате DateLayout.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// CartLine описывает позицию корзины. Позиции с одинаковыми ItemName и SizeLabel объединяются.
type CartLine struct {
	ItemName  string          `json:"itemName"`
	SizeLabel string          `json:"sizeLabel"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// SameKey сообщает, совпадает ли ключ позиции с указанной парой товар/размер.
func (l CartLine) SameKey(itemName, sizeLabel string) bool {
	return l.ItemName == itemName && l.SizeLabel == sizeLabel
}

// RemoteCounts сопоставляет дате (YYYY-MM-DD) количество уже оформленных единиц заказа.
type RemoteCounts map[string]int

// Get возвращает количество для даты или 0, если дата неизвестна.
func (c RemoteCounts) Get(date time.Time) int {
	if c == nil {
		return 0
	}
	return c[DateKey(date)]
}

// Clone возвращает независимую копию отображения.
func (c RemoteCounts) Clone() RemoteCounts {
	out := make(RemoteCounts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// FormState содержит поля формы оформления заказа.
type FormState struct {
	Name       string `json:"name"`
	Contact    string `json:"contact"`
	PickupDate string `json:"pickupDate"`
	Notes      string `json:"notes,omitempty"`
}

// OrderPayload описывает заказ, передаваемый во внешний сервис заказов.
type OrderPayload struct {
	OrderID    string     `json:"orderId"`
	Timestamp  string     `json:"timestamp"`
	Name       string     `json:"name"`
	Contact    string     `json:"contact"`
	PickupDate string     `json:"pickupDate"`
	Cart       []CartLine `json:"cart"`
	Notes      string     `json:"notes,omitempty"`
}

// TotalQuantity возвращает суммарное количество единиц в заказе.
func (p OrderPayload) TotalQuantity() int {
	total := 0
	for _, l := range p.Cart {
		total += l.Quantity
	}
	return total
}

// OutcomeStatus описывает итог попытки оформления заказа.
type OutcomeStatus string

const (
	OutcomeAccepted OutcomeStatus = "ACCEPTED"
	OutcomeRejected OutcomeStatus = "REJECTED"
	OutcomeFailed   OutcomeStatus = "FAILED"
)

// Outcome передаётся слою представления вместо всплывающих сообщений.
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
	OrderID string        `json:"orderId,omitempty"`
}
