// Package checkout реализует проверку и отправку заказа.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/pickup-storefront/internal/model"
	"github.com/mmeshcher/pickup-storefront/internal/validation"
)

var (
	// ErrValidation объединяет ошибки, блокирующие отправку до обращения к сервису.
	ErrValidation = errors.New("order validation failed")
	// ErrMissingName возвращается, если не указано имя.
	ErrMissingName = errors.New("full name is required")
	// ErrMissingContact возвращается, если не указан контакт.
	ErrMissingContact = errors.New("contact is required")
	// ErrMissingDate возвращается, если не выбрана дата самовывоза.
	ErrMissingDate = errors.New("pickup date is required")
	// ErrEmptyCart возвращается для пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrDateUnavailable возвращается, если выбранная дата больше не проходит правила доступности.
	ErrDateUnavailable = errors.New("pickup date is no longer available")
	// ErrTransport возвращается, если заказ не удалось передать.
	ErrTransport = errors.New("order transmission failed")
)

const (
	acceptedMessage = "Order received! Payment is pending; we will contact you to confirm."
	failedMessage   = "We could not send your order. Your cart is saved, please try again."
)

// Cart описывает корзину, используемую при оформлении.
type Cart interface {
	Lines() []model.CartLine
	IsEmpty() bool
	TotalQuantity() int
	Clear()
}

// Transport передаёт заказ во внешний сервис.
type Transport interface {
	Submit(ctx context.Context, payload model.OrderPayload) error
}

// Capacity предоставляет счётчики заказов и их обновление.
type Capacity interface {
	Counts() model.RemoteCounts
	Refresh(ctx context.Context) model.RemoteCounts
}

// DateChecker проверяет доступность даты самовывоза.
type DateChecker interface {
	Allowed(date time.Time, cartQty int, counts model.RemoteCounts) bool
	Location() *time.Location
}

// Coordinator проверяет форму и корзину, отправляет заказ и обрабатывает результат.
type Coordinator struct {
	transport Transport
	capacity  Capacity
	dates     DateChecker
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewCoordinator создаёт координатор оформления заказа.
func NewCoordinator(transport Transport, capacity Capacity, dates DateChecker, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		transport: transport,
		capacity:  capacity,
		dates:     dates,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// CanSubmit сообщает, заполнены ли имя, контакт и дата, и есть ли что-то в корзине.
func (c *Coordinator) CanSubmit(form model.FormState, cart Cart) bool {
	return validation.Present(form.Name) &&
		validation.Present(form.Contact) &&
		validation.Present(form.PickupDate) &&
		cart != nil && !cart.IsEmpty()
}

// Validate возвращает первую ошибку проверки формы и корзины.
func (c *Coordinator) Validate(form model.FormState, cart Cart) error {
	switch {
	case !validation.Present(form.Name):
		return fmt.Errorf("%w: %w", ErrValidation, ErrMissingName)
	case !validation.Present(form.Contact):
		return fmt.Errorf("%w: %w", ErrValidation, ErrMissingContact)
	case !validation.Present(form.PickupDate):
		return fmt.Errorf("%w: %w", ErrValidation, ErrMissingDate)
	case cart == nil || cart.IsEmpty():
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyCart)
	}

	if c.dates == nil {
		return nil
	}

	date, err := validation.ParsePickupDate(form.PickupDate, c.dates.Location())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	var counts model.RemoteCounts
	if c.capacity != nil {
		counts = c.capacity.Counts()
	}
	if !c.dates.Allowed(date, cart.TotalQuantity(), counts) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrDateUnavailable)
	}

	return nil
}

// Submit отправляет заказ. При успехе корзина очищается и счётчики запрашиваются заново;
// при ошибке передачи корзина сохраняется для повторной попытки.
// Одновременные вызовы не дедуплицируются.
func (c *Coordinator) Submit(ctx context.Context, form model.FormState, cart Cart) (model.Outcome, error) {
	if err := c.Validate(form, cart); err != nil {
		return model.Outcome{Status: model.OutcomeRejected, Message: rejectionMessage(err)}, err
	}

	payload := model.OrderPayload{
		OrderID:    c.newID(),
		Timestamp:  c.now().UTC().Format(time.RFC3339),
		Name:       strings.TrimSpace(form.Name),
		Contact:    strings.TrimSpace(form.Contact),
		PickupDate: strings.TrimSpace(form.PickupDate),
		Cart:       cart.Lines(),
		Notes:      strings.TrimSpace(form.Notes),
	}

	if err := c.transport.Submit(ctx, payload); err != nil {
		c.logger.Error("submit order error",
			zap.Error(err),
			zap.String("order", payload.OrderID),
			zap.String("pickupDate", payload.PickupDate),
		)
		return model.Outcome{Status: model.OutcomeFailed, Message: failedMessage}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	cart.Clear()

	if c.capacity != nil {
		c.capacity.Refresh(context.WithoutCancel(ctx))
	}

	c.logger.Info("order submitted",
		zap.String("order", payload.OrderID),
		zap.String("pickupDate", payload.PickupDate),
		zap.Int("quantity", payload.TotalQuantity()),
	)

	return model.Outcome{Status: model.OutcomeAccepted, Message: acceptedMessage, OrderID: payload.OrderID}, nil
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingName):
		return "Please enter your full name."
	case errors.Is(err, ErrMissingContact):
		return "Please enter a phone number or email."
	case errors.Is(err, ErrMissingDate):
		return "Please choose a pickup date."
	case errors.Is(err, ErrEmptyCart):
		return "Your cart is empty."
	case errors.Is(err, validation.ErrInvalidDate):
		return "Please choose a valid pickup date."
	case errors.Is(err, ErrDateUnavailable):
		return "That pickup date is no longer available, please choose another."
	default:
		return "Please check your order details."
	}
}
