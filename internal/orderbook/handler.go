// Package orderbook реализует сервис заказов: принимает заказы и отдаёт количество заказанных единиц по датам.
package orderbook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	custommiddleware "github.com/mmeshcher/pickup-storefront/internal/middleware"
	"github.com/mmeshcher/pickup-storefront/internal/model"
	"github.com/mmeshcher/pickup-storefront/internal/repository"
	"github.com/mmeshcher/pickup-storefront/internal/validation"
)

// Repository описывает хранилище заказов.
type Repository interface {
	CreateOrder(ctx context.Context, order model.OrderPayload) (bool, error)
	CountsFrom(ctx context.Context, from time.Time) (model.RemoteCounts, error)
}

// Handler реализует HTTP-обработчики сервиса заказов.
type Handler struct {
	repo     Repository
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time
}

// NewHandler создаёт обработчик. Даты «сегодня» считаются в указанном часовом поясе.
func NewHandler(repo Repository, logger *zap.Logger, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		repo:     repo,
		logger:   logger,
		location: loc,
		now:      time.Now,
	}
}

// SetupRouter настраивает HTTP-маршруты сервиса заказов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/orders", h.GetOrders)
	r.Post("/orders", h.CreateOrder)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

// GetOrders обслуживает запросы чтения; поддерживается режим mode=counts.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("mode") != "counts" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	counts, err := h.repo.CountsFrom(r.Context(), h.now().In(h.location))
	if err != nil {
		h.logger.Error("get counts error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(counts); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// CreateOrder принимает заказ с витрины.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var order model.OrderPayload
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(order.OrderID) == "" {
		order.OrderID = uuid.NewString()
	}

	if err := normalizeOrder(&order); err != nil {
		h.logger.Info("order rejected", zap.Error(err), zap.String("order", order.OrderID))
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	created, err := h.repo.CreateOrder(r.Context(), order)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidOrder) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create order error", zap.Error(err), zap.String("order", order.OrderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !created {
		w.WriteHeader(http.StatusOK)
		return
	}

	h.logger.Info("order stored",
		zap.String("order", order.OrderID),
		zap.String("pickupDate", order.PickupDate),
		zap.Int("quantity", order.TotalQuantity()),
	)
	w.WriteHeader(http.StatusCreated)
}

var (
	errInvalidOrderID = errors.New("order id must be a UUID")
	errMissingField   = errors.New("name, contact and pickup date are required")
	errEmptyCart      = errors.New("cart is empty")
	errInvalidLine    = errors.New("cart line is invalid")
)

// normalizeOrder проверяет заказ и пересчитывает суммы позиций.
func normalizeOrder(order *model.OrderPayload) error {
	if _, err := uuid.Parse(order.OrderID); err != nil {
		return errInvalidOrderID
	}
	if !validation.Present(order.Name) || !validation.Present(order.Contact) {
		return errMissingField
	}
	if _, err := validation.ParsePickupDate(order.PickupDate, time.UTC); err != nil {
		return err
	}
	if len(order.Cart) == 0 {
		return errEmptyCart
	}

	for i := range order.Cart {
		line := &order.Cart[i]
		if !validation.Present(line.ItemName) || !validation.Present(line.SizeLabel) {
			return errInvalidLine
		}
		if line.Quantity <= 0 || line.Quantity > model.MaxLineQuantity || line.UnitPrice.IsNegative() {
			return errInvalidLine
		}
		line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
	}

	return nil
}
