// Package handler содержит HTTP-обработчики API витрины.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/pickup-storefront/internal/availability"
	"github.com/mmeshcher/pickup-storefront/internal/cart"
	"github.com/mmeshcher/pickup-storefront/internal/checkout"
	"github.com/mmeshcher/pickup-storefront/internal/middleware"
	"github.com/mmeshcher/pickup-storefront/internal/model"
	"github.com/mmeshcher/pickup-storefront/internal/storefront"
	"github.com/mmeshcher/pickup-storefront/internal/validation"
)

// Handler реализует HTTP-обработчики API витрины.
type Handler struct {
	logger   *zap.Logger
	sessions *middleware.SessionMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(logger *zap.Logger, sessions *middleware.SessionMiddleware) *Handler {
	return &Handler{
		logger:   logger,
		sessions: sessions,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*storefront.Session, bool) {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return nil, false
	}
	return s, true
}

type cartLineResponse struct {
	Index int `json:"index"`
	model.CartLine
}

type cartResponse struct {
	Lines         []cartLineResponse `json:"lines"`
	TotalQuantity int                `json:"totalQuantity"`
	TotalPrice    string             `json:"totalPrice"`
}

func newCartResponse(c *cart.Store) cartResponse {
	lines := c.Lines()
	resp := cartResponse{
		Lines:         make([]cartLineResponse, 0, len(lines)),
		TotalQuantity: c.TotalQuantity(),
		TotalPrice:    c.TotalPrice().StringFixed(2),
	}
	for i, l := range lines {
		resp.Lines = append(resp.Lines, cartLineResponse{Index: i, CartLine: l})
	}
	return resp
}

// GetCart возвращает корзину текущей сессии.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(s.Cart()))
}

type addItemRequest struct {
	ItemName  string          `json:"itemName"`
	SizeLabel string          `json:"sizeLabel"`
	Quantity  json.RawMessage `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// rawQuantity возвращает количество в том виде, в каком его ввёл покупатель: строкой или числом.
func rawQuantity(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// AddItem добавляет товар в корзину или увеличивает существующую позицию.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.AddItem(req.ItemName, req.SizeLabel, rawQuantity(req.Quantity), req.UnitPrice); err != nil {
		h.writeCartError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newCartResponse(s.Cart()))
}

// IncrementItem увеличивает количество позиции на единицу.
func (h *Handler) IncrementItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, (*cart.Store).Increment)
}

// DecrementItem уменьшает количество позиции на единицу.
func (h *Handler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, (*cart.Store).Decrement)
}

// RemoveItem удаляет позицию из корзины.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, (*cart.Store).Remove)
}

func (h *Handler) mutateLine(w http.ResponseWriter, r *http.Request, op func(*cart.Store, int) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "line index must be an integer")
		return
	}

	if err := op(s.Cart(), index); err != nil {
		h.writeCartError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(s.Cart()))
}

func (h *Handler) writeCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrQuantityLimit):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("You can order at most %d of one item.", model.MaxLineQuantity))
	case errors.Is(err, cart.ErrPriceMismatch):
		writeError(w, http.StatusConflict, "The price of this item has changed. Please remove it and add it again.")
	case errors.Is(err, validation.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "Please enter a quantity of at least 1.")
	case errors.Is(err, cart.ErrMissingSize):
		writeError(w, http.StatusBadRequest, "Please choose a size.")
	case errors.Is(err, cart.ErrMissingItem):
		writeError(w, http.StatusBadRequest, "Please choose an item.")
	case errors.Is(err, cart.ErrNegativePrice):
		writeError(w, http.StatusBadRequest, "Item price is invalid.")
	case errors.Is(err, cart.ErrLineNotFound):
		writeError(w, http.StatusNotFound, "That item is no longer in your cart.")
	default:
		h.logger.Error("cart mutation error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type availabilityResponse struct {
	From     string                  `json:"from"`
	To       string                  `json:"to"`
	Earliest string                  `json:"earliest"`
	Latest   string                  `json:"latest"`
	Days     []availability.Decision `json:"days"`
}

// GetAvailability возвращает доступность дат в диапазоне from..to; по умолчанию - всё окно заказа.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	earliest, latest := s.Bounds()
	from, to := earliest, latest

	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := validation.ParsePickupDate(raw, s.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be formatted as YYYY-MM-DD")
			return
		}
		from = d
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		d, err := validation.ParsePickupDate(raw, s.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be formatted as YYYY-MM-DD")
			return
		}
		to = d
	}

	days, err := s.Window(from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		From:     model.DateKey(from),
		To:       model.DateKey(to),
		Earliest: model.DateKey(earliest),
		Latest:   model.DateKey(latest),
		Days:     days,
	})
}

// GetDateAvailability возвращает решение по одной дате.
func (h *Handler) GetDateAvailability(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	date, err := validation.ParsePickupDate(chi.URLParam(r, "date"), s.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}

	writeJSON(w, http.StatusOK, s.Evaluate(date))
}

type formResponse struct {
	Form              model.FormState `json:"form"`
	Valid             bool            `json:"valid"`
	PickupDateAllowed bool            `json:"pickupDateAllowed"`
}

func newFormResponse(s *storefront.Session) formResponse {
	resp := formResponse{Form: s.Form(), Valid: s.FormValid()}
	if date, err := validation.ParsePickupDate(resp.Form.PickupDate, s.Location()); err == nil {
		resp.PickupDateAllowed = s.DateAllowed(date)
	}
	return resp
}

// GetForm возвращает поля формы и признак готовности к отправке.
func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newFormResponse(s))
}

// UpdateForm заменяет поля формы.
func (h *Handler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var form model.FormState
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	s.SetForm(form)
	writeJSON(w, http.StatusOK, newFormResponse(s))
}

// GetFormValid отдаёт только признак готовности формы, для кнопки отправки.
func (h *Handler) GetFormValid(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": s.FormValid()})
}

// Checkout оформляет заказ текущей сессии.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	outcome, err := s.Submit(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, outcome)
	case errors.Is(err, checkout.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, outcome)
	case errors.Is(err, checkout.ErrTransport):
		writeJSON(w, http.StatusBadGateway, outcome)
	default:
		h.logger.Error("checkout error", zap.Error(err), zap.String("session", s.ID()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type capacityResponse struct {
	Counts    model.RemoteCounts `json:"counts"`
	UpdatedAt string             `json:"updatedAt"`
}

// RefreshCapacity заново запрашивает счётчики заказов.
func (h *Handler) RefreshCapacity(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	counts := s.RefreshCapacity(r.Context())
	writeJSON(w, http.StatusOK, capacityResponse{
		Counts:    counts,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
}
