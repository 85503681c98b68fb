package orderbook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/pickup-storefront/internal/capacity"
	"github.com/mmeshcher/pickup-storefront/internal/model"
	"github.com/mmeshcher/pickup-storefront/internal/ordering"
	"github.com/mmeshcher/pickup-storefront/internal/repository"
)

// memoryRepo хранит заказы в памяти и считает количество так же, как PostgreSQL-репозиторий.
type memoryRepo struct {
	orders    map[string]model.OrderPayload
	countsErr error
	createErr error
	gotFrom   time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[string]model.OrderPayload)}
}

func (m *memoryRepo) CreateOrder(ctx context.Context, order model.OrderPayload) (bool, error) {
	if m.createErr != nil {
		return false, m.createErr
	}
	if _, ok := m.orders[order.OrderID]; ok {
		return false, nil
	}
	m.orders[order.OrderID] = order
	return true, nil
}

func (m *memoryRepo) CountsFrom(ctx context.Context, from time.Time) (model.RemoteCounts, error) {
	m.gotFrom = from
	if m.countsErr != nil {
		return nil, m.countsErr
	}
	counts := model.RemoteCounts{}
	for _, o := range m.orders {
		if o.PickupDate >= model.DateKey(from) {
			counts[o.PickupDate] += o.TotalQuantity()
		}
	}
	return counts, nil
}

func newTestHandler(t *testing.T, repo Repository) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	h := NewHandler(repo, logger, time.UTC)
	h.now = func() time.Time { return time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC) }
	return h
}

func sampleOrder(id, date string, qty int) model.OrderPayload {
	return model.OrderPayload{
		OrderID:    id,
		Timestamp:  "2026-10-19T10:00:00Z",
		Name:       "Ann Baker",
		Contact:    "555-0100",
		PickupDate: date,
		Cart: []model.CartLine{
			{ItemName: "Sourdough", SizeLabel: "Large", Quantity: qty, UnitPrice: decimal.RequireFromString("4.00")},
		},
	}
}

func postOrder(t *testing.T, router http.Handler, order model.OrderPayload) int {
	t.Helper()

	body, _ := json.Marshal(order)
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec.Code
}

func TestCreateOrder_StoresAndRecomputesTotals(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestHandler(t, repo).SetupRouter()

	order := sampleOrder("5f0c6c2e-8a39-4d53-9a2e-3c1a8d0e6f11", "2026-10-21", 3)
	order.Cart[0].LineTotal = decimal.RequireFromString("1.00")

	if code := postOrder(t, router, order); code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", code, http.StatusCreated)
	}

	stored := repo.orders[order.OrderID]
	if !stored.Cart[0].LineTotal.Equal(decimal.RequireFromString("12")) {
		t.Fatalf("lineTotal = %s, want 12", stored.Cart[0].LineTotal)
	}

	if code := postOrder(t, router, order); code != http.StatusOK {
		t.Fatalf("duplicate status = %d, want %d", code, http.StatusOK)
	}
	if len(repo.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(repo.orders))
	}
}

func TestCreateOrder_AssignsMissingID(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestHandler(t, repo).SetupRouter()

	if code := postOrder(t, router, sampleOrder("", "2026-10-21", 1)); code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", code, http.StatusCreated)
	}
	if len(repo.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(repo.orders))
	}
}

func TestCreateOrder_Rejections(t *testing.T) {
	valid := sampleOrder("5f0c6c2e-8a39-4d53-9a2e-3c1a8d0e6f11", "2026-10-21", 1)

	noName := valid
	noName.Name = " "

	badDate := valid
	badDate.PickupDate = "21.10.2026"

	emptyCart := valid
	emptyCart.Cart = nil

	badID := valid
	badID.OrderID = "order-1"

	zeroQty := sampleOrder(valid.OrderID, valid.PickupDate, 0)
	hugeQty := sampleOrder(valid.OrderID, valid.PickupDate, math.MaxInt)

	tests := map[string]model.OrderPayload{
		"missing name":  noName,
		"bad date":      badDate,
		"empty cart":    emptyCart,
		"bad id":        badID,
		"zero quantity": zeroQty,
		"huge quantity": hugeQty,
	}

	for name, order := range tests {
		t.Run(name, func(t *testing.T) {
			repo := newMemoryRepo()
			router := newTestHandler(t, repo).SetupRouter()

			if code := postOrder(t, router, order); code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want %d", code, http.StatusUnprocessableEntity)
			}
			if len(repo.orders) != 0 {
				t.Fatalf("rejected order must not be stored")
			}
		})
	}
}

func TestCreateOrder_StorageErrors(t *testing.T) {
	repo := newMemoryRepo()
	repo.createErr = repository.ErrInvalidOrder
	router := newTestHandler(t, repo).SetupRouter()

	order := sampleOrder("5f0c6c2e-8a39-4d53-9a2e-3c1a8d0e6f11", "2026-10-21", 1)
	if code := postOrder(t, router, order); code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", code, http.StatusUnprocessableEntity)
	}

	repo.createErr = errors.New("connection refused")
	if code := postOrder(t, router, order); code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", code, http.StatusInternalServerError)
	}
}

func TestGetOrders_Modes(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestHandler(t, repo).SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status without mode = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	repo.countsErr = errors.New("db down")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders?mode=counts", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status on db error = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

// Витрина и сервис заказов согласованы по формату: заказ, отправленный клиентом, отражается в счётчиках.
func TestRoundTripWithStorefrontClients(t *testing.T) {
	repo := newMemoryRepo()
	repo.orders["old"] = sampleOrder("old", "2026-10-01", 4)

	ts := httptest.NewServer(newTestHandler(t, repo).SetupRouter())
	defer ts.Close()

	ctx := context.Background()
	orders := ordering.NewClient(ts.URL+"/orders", false)
	counts := capacity.NewClient(ts.URL + "/orders")

	if err := orders.Submit(ctx, sampleOrder("5f0c6c2e-8a39-4d53-9a2e-3c1a8d0e6f11", "2026-10-21", 3)); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if err := orders.Submit(ctx, sampleOrder("0b7e2d0c-1f55-4a8e-9d8f-6f3c2b1a0e99", "2026-10-21", 2)); err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	got, err := counts.FetchCounts(ctx)
	if err != nil {
		t.Fatalf("FetchCounts error: %v", err)
	}
	if len(got) != 1 || got["2026-10-21"] != 5 {
		t.Fatalf("unexpected counts: %v", got)
	}
	if model.DateKey(repo.gotFrom) != "2026-10-19" {
		t.Fatalf("counts must start from today, got %v", repo.gotFrom)
	}
}
