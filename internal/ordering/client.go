// Package ordering передаёт оформленные заказы во внешний сервис заказов.
package ordering

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/pickup-storefront/internal/model"
)

// ErrRejected возвращается, если сервис ответил статусом вне диапазона 2xx.
var ErrRejected = errors.New("order rejected by endpoint")

// Client отправляет заказы во внешний сервис.
//
// В непрозрачном режиме (opaque) статус и тело ответа не анализируются: успехом
// считается любой завершившийся без ошибки запрос. Это слабая гарантия, сохраняемая
// для конечных точек, ответ которых недоступен клиенту.
type Client struct {
	endpoint   string
	opaque     bool
	httpClient *http.Client
}

// NewClient создаёт клиент сервиса заказов.
func NewClient(endpoint string, opaque bool) *Client {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}

	return &Client{
		endpoint: endpoint,
		opaque:   opaque,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Opaque сообщает, работает ли клиент в непрозрачном режиме.
func (c *Client) Opaque() bool {
	return c != nil && c.opaque
}

// Submit отправляет заказ.
func (c *Client) Submit(ctx context.Context, payload model.OrderPayload) error {
	if c == nil || c.endpoint == "" {
		return fmt.Errorf("order client not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if c.opaque {
		return nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	return nil
}
