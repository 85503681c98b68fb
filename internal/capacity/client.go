// Package capacity получает из внешнего сервиса количество уже оформленных заказов по датам.
package capacity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/pickup-storefront/internal/model"
)

// maxCountsBody ограничивает размер ответа со счётчиками.
const maxCountsBody = 1 << 20

// ErrMalformedCounts возвращается, если ответ сервиса не является отображением даты в неотрицательное число.
var ErrMalformedCounts = errors.New("malformed counts response")

// Client инкапсулирует HTTP-взаимодействие с сервисом счётчиков заказов.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient создаёт клиент сервиса счётчиков по указанному адресу.
// Чтение идемпотентно, поэтому сбои сети и ответы 5xx повторяются.
func NewClient(endpoint string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 500 * time.Millisecond
	rc.Logger = nil

	httpClient := rc.StandardClient()
	httpClient.Timeout = 5 * time.Second

	return &Client{
		endpoint:   normalizeEndpoint(endpoint),
		httpClient: httpClient,
	}
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return ""
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	return endpoint
}

// FetchCounts запрашивает количество оформленных единиц по датам.
func (c *Client) FetchCounts(ctx context.Context) (model.RemoteCounts, error) {
	if c == nil || c.endpoint == "" {
		return nil, fmt.Errorf("counts client not configured")
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("mode", "counts")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var raw map[string]int
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCountsBody)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformedCounts, err)
	}

	counts := make(model.RemoteCounts, len(raw))
	for key, n := range raw {
		d, err := time.Parse(model.DateLayout, key)
		if err != nil {
			return nil, fmt.Errorf("%w: date key %q", ErrMalformedCounts, key)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: negative count for %s", ErrMalformedCounts, key)
		}
		counts[model.DateKey(d)] = n
	}

	return counts, nil
}
