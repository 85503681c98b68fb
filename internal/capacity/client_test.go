package capacity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchCounts_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/exec" {
			t.Fatalf("path = %s, want /exec", r.URL.Path)
		}
		if got := r.URL.Query().Get("mode"); got != "counts" {
			t.Fatalf("mode = %q, want counts", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"2026-10-21": 5, "2026-10-22": 0}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL + "/exec/")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	counts, err := client.FetchCounts(ctx)
	if err != nil {
		t.Fatalf("FetchCounts error: %v", err)
	}
	if len(counts) != 2 || counts["2026-10-21"] != 5 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestFetchCounts_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	counts, err := client.FetchCounts(context.Background())
	if err == nil {
		t.Fatalf("expected error for 502, got counts %v", counts)
	}
}

func TestFetchCounts_Malformed(t *testing.T) {
	bodies := map[string]string{
		"not json":       `<html>oops</html>`,
		"array":          `[1,2,3]`,
		"bad date key":   `{"tomorrow": 3}`,
		"negative count": `{"2026-10-21": -1}`,
		"string count":   `{"2026-10-21": "5"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer ts.Close()

			_, err := NewClient(ts.URL).FetchCounts(context.Background())
			if !errors.Is(err, ErrMalformedCounts) {
				t.Fatalf("error = %v, want ErrMalformedCounts", err)
			}
		})
	}
}

func TestFetchCounts_NotConfigured(t *testing.T) {
	var client *Client
	if _, err := client.FetchCounts(context.Background()); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewClient("").FetchCounts(context.Background()); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"localhost:8081":          "http://localhost:8081",
		"https://example.com/x/": "https://example.com/x",
		"  ":                      "",
	}
	for in, want := range tests {
		if got := normalizeEndpoint(in); got != want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFetchCounts_RetriesServerErrors(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"2026-10-21": 2}`))
	}))
	defer ts.Close()

	counts, err := NewClient(ts.URL).FetchCounts(context.Background())
	if err != nil {
		t.Fatalf("FetchCounts error: %v", err)
	}
	if calls != 2 || counts["2026-10-21"] != 2 {
		t.Fatalf("calls = %d, counts = %v", calls, counts)
	}
}

func TestFetchCounts_OversizedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"2026-10-21": 1`)
		_, _ = w.Write([]byte(strings.Repeat(" ", maxCountsBody)))
		_, _ = fmt.Fprint(w, `}`)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).FetchCounts(context.Background())
	if !errors.Is(err, ErrMalformedCounts) {
		t.Fatalf("error = %v, want ErrMalformedCounts", err)
	}
}
