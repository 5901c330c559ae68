package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:         baseURL,
		Timeout:         5 * time.Second,
		RequestInterval: time.Millisecond,
		MaxRetries:      3,
		InitialBackoff:  time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestClient_ScrapesSite(t *testing.T) {
	var sawCookie atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		fmt.Fprint(w, homepageHTML)
	})
	mux.HandleFunc("/main.php", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
			sawCookie.Store(true)
		}
		if r.Header.Get("User-Agent") == "" {
			http.Error(w, "missing user agent", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, monthlyHTML)
	})
	mux.HandleFunc("/personal_detail.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="comment">Cleared after 18 days</div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	c.Warmup(ctx)

	links, err := c.MonthLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 3)
	require.Equal(t, "2024-03", links[0].Period)
	require.Equal(t, srv.URL+"/main.php?dispdate=2024-03", links[0].URL)

	records, err := c.MonthlyRecords(ctx, links[0])
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.True(t, sawCookie.Load())
	for _, r := range records {
		require.Equal(t, "2024-03", r.Period)
	}
	require.Equal(t, srv.URL+"/personal_detail.php?casenum=101", records[0].DetailsLink)

	details, err := c.CaseDetails(ctx, records[0].DetailsLink)
	require.NoError(t, err)
	require.Equal(t, "Cleared after 18 days", details)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, homepageHTML)
	}))
	defer srv.Close()

	links, err := newTestClient(t, srv.URL).MonthLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 3)
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).MonthLinks(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed after 3 attempts")
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).MonthlyRecords(context.Background(), MonthLink{Period: "2024-01", URL: srv.URL + "/main.php?dispdate=2024-01"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status code: 404")
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv.URL).MonthLinks(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Options{})
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.BaseURL())
	require.Equal(t, maxRetries, c.maxRetries)
}
