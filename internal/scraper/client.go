// Package scraper fetches and parses the public monthly case listings.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jjenkins/visawatch/internal/model"
)

const (
	DefaultBaseURL  = "https://www.checkee.info"
	defaultTimeout  = 30 * time.Second
	maxRetries      = 3
	initialBackoff  = 2 * time.Second
	defaultInterval = 1 * time.Second
	userAgent       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	shortBodyLength = 100
)

var tracer = otel.Tracer("visawatch/scraper")

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RequestInterval is the minimum spacing between two requests
	RequestInterval time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
}

// Client scrapes the listing site over one cookie-carrying session
type Client struct {
	baseURL        *url.URL
	http           *resty.Client
	limiter        *rate.Limiter
	maxRetries     int
	initialBackoff time.Duration
}

// NewClient creates a new scraping client
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestInterval <= 0 {
		opts.RequestInterval = defaultInterval
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = maxRetries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = initialBackoff
	}

	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetTimeout(opts.Timeout)
	client.SetHeaders(map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.5",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Referer":                   baseURL.String() + "/",
	})

	return &Client{
		baseURL:        baseURL,
		http:           client,
		limiter:        rate.NewLimiter(rate.Every(opts.RequestInterval), 1),
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
	}, nil
}

// BaseURL returns the site root the client resolves links against
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Warmup visits the homepage so the session carries the site's cookies.
// Failures are logged, not returned.
func (c *Client) Warmup(ctx context.Context) {
	if _, err := c.fetchWithRetry(ctx, c.baseURL.String()); err != nil {
		slog.WarnContext(ctx, "could not visit homepage", "error", err)
	}
}

// MonthLinks lists the monthly pages linked from the homepage, newest first
func (c *Client) MonthLinks(ctx context.Context) ([]MonthLink, error) {
	ctx, span := tracer.Start(ctx, "MonthLinks", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	doc, err := c.document(ctx, c.baseURL.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch homepage")
		return nil, fmt.Errorf("failed to fetch homepage: %w", err)
	}

	links := ParseMonthLinks(doc, c.baseURL)
	span.SetAttributes(attribute.Int("links", len(links)))
	return links, nil
}

// MonthlyRecords scrapes every case row of one monthly page
func (c *Client) MonthlyRecords(ctx context.Context, link MonthLink) ([]model.RawRecord, error) {
	ctx, span := tracer.Start(ctx, "MonthlyRecords", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("period", link.Period))

	doc, err := c.document(ctx, link.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch monthly page")
		return nil, fmt.Errorf("failed to fetch month %s: %w", link.Period, err)
	}

	records := ParseMonthlyRecords(doc, c.baseURL)
	for i := range records {
		records[i].Period = link.Period
	}
	span.SetAttributes(attribute.Int("records", len(records)))
	return records, nil
}

// CaseDetails returns the notes text of one case details page
func (c *Client) CaseDetails(ctx context.Context, detailsLink string) (string, error) {
	ctx, span := tracer.Start(ctx, "CaseDetails", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	doc, err := c.document(ctx, detailsLink)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch details page")
		return "", fmt.Errorf("failed to fetch details %s: %w", detailsLink, err)
	}
	return ParseCaseDetails(doc), nil
}

func (c *Client) document(ctx context.Context, link string) (*goquery.Document, error) {
	body, err := c.fetchWithRetry(ctx, link)
	if err != nil {
		return nil, err
	}
	if len(body) < shortBodyLength {
		slog.WarnContext(ctx, "response is very short", "url", link, "length", len(body))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

// fetchWithRetry performs a rate-limited GET with exponential backoff retry
func (c *Client) fetchWithRetry(ctx context.Context, link string) ([]byte, error) {
	var lastErr error
	backoff := c.initialBackoff

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := c.http.R().
			SetContext(ctx).
			Get(link)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		switch status := res.StatusCode(); {
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (HTTP 429)")
			continue
		case status >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("unexpected status code: %d", status)
			continue
		case status != http.StatusOK:
			return nil, fmt.Errorf("unexpected status code: %d", status)
		}

		return res.Body(), nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}
