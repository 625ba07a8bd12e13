package bearound

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bearound/booking-funnel/pkg/logging"
)

const (
	defaultBaseURL = "https://bearound.onrender.com"
	defaultTimeout = 15 * time.Second

	// availability endpoint expects local wall-clock times without offset
	localTimestampLayout = "2006-01-02T15:04:05.000"

	maxErrorBody = 300
)

var tracer = otel.Tracer("bearound.internal.bearound")

// Client wraps the marketplace REST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	paymentBaseURL string
	logger         *logging.Logger
}

// NewClient constructs a marketplace client. Payment calls go to baseURL unless
// WithPaymentBaseURL overrides it.
func NewClient(baseURL string, logger *logging.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	base := strings.TrimRight(baseURL, "/")
	return &Client{
		httpClient:     &http.Client{Timeout: defaultTimeout},
		baseURL:        base,
		paymentBaseURL: base,
		logger:         logger,
	}
}

// WithPaymentBaseURL sends create-payment-intent to a different host.
func (c *Client) WithPaymentBaseURL(baseURL string) *Client {
	if strings.TrimSpace(baseURL) != "" {
		c.paymentBaseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient.Timeout = d
	}
	return c
}

// ListStructures returns the structures picklist.
func (c *Client) ListStructures(ctx context.Context) ([]Structure, error) {
	ctx, span := tracer.Start(ctx, "bearound.list_structures")
	defer span.End()

	var out []Structure
	if err := c.do(ctx, "list structures", http.MethodGet, c.baseURL+"/structures/select-all-names", nil, "", &out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("bearound.structures", len(out)))
	return out, nil
}

// IsAvailable asks whether the experience is bookable inside the query window.
func (c *Client) IsAvailable(ctx context.Context, q AvailabilityQuery) (bool, error) {
	ctx, span := tracer.Start(ctx, "bearound.is_available")
	defer span.End()

	zone := q.Zone
	if zone == nil {
		zone = time.UTC
	}
	params := url.Values{}
	params.Set("id", q.ExperienceSlug)
	params.Set("from", q.From.In(zone).Format(localTimestampLayout))
	params.Set("to", q.To.In(zone).Format(localTimestampLayout))
	params.Set("zoneId", zone.String())
	span.SetAttributes(
		attribute.String("bearound.experience", q.ExperienceSlug),
		attribute.String("bearound.from", params.Get("from")),
	)

	var available bool
	if err := c.do(ctx, "is available", http.MethodGet, c.baseURL+"/experiences/is-available?"+params.Encode(), nil, "", &available); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetAttributes(attribute.Bool("bearound.available", available))
	return available, nil
}

// CreatePaymentIntent posts the booking form and returns the client secret and total.
func (c *Client) CreatePaymentIntent(ctx context.Context, form PaymentIntentForm) (*PaymentIntent, error) {
	ctx, span := tracer.Start(ctx, "bearound.create_payment_intent")
	defer span.End()
	span.SetAttributes(
		attribute.String("bearound.experience", form.ExperienceSlug),
		attribute.Int("bearound.participants", form.NumberOfParticipants),
		attribute.Bool("bearound.needs_transport", form.NeedsTransport),
	)

	values := url.Values{}
	values.Set("experienceSlug", form.ExperienceSlug)
	if form.StructureSlug != "" {
		values.Set("structureSlug", form.StructureSlug)
	}
	values.Set("numberOfParticipants", strconv.Itoa(form.NumberOfParticipants))
	values.Set("date", form.Date.Format(time.RFC3339))
	values.Set("needsTransport", strconv.FormatBool(form.NeedsTransport))

	var out PaymentIntent
	err := c.do(ctx, "create payment intent", http.MethodPost, c.paymentBaseURL+"/api/payment/create-payment-intent",
		strings.NewReader(values.Encode()), "application/x-www-form-urlencoded", &out)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("bearound.total_amount", out.TotalAmount))
	return &out, nil
}

// SearchExperiences forwards an encoded search form query.
func (c *Client) SearchExperiences(ctx context.Context, query url.Values) ([]Experience, error) {
	ctx, span := tracer.Start(ctx, "bearound.search_experiences")
	defer span.End()
	span.SetAttributes(attribute.String("bearound.structure_id", query.Get("structureId")))

	var out []Experience
	if err := c.do(ctx, "search experiences", http.MethodGet, c.baseURL+"/form/search-for-structure?"+query.Encode(), nil, "", &out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("bearound.results", len(out)))
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("bearound: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bearound: %s: http request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bearound: %s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		c.logger.Warn("marketplace API non-2xx response", "op", op, "status", resp.StatusCode, "body", msg)
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: msg}
	}

	if out == nil {
		return nil
	}
	if len(respBody) == 0 {
		return fmt.Errorf("bearound: %s: empty response body", op)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("bearound: %s: decode response: %w", op, err)
	}
	return nil
}
