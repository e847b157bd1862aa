package payments

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

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/atelierhq/portal-server-go/internal/util"
)

const (
	stripeBaseURL  = "https://api.stripe.com/v1"
	requestTimeout = 15 * time.Second
)

// StripeClient talks to the Stripe Checkout API over plain HTTP.
type StripeClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewStripeClient(apiKey string) *StripeClient {
	return &StripeClient{
		apiKey:  apiKey,
		baseURL: stripeBaseURL,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// NewStripeClientWithBaseURL is used by tests to point at a stub server.
func NewStripeClientWithBaseURL(apiKey, baseURL string) *StripeClient {
	c := NewStripeClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type stripeSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(params.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", params.Description)
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	s, err := c.do(req)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", s.ID).
		Int64("amountCents", params.AmountCents).
		Str("currency", params.Currency).
		Msg("checkout session created")

	return s, nil
}

func (c *StripeClient) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *StripeClient) do(req *http.Request) (*Session, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("stripe request failed")
		return nil, fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read stripe response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var sErr stripeError
		if json.Unmarshal(body, &sErr) == nil && sErr.Error.Message != "" {
			log.Error().
				Int("status", resp.StatusCode).
				Str("code", sErr.Error.Code).
				Dur("elapsed", elapsed).
				Msg("stripe error response")
			return nil, fmt.Errorf("stripe: %s", sErr.Error.Message)
		}
		return nil, fmt.Errorf("stripe request failed with status %d", resp.StatusCode)
	}

	var raw stripeSession
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode stripe response: %w", err)
	}

	paymentStatus := raw.PaymentStatus
	if raw.Status == "expired" {
		paymentStatus = SessionStatusExpired
	}

	return &Session{
		ID:            raw.ID,
		URL:           raw.URL,
		PaymentStatus: paymentStatus,
		AmountCents:   raw.AmountTotal,
		Currency:      strings.ToUpper(raw.Currency),
		IntentID:      raw.PaymentIntent,
		Metadata:      raw.Metadata,
	}, nil
}

// VerifyWebhookSignature checks a Stripe-style webhook signature header
// ("t=<unix>,v1=<hmac>") against the payload. The tolerance bounds replay of
// captured events.
func VerifyWebhookSignature(secret, header string, payload []byte, tolerance time.Duration, now time.Time) bool {
	if secret == "" || header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return false
		}
	}

	expected := util.HmacSHA256(secret, timestamp+"."+string(payload))
	for _, sig := range signatures {
		if util.ConstantTimeEqual(expected, sig) {
			return true
		}
	}
	return false
}
