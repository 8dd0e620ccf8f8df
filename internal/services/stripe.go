package services

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
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StripeClient creates payment intents through the Stripe REST API. Without
// a secret key it runs dry and hands out fake client secrets.
type StripeClient struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	dryRun     bool
}

func NewStripeClient(secretKey string, logger zerolog.Logger) *StripeClient {
	return &StripeClient{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "stripe").Logger(),
		dryRun:     secretKey == "",
	}
}

// WithBaseURL overrides the API base URL (for testing).
func (s *StripeClient) WithBaseURL(baseURL string) *StripeClient {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

type stripeIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Error        *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (s *StripeClient) CreatePaymentIntent(ctx context.Context, amountCents int64, currency string) (string, error) {
	ctx, span := tracer.Start(ctx, "stripe.create_payment_intent", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int64("portal.amount_cents", amountCents))

	if s.dryRun {
		id := "pi_dryrun_" + uuid.NewString()[:8]
		s.logger.Info().Int64("amount_cents", amountCents).Msg("stripe dry run: skipping payment intent")
		return id + "_secret_dryrun", nil
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", currency)
	form.Add("payment_method_types[]", "card")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build stripe request: %v", ErrUpstream, err)
	}
	req.SetBasicAuth(s.secretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: stripe request: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read stripe response: %v", ErrUpstream, err)
	}

	var parsed stripeIntentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode stripe response (status %d): %v", ErrUpstream, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("%w: stripe returned %d: %s", ErrUpstream, resp.StatusCode, msg)
	}
	if parsed.ClientSecret == "" {
		return "", fmt.Errorf("%w: stripe response missing client_secret", ErrUpstream)
	}

	s.logger.Info().Str("intent_id", parsed.ID).Int64("amount_cents", amountCents).Msg("payment intent created")
	return parsed.ClientSecret, nil
}
