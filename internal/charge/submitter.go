// Package charge submits a tokenized payment to the merchant charge API.
package charge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/yourorg/walletpay/internal/payment"
)

// Submitter charges a payment token for a product. The call is single-shot;
// the backend's effect on failure is unknown, so a retry must start over with
// a fresh credential and token.
type Submitter interface {
	Charge(ctx context.Context, tok payment.Token, productID string, idempotencyKey string) error
}

type chargeRequest struct {
	Token     string `json:"token"`
	ProductID string `json:"product_id"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RestSubmitter is the REST implementation of Submitter.
type RestSubmitter struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewRestSubmitter creates a RestSubmitter against the given base URL.
func NewRestSubmitter(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *RestSubmitter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	return &RestSubmitter{client: client, logger: logger}
}

// Charge implements Submitter. The idempotency key is fresh per session
// attempt; a backend that honors it can deduplicate replays, but this client
// does not verify the effect of earlier attempts. Transport timeouts surface
// as payment.KindNetworkTimeout, everything else as KindChargeError.
func (s *RestSubmitter) Charge(ctx context.Context, tok payment.Token, productID string, idempotencyKey string) error {
	var apiErr errorResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", idempotencyKey).
		SetBody(chargeRequest{Token: tok.ID, ProductID: productID}).
		SetError(&apiErr).
		Post("/v1/charges")
	if err != nil {
		if isTimeout(err) {
			return payment.NewError(payment.KindNetworkTimeout, err.Error())
		}
		return payment.NewError(payment.KindChargeError, err.Error())
	}

	if resp.IsError() {
		detail := apiErr.Error.Message
		if detail == "" {
			detail = fmt.Sprintf("charge API returned HTTP %d", resp.StatusCode())
		}
		if apiErr.Error.Code != "" {
			detail = apiErr.Error.Code + ": " + detail
		}
		s.logger.Warn().Int("status", resp.StatusCode()).Str("code", apiErr.Error.Code).Str("product", productID).Msg("charge failed")
		return payment.NewError(payment.KindChargeError, detail)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
