// Package token exchanges a raw wallet credential for a single-use payment
// token at the tokenization service boundary.
package token

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/yourorg/walletpay/internal/payment"
)

// Tokenizer converts a wallet credential into a payment token. The call is
// made at most once per credential; retry policy belongs to the caller, never
// to the client.
type Tokenizer interface {
	Tokenize(ctx context.Context, cred payment.Credential) (payment.Token, error)
}

type tokenizeRequest struct {
	PaymentData string `json:"payment_data"`
	DisplayName string `json:"display_name"`
	Network     string `json:"network"`
}

type tokenizeResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RestTokenizer is the REST implementation of Tokenizer.
type RestTokenizer struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewRestTokenizer creates a RestTokenizer against the given base URL. The
// API key is scoped to this client, never process-global.
func NewRestTokenizer(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *RestTokenizer {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	return &RestTokenizer{client: client, logger: logger}
}

// Tokenize implements Tokenizer. Transport timeouts surface as
// payment.KindNetworkTimeout; every other failure as KindTokenizationError.
// The token value itself is never logged.
func (t *RestTokenizer) Tokenize(ctx context.Context, cred payment.Credential) (payment.Token, error) {
	body := tokenizeRequest{
		PaymentData: base64.StdEncoding.EncodeToString(cred.Data),
		DisplayName: cred.DisplayName,
		Network:     string(cred.Network),
	}

	var ok tokenizeResponse
	var apiErr errorResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&ok).
		SetError(&apiErr).
		Post("/v1/payment_methods")
	if err != nil {
		if isTimeout(err) {
			return payment.Token{}, payment.NewError(payment.KindNetworkTimeout, err.Error())
		}
		return payment.Token{}, payment.NewError(payment.KindTokenizationError, err.Error())
	}

	if resp.IsError() {
		detail := apiErr.Error.Message
		if detail == "" {
			detail = fmt.Sprintf("tokenization service returned HTTP %d", resp.StatusCode())
		}
		if apiErr.Error.Code != "" {
			detail = apiErr.Error.Code + ": " + detail
		}
		t.logger.Warn().Int("status", resp.StatusCode()).Str("code", apiErr.Error.Code).Msg("tokenization failed")
		return payment.Token{}, payment.NewError(payment.KindTokenizationError, detail)
	}

	if ok.ID == "" {
		return payment.Token{}, payment.NewError(payment.KindTokenizationError, "tokenization service returned an empty token id")
	}
	return payment.Token{ID: ok.ID}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
