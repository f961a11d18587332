// Package captcha verifies reCAPTCHA tokens collected by the referral form.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrMissingToken is returned when no token was submitted.
	ErrMissingToken = errors.New("captcha token is required")
	// ErrRejected is returned when the verification service refuses the token.
	ErrRejected = errors.New("captcha token rejected")
)

// DefaultVerifyURL is the reCAPTCHA siteverify endpoint.
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Verifier checks a captcha token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// Recaptcha verifies tokens against the siteverify API.
type Recaptcha struct {
	secret    string
	verifyURL string
	client    *http.Client
}

// NewRecaptcha creates a verifier for the given secret.
func NewRecaptcha(secret string) *Recaptcha {
	return &Recaptcha{
		secret:    secret,
		verifyURL: DefaultVerifyURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithVerifyURL points the verifier at a different siteverify endpoint.
func (r *Recaptcha) WithVerifyURL(u string) *Recaptcha {
	r.verifyURL = u
	return r
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify implements Verifier.
func (r *Recaptcha) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}

	form := url.Values{}
	form.Set("secret", r.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", r.verifyURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var sv siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&sv); err != nil {
		return fmt.Errorf("decoding siteverify response: %w", err)
	}
	if !sv.Success {
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(sv.ErrorCodes, ","))
	}
	return nil
}

// RequireToken only checks that a token is present. It is used when the gate
// is enabled without a verification secret.
type RequireToken struct{}

// Verify implements Verifier.
func (RequireToken) Verify(_ context.Context, token, _ string) error {
	if strings.TrimSpace(token) == "" {
		return ErrMissingToken
	}
	return nil
}
