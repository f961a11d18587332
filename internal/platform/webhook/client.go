package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrDocumentRejected is returned when the document endpoint answers with
	// anything but 200 OK.
	ErrDocumentRejected = errors.New("document endpoint rejected upload")
	// ErrMissingMediaURL is returned when a 200 response carries no media_url[0].url.
	ErrMissingMediaURL = errors.New("document endpoint response has no media url")
	// ErrRecordRejected is returned when the record endpoint answers non-2xx.
	ErrRecordRejected = errors.New("record endpoint rejected payload")
)

// PDFFileName is the file name used for the rendered document part.
const PDFFileName = "doctor-form.pdf"

// File is a binary attachment with its original name.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// DocumentUpload is the multipart payload for the document endpoint.
type DocumentUpload struct {
	Name        string
	Phone       string
	Email       string
	PDF         []byte
	Attachments []File
}

// Endpoints holds the two outbound URLs.
type Endpoints struct {
	DocumentURL string
	RecordURL   string
}

// Validate checks both URLs are absolute http(s) URLs.
func (e Endpoints) Validate() error {
	if err := ValidateURL(e.DocumentURL); err != nil {
		return fmt.Errorf("document webhook: %w", err)
	}
	if err := ValidateURL(e.RecordURL); err != nil {
		return fmt.Errorf("record webhook: %w", err)
	}
	return nil
}

// ValidateURL checks that the URL is non-empty and uses http or https.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url host is required")
	}
	return nil
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) { cl.httpClient.Timeout = d }
}

// WithSecret enables HMAC signing of every outbound body.
func WithSecret(secret string) ClientOption {
	return func(cl *Client) { cl.secret = secret }
}

// WithDeliveryStore records every attempt in store.
func WithDeliveryStore(store DeliveryStore) ClientOption {
	return func(cl *Client) { cl.store = store }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

// Client posts referral payloads to the configured endpoints. Calls are never
// retried; a failed submission is re-run in full by the caller.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	secret     string
	store      DeliveryStore
	logger     zerolog.Logger
}

// NewClient creates a Client.
func NewClient(endpoints Endpoints, opts ...ClientOption) *Client {
	c := &Client{
		endpoints:  endpoints,
		httpClient: &http.Client{},
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type mediaResponse struct {
	MediaURL []struct {
		URL string `json:"url"`
	} `json:"media_url"`
}

// UploadDocument posts the PDF and attachments as multipart form data and
// returns the first media URL from the response.
func (c *Client) UploadDocument(ctx context.Context, up DocumentUpload) (string, error) {
	body, contentType, err := encodeDocument(up)
	if err != nil {
		return "", fmt.Errorf("encode multipart: %w", err)
	}

	status, respBody, err := c.post(ctx, KindDocument, c.endpoints.DocumentURL, contentType, body)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrDocumentRejected, status)
	}

	var mr mediaResponse
	if err := json.Unmarshal(respBody, &mr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingMediaURL, err)
	}
	if len(mr.MediaURL) == 0 || mr.MediaURL[0].URL == "" {
		return "", ErrMissingMediaURL
	}
	return mr.MediaURL[0].URL, nil
}

// PostRecord posts payload as JSON to the record endpoint.
func (c *Client) PostRecord(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	status, _, err := c.post(ctx, KindRecord, c.endpoints.RecordURL, "application/json", body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: status %d", ErrRecordRejected, status)
	}
	return nil
}

// maxResponseBody caps how much of a response is read.
const maxResponseBody = 64 << 10

func (c *Client) post(ctx context.Context, kind, target, contentType string, body []byte) (int, []byte, error) {
	now := time.Now()
	attempt := &DeliveryAttempt{
		ID:           uuid.New().String(),
		Kind:         kind,
		URL:          target,
		PayloadBytes: len(body),
		CreatedAt:    now,
	}
	defer c.record(ctx, attempt)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		attempt.Status = StatusFailed
		attempt.Error = err.Error()
		return 0, nil, fmt.Errorf("build %s request: %w", kind, err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.secret != "" {
		attempt.Signature = SignPayload(body, c.secret)
		req.Header.Set("X-Webhook-Signature", "sha256="+attempt.Signature)
		req.Header.Set("X-Webhook-ID", attempt.ID)
		req.Header.Set("X-Webhook-Timestamp", now.UTC().Format(time.RFC3339))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	attempt.Duration = time.Since(start)
	if err != nil {
		attempt.Status = StatusFailed
		attempt.Error = err.Error()
		return 0, nil, fmt.Errorf("post %s: %w", kind, err)
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		attempt.Status = StatusFailed
		attempt.Error = err.Error()
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", kind, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		attempt.Status = StatusSuccess
	} else {
		attempt.Status = StatusFailed
		attempt.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}

	c.logger.Info().
		Str("kind", kind).
		Int("status", resp.StatusCode).
		Dur("latency", attempt.Duration).
		Msg("webhook delivered")

	return resp.StatusCode, respBody, nil
}

func (c *Client) record(ctx context.Context, attempt *DeliveryAttempt) {
	if c.store == nil {
		return
	}
	if err := c.store.RecordDelivery(context.WithoutCancel(ctx), attempt); err != nil {
		c.logger.Warn().Err(err).Str("kind", attempt.Kind).Msg("record delivery attempt")
	}
}

func encodeDocument(up DocumentUpload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range []struct{ name, value string }{
		{"name", up.Name},
		{"phone", up.Phone},
		{"email", up.Email},
	} {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if err := writeFile(w, "pdf", File{Name: PDFFileName, ContentType: "application/pdf", Data: up.PDF}); err != nil {
		return nil, "", err
	}
	for _, a := range up.Attachments {
		if err := writeFile(w, "attachments", a); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFile(w *multipart.Writer, field string, f File) error {
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}
