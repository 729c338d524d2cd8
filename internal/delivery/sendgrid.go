package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultSendGridURL = "https://api.sendgrid.com"

// SendGridConfig holds the SendGrid v3 API settings
type SendGridConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// SendGridSender delivers messages through the SendGrid v3 mail/send API
type SendGridSender struct {
	cfg        SendGridConfig
	httpClient *http.Client
	backoff    time.Duration
}

// NewSendGridSender creates a SendGrid sender
func NewSendGridSender(cfg SendGridConfig) (*SendGridSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid: missing API key")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultSendGridURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &SendGridSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    500 * time.Millisecond,
	}, nil
}

func (s *SendGridSender) Name() string { return "sendgrid" }

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             Address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
	Attachments      []sgAttachment    `json:"attachments,omitempty"`
}

type personalization struct {
	To []Address `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgAttachment struct {
	Content     string `json:"content"`
	Type        string `json:"type,omitempty"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition,omitempty"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   any    `json:"field,omitempty"`
	} `json:"errors"`
}

// HTTPError is a non-2xx response from SendGrid
type HTTPError struct {
	StatusCode int
	Body       string
	Messages   []string
}

func (e *HTTPError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("sendgrid: http %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("sendgrid: http %d: %s", e.StatusCode, e.Body)
}

// Send posts msg to /v3/mail/send, retrying 429 and 5xx responses
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.From.Email) == "" {
		return fmt.Errorf("sendgrid: From.Email required")
	}
	if strings.TrimSpace(msg.To.Email) == "" {
		return fmt.Errorf("sendgrid: To required")
	}

	wire := mailSendRequest{
		Personalizations: []personalization{{To: []Address{msg.To}}},
		From:             msg.From,
		Subject:          msg.Subject,
		Content:          []mailContent{{Type: "text/plain", Value: msg.Text}},
	}
	for _, a := range msg.Attachments {
		mimeType := a.MIMEType
		if mimeType == "" {
			mimeType = MIMETypeFor(a.Filename)
		}
		wire.Attachments = append(wire.Attachments, sgAttachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Type:        mimeType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("sendgrid: failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}

		lastErr = s.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var httpErr *HTTPError
		if errors.As(lastErr, &httpErr) && !retryable(httpErr.StatusCode) {
			return lastErr
		}
	}
	return lastErr
}

func (s *SendGridSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil {
		for _, e := range er.Errors {
			httpErr.Messages = append(httpErr.Messages, e.Message)
		}
	}
	return httpErr
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
