package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"roomchat/pkg/logger"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendMailer sends through the Resend HTTP API.
type ResendMailer struct {
	apiKey      string
	from        string
	endpoint    string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	log         zerolog.Logger
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{
		apiKey:   apiKey,
		from:     from,
		endpoint: resendEndpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		// Resend allows 2 requests per second per key
		rateLimiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		log:         logger.Module("mail.resend"),
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (m *ResendMailer) SendInvitation(ctx context.Context, email InvitationEmail) error {
	subject, html, err := Render(email)
	if err != nil {
		return err
	}

	body, err := json.Marshal(resendRequest{From: m.from, To: []string{email.To}, Subject: subject, HTML: html})
	if err != nil {
		return fmt.Errorf("encode resend request: %w", err)
	}

	if err := m.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("resend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr resendError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("resend failed: %s", apiErr.Message)
		}
		return fmt.Errorf("resend failed: status %d", resp.StatusCode)
	}

	m.log.Info().Str("to", email.To).Str("room", email.RoomName).Msg("invitation sent")
	return nil
}
