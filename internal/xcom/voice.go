package xcom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"perpmonitor/internal/logger"

	"go.uber.org/zap"
)

const twilioCallURL = "https://api.twilio.com/2010-04-01/Accounts/%s/Calls.json"

// VoiceSender places calls through the Twilio REST API, reading the alert
// body aloud via inline TwiML.
type VoiceSender struct {
	cfg    TwilioConfig
	client *http.Client
	// endpoint overrides the Twilio URL in tests.
	endpoint string
}

// NewVoiceSender returns a sender, or nil when Twilio is unconfigured.
func NewVoiceSender(cfg TwilioConfig) *VoiceSender {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		logger.Log.Warn("Twilio not configured, voice channel disabled")
		return nil
	}
	return &VoiceSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send places one call. Returns false on any API failure.
func (s *VoiceSender) Send(to, _, body string) bool {
	if to == "" {
		to = s.cfg.DefaultToPhone
	}
	if to == "" {
		logger.Log.Warn("Voice call skipped, no destination phone")
		return false
	}

	endpoint := s.endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(twilioCallURL, s.cfg.AccountSID)
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.cfg.DefaultFromPhone)
	form.Set("Twiml", fmt.Sprintf("<Response><Say>%s</Say></Response>", escapeTwiML(body)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		logger.Log.Error("Voice call request build failed", zap.Error(err))
		return false
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Log.Error("Voice call failed", zap.String("to", to), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Log.Error("Voice call rejected",
			zap.String("to", to),
			zap.Int("status", resp.StatusCode),
		)
		return false
	}

	logger.Log.Info("Voice call placed", zap.String("to", to))
	return true
}

func escapeTwiML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
