package xcom

import (
	"strings"
	"unicode/utf8"

	"perpmonitor/internal/logger"
)

// SMSSender delivers texts through a carrier email-to-SMS gateway, riding
// on the SMTP channel rather than a paid SMS API.
type SMSSender struct {
	email   *EmailSender
	gateway string
}

// NewSMSSender wires the SMS channel over an email sender. gateway is the
// full gateway address (e.g. 5551234567@vtext.com); when empty the SMTP
// default recipient is used, assuming it is already a gateway address.
func NewSMSSender(email *EmailSender, gateway string) *SMSSender {
	if email == nil {
		logger.Log.Warn("SMS channel disabled, no email transport")
		return nil
	}
	return &SMSSender{email: email, gateway: gateway}
}

// Send delivers one text. Carrier gateways drop subjects and long
// bodies, so the message is flattened and truncated.
func (s *SMSSender) Send(to, _, body string) bool {
	if to == "" {
		to = s.gateway
	}

	body = truncateSMS(strings.ReplaceAll(body, "\n", " "))
	return s.email.Send(to, "", body)
}

// truncateSMS caps a message at the 160-byte gateway limit, backing up to
// a rune boundary so the cut never splits a UTF-8 sequence.
func truncateSMS(body string) string {
	if len(body) <= 160 {
		return body
	}
	cut := 157
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}
