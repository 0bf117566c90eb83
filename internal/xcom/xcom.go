package xcom

import (
	"context"
	"encoding/json"
	"time"

	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

// LedgerName identifies dispatcher entries in the monitor ledger.
const LedgerName = "xcom_monitor"

// Sender is one outbound channel adapter.
type Sender interface {
	Send(to, subject, body string) bool
}

// Player is the local audible channel.
type Player interface {
	Play() bool
}

// Notification is one dispatch request.
type Notification struct {
	Severity  models.AlertLevel
	Subject   string
	Body      string
	Recipient string
	Initiator string
}

// Result is the per-channel outcome matrix for one dispatch.
type Result struct {
	Severity  models.AlertLevel `json:"severity"`
	Initiator string            `json:"initiator"`
	Email     *bool             `json:"email,omitempty"`
	SMS       *bool             `json:"sms,omitempty"`
	Voice     *bool             `json:"voice,omitempty"`
	Sound     *bool             `json:"sound,omitempty"`
	Success   bool              `json:"success"`
	Timestamp time.Time         `json:"timestamp"`
}

// Dispatcher routes notifications by severity: Low goes to email, Medium
// to SMS, High to SMS plus voice plus the audible channel. It never
// returns an error; outcomes are recorded in the ledger.
type Dispatcher struct {
	Email Sender
	SMS   Sender
	Voice Sender
	Sound Player

	db *database.DB
}

// NewDispatcher builds the production dispatcher from resolved provider
// config. Unconfigured channels stay nil and count as failed attempts.
func NewDispatcher(ctx context.Context, db *database.DB, soundFile string) *Dispatcher {
	providers := LoadProviders(ctx, db)

	d := &Dispatcher{db: db}
	if email := NewEmailSender(providers.Email.SMTP); email != nil {
		d.Email = email
		if sms := NewSMSSender(email, providers.Email.SMTP.DefaultRecipient); sms != nil {
			d.SMS = sms
		}
	}
	if voice := NewVoiceSender(providers.API); voice != nil {
		d.Voice = voice
	}
	d.Sound = NewSoundPlayer(soundFile)
	return d
}

// Send attempts every channel mapped to the notification's severity.
// Success means at least one channel delivered. A ledger entry with the
// full result matrix is always written, even on total failure.
func (d *Dispatcher) Send(ctx context.Context, n Notification) Result {
	result := Result{
		Severity:  n.Severity,
		Initiator: n.Initiator,
		Timestamp: time.Now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Dispatcher panicked", zap.Any("panic", r))
		}
		d.recordLedger(ctx, result)
	}()

	switch n.Severity {
	case models.LevelLow:
		ok := d.try(d.Email, n)
		result.Email = &ok
	case models.LevelMedium:
		ok := d.try(d.SMS, n)
		result.SMS = &ok
	case models.LevelHigh:
		sms := d.try(d.SMS, n)
		result.SMS = &sms
		voice := d.try(d.Voice, n)
		result.Voice = &voice
		sound := false
		if d.Sound != nil {
			sound = d.Sound.Play()
		}
		result.Sound = &sound
	default:
		logger.Log.Debug("Normal severity, nothing to dispatch",
			zap.String("initiator", n.Initiator),
		)
	}

	result.Success = boolVal(result.Email) || boolVal(result.SMS) ||
		boolVal(result.Voice) || boolVal(result.Sound)

	logger.Log.Info("Notification dispatched",
		zap.String("severity", string(n.Severity)),
		zap.String("initiator", n.Initiator),
		zap.Bool("success", result.Success),
	)
	return result
}

func (d *Dispatcher) try(ch Sender, n Notification) bool {
	if ch == nil {
		return false
	}
	return ch.Send(n.Recipient, n.Subject, n.Body)
}

func (d *Dispatcher) recordLedger(ctx context.Context, result Result) {
	if d.db == nil {
		return
	}
	status := models.LedgerError
	if result.Success {
		status = models.LedgerSuccess
	}
	metadata, err := json.Marshal(result)
	if err != nil {
		metadata = []byte("{}")
	}
	if err := d.db.InsertLedgerEntry(ctx, LedgerName, status, string(metadata)); err != nil {
		logger.Log.Warn("Failed to record dispatch ledger entry", zap.Error(err))
	}
}

func boolVal(b *bool) bool {
	return b != nil && *b
}
