// Package xcom dispatches notifications across email, SMS, voice and
// local-sound channels with per-severity routing, and records every
// dispatch in the monitor ledger.
package xcom

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"

	"go.uber.org/zap"
)

// ConfigKeyProviders is the global_config key holding provider settings.
const ConfigKeyProviders = "xcom_providers"

// SMTPConfig configures the email (and SMS gateway) channel.
type SMTPConfig struct {
	Server           string `json:"server"`
	Port             int    `json:"port"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	DefaultRecipient string `json:"default_recipient"`
}

// TwilioConfig configures the voice channel.
type TwilioConfig struct {
	AccountSID       string `json:"account_sid"`
	AuthToken        string `json:"auth_token"`
	DefaultFromPhone string `json:"default_from_phone"`
	DefaultToPhone   string `json:"default_to_phone"`
}

// Providers is the xcom_providers blob layout.
type Providers struct {
	Email struct {
		SMTP SMTPConfig `json:"smtp"`
	} `json:"email"`
	API TwilioConfig `json:"api"`
}

// LoadProviders resolves provider settings: the stored config blob wins,
// environment variables fill gaps, and ${VAR} placeholders are expanded.
// Fields that stay unresolved disable their channel at send time.
func LoadProviders(ctx context.Context, db *database.DB) Providers {
	var p Providers
	if db != nil {
		if err := db.GetConfigJSON(ctx, ConfigKeyProviders, &p); err != nil &&
			!errors.Is(err, database.ErrNotFound) {
			logger.Log.Warn("Failed to read provider config", zap.Error(err))
		}
	}

	p.Email.SMTP.Server = resolve(p.Email.SMTP.Server, "SMTP_SERVER")
	if p.Email.SMTP.Port == 0 {
		if port := os.Getenv("SMTP_PORT"); port != "" {
			fmt.Sscanf(port, "%d", &p.Email.SMTP.Port)
		}
	}
	p.Email.SMTP.Username = resolve(p.Email.SMTP.Username, "SMTP_USERNAME")
	p.Email.SMTP.Password = resolve(p.Email.SMTP.Password, "SMTP_PASSWORD")
	p.Email.SMTP.DefaultRecipient = resolve(p.Email.SMTP.DefaultRecipient, "SMTP_DEFAULT_RECIPIENT")

	p.API.AccountSID = resolve(p.API.AccountSID, "TWILIO_ACCOUNT_SID")
	p.API.AuthToken = resolve(p.API.AuthToken, "TWILIO_AUTH_TOKEN")
	p.API.DefaultFromPhone = resolve(p.API.DefaultFromPhone, "TWILIO_FROM_PHONE")
	p.API.DefaultToPhone = resolve(p.API.DefaultToPhone, "TWILIO_TO_PHONE")

	return p
}

// resolve expands ${VAR} placeholders and falls back to the named env
// variable when the configured value is empty or stays unresolved.
func resolve(value, envKey string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		name := value[2 : len(value)-1]
		value = os.Getenv(name)
	}
	if value == "" {
		value = os.Getenv(envKey)
	}
	return value
}
