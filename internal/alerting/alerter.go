// Package alerting sends operator notifications through an outbound mail relay.
// Alerting is best-effort: a failed send is logged and never escalated, so a
// broken relay can not take the collection run down with it.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/gervais-amoah/finance-pipeline/internal/config"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// Severity classifies what kind of failure an alert reports.
type Severity string

const (
	// SeverityStructureChange - the scraped page no longer matches the expected layout
	SeverityStructureChange Severity = "scrape-structure-change"
	// SeverityForwarding - the remote backend rejected or never received a batch
	SeverityForwarding Severity = "forwarding-failure"
	// SeverityGeneric - any other upstream failure worth an operator's attention
	SeverityGeneric Severity = "generic-error"
)

// Alerter notifies an operator about a pipeline failure.
type Alerter interface {
	Alert(ctx context.Context, severity Severity, message string)
}

// EmailAlerter sends alerts as plain-text emails over SMTP with STARTTLS.
type EmailAlerter struct {
	cfg config.SMTPConfig
	log zerolog.Logger
}

// NewEmailAlerter creates an alerter for the configured relay. When SMTP is
// not configured the alerter stays usable but only logs, so callers never
// need to branch on configuration.
func NewEmailAlerter(cfg config.SMTPConfig, log zerolog.Logger) *EmailAlerter {
	a := &EmailAlerter{
		cfg: cfg,
		log: log.With().Str("component", "alerter").Logger(),
	}
	if !cfg.Enabled() {
		a.log.Warn().Msg("SMTP not configured, alerts will only be logged")
	}
	return a
}

// Alert composes and sends one notification email. Send failures (bad
// credentials, unreachable relay) are logged and swallowed.
func (a *EmailAlerter) Alert(ctx context.Context, severity Severity, message string) {
	a.log.Error().
		Str("severity", string(severity)).
		Str("message", message).
		Msg("ALERT")

	if !a.cfg.Enabled() {
		return
	}

	msg := mail.NewMsg()
	if err := msg.From(a.cfg.Sender); err != nil {
		a.log.Error().Err(err).Msg("Invalid sender address, alert not sent")
		return
	}
	if err := msg.To(a.cfg.Recipient); err != nil {
		a.log.Error().Err(err).Msg("Invalid recipient address, alert not sent")
		return
	}
	msg.Subject(subjectFor(severity))
	msg.SetBodyString(mail.TypeTextPlain, composeBody(severity, message, time.Now().UTC()))

	client, err := mail.NewClient(a.cfg.Host,
		mail.WithPort(a.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(a.cfg.Sender),
		mail.WithPassword(a.cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to create SMTP client, alert not sent")
		return
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		a.log.Error().Err(err).Msg("Failed to send alert email")
		return
	}

	a.log.Info().Str("recipient", a.cfg.Recipient).Msg("Alert email sent")
}

func subjectFor(severity Severity) string {
	switch severity {
	case SeverityStructureChange:
		return "[forex-pipeline] Scraper: page structure changed"
	case SeverityForwarding:
		return "[forex-pipeline] Remote forwarding failed"
	default:
		return "[forex-pipeline] Pipeline error"
	}
}

func composeBody(severity Severity, message string, at time.Time) string {
	return fmt.Sprintf("Severity: %s\nTime: %s\n\n%s\n",
		severity, at.Format(time.RFC3339), message)
}
