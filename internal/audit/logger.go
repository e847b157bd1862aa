package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventTokenIssued      EventType = "token_issued"
	EventTokenRevoked     EventType = "token_revoked"
	EventTokenRejected    EventType = "token_rejected"
	EventAccessDenied     EventType = "access_denied"
	EventOperatorAuthFail EventType = "operator_auth_failure"
	EventCheckoutCreated  EventType = "checkout_created"
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventWebhookRejected  EventType = "webhook_rejected"
	EventRateLimitExceed  EventType = "rate_limit_exceeded"
)

type Event struct {
	Type           EventType
	IdentityID     string
	OrganizationID string
	ResourceID     string
	IP             string
	UserAgent      string
	Details        map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.IdentityID != "" {
		logger = logger.With().Str("identity_id", event.IdentityID).Logger()
	}
	if event.OrganizationID != "" {
		logger = logger.With().Str("organization_id", event.OrganizationID).Logger()
	}
	if event.ResourceID != "" {
		logger = logger.With().Str("resource_id", event.ResourceID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = getClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	return r.RemoteAddr
}
