// Package webhook provides the inbound webhook trigger evaluator:
// method filtering, request authentication, and payload extraction.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/protocol"
)

// AuthMode is how inbound requests authenticate.
type AuthMode string

const (
	AuthNone      AuthMode = "none"
	AuthAPIKey    AuthMode = "api_key"
	AuthBearer    AuthMode = "bearer_token"
	AuthSignature AuthMode = "signature"
)

const (
	// DefaultAPIKeyHeader is where api_key auth looks for the key when the
	// trigger config does not name a header.
	DefaultAPIKeyHeader = "X-Api-Key"

	signatureHeader = "X-Gridbase-Signature"
	signaturePrefix = "sha256="
)

// Evaluator decides firing for one inbound webhook trigger. A request
// that fails the method filter or authentication is a clean no-fire,
// never an error: unauthenticated traffic is expected, not exceptional.
type Evaluator struct {
	Path           string
	AllowedMethods []string
	Auth           AuthMode
	Secret         string

	// APIKeyHeader is the request header api_key auth reads the key from.
	// Empty means DefaultAPIKeyHeader.
	APIKeyHeader string

	logger *slog.Logger
}

func (e *Evaluator) Evaluate(_ context.Context, event events.TriggerEvent) (protocol.Decision, error) {
	if event.Type != events.WebhookReceivedEvent || event.Request == nil {
		return protocol.Decision{}, nil
	}

	req := event.Request
	if req.Path != e.Path {
		return protocol.Decision{}, nil
	}

	if !e.methodAllowed(req.Method) {
		e.logger.Debug("webhook request rejected", "path", req.Path, "method", req.Method, "reason", "method not allowed")

		return protocol.Decision{}, nil
	}

	if !e.authenticate(req) {
		e.logger.Debug("webhook request rejected", "path", req.Path, "reason", "authentication failed")

		return protocol.Decision{}, nil
	}

	payload := map[string]any{
		"trigger_type": models.NodeTypeTriggerWebhook,
		"method":       req.Method,
		"path":         req.Path,
		"headers":      req.Headers,
	}

	// JSON bodies are merged field by field, anything else is passed
	// through raw.
	var body map[string]any
	if len(req.Body) > 0 && json.Unmarshal(req.Body, &body) == nil {
		payload["body"] = body

		for k, v := range body {
			if _, reserved := payload[k]; !reserved {
				payload[k] = v
			}
		}
	} else if len(req.Body) > 0 {
		payload["body"] = string(req.Body)
	}

	return protocol.Decision{Fire: true, Payload: payload}, nil
}

// AllowsMethod reports whether the trigger accepts the HTTP method.
// The inbound listener uses it to answer 405 before enqueueing.
func (e *Evaluator) AllowsMethod(method string) bool {
	return e.methodAllowed(method)
}

// Authenticate reports whether the request passes the configured auth
// mode. The inbound listener uses it to answer 401.
func (e *Evaluator) Authenticate(req *events.WebhookRequest) bool {
	return e.authenticate(req)
}

func (e *Evaluator) methodAllowed(method string) bool {
	if len(e.AllowedMethods) == 0 {
		return strings.EqualFold(method, "POST")
	}

	for _, allowed := range e.AllowedMethods {
		if strings.EqualFold(allowed, method) {
			return true
		}
	}

	return false
}

func (e *Evaluator) authenticate(req *events.WebhookRequest) bool {
	switch e.Auth {
	case AuthNone, "":
		return true
	case AuthAPIKey:
		header := e.APIKeyHeader
		if header == "" {
			header = DefaultAPIKeyHeader
		}

		key := req.Header(header)

		return key != "" && hmac.Equal([]byte(key), []byte(e.Secret))
	case AuthBearer:
		value := req.Header("Authorization")

		token, found := strings.CutPrefix(value, "Bearer ")
		if !found {
			return false
		}

		return hmac.Equal([]byte(token), []byte(e.Secret))
	case AuthSignature:
		return e.verifySignature(req)
	default:
		return false
	}
}

// verifySignature checks an HMAC-SHA256 of the raw request body, hex
// encoded with a "sha256=" prefix. The raw bytes are signed, not a
// re-serialization, so byte-identical payloads verify regardless of
// JSON key order.
func (e *Evaluator) verifySignature(req *events.WebhookRequest) bool {
	provided := req.Header(signatureHeader)
	if !strings.HasPrefix(provided, signaturePrefix) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(e.Secret))
	mac.Write(req.Body)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(provided), []byte(expected))
}
