package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/events"
	"github.com/gridbase/gridbase/pkg/protocol"
)

func requestEvent(req events.WebhookRequest) events.TriggerEvent {
	return events.TriggerEvent{
		BaseEvent: events.BaseEvent{Type: events.WebhookReceivedEvent},
		Request:   &req,
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newEvaluator(e Evaluator) *Evaluator {
	e.logger = slog.Default()

	return &e
}

func TestEvaluator_MethodFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		allowed  []string
		method   string
		wantFire bool
	}{
		{"default allows POST", nil, "POST", true},
		{"default rejects GET", nil, "GET", false},
		{"explicit list honored", []string{"PUT", "PATCH"}, "PATCH", true},
		{"explicit list rejects others", []string{"PUT"}, "POST", false},
		{"method match is case insensitive", []string{"post"}, "POST", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			evaluator := newEvaluator(Evaluator{Path: "/orders", AllowedMethods: tc.allowed})

			decision, err := evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
				Method: tc.method,
				Path:   "/orders",
			}))
			require.NoError(t, err)
			assert.Equal(t, tc.wantFire, decision.Fire)
		})
	}
}

func TestEvaluator_PathFilter(t *testing.T) {
	t.Parallel()

	evaluator := newEvaluator(Evaluator{Path: "/orders"})

	decision, err := evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
		Method: "POST",
		Path:   "/invoices",
	}))
	require.NoError(t, err)
	assert.False(t, decision.Fire)
}

func TestEvaluator_APIKeyAuth(t *testing.T) {
	t.Parallel()

	evaluator := newEvaluator(Evaluator{Path: "/orders", Auth: AuthAPIKey, Secret: "s3cret"})

	decision, err := evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
		Method:  "POST",
		Path:    "/orders",
		Headers: map[string]string{"x-api-key": "s3cret"},
	}))
	require.NoError(t, err)
	assert.True(t, decision.Fire, "header match is case insensitive")

	decision, err = evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
		Method:  "POST",
		Path:    "/orders",
		Headers: map[string]string{"X-Api-Key": "wrong"},
	}))
	require.NoError(t, err)
	assert.False(t, decision.Fire, "wrong key is a clean no-fire")
}

func TestEvaluator_APIKeyAuthCustomHeader(t *testing.T) {
	t.Parallel()

	evaluator := newEvaluator(Evaluator{
		Path:         "/orders",
		Auth:         AuthAPIKey,
		Secret:       "s3cret",
		APIKeyHeader: "X-Webhook-Token",
	})

	decision, err := evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
		Method:  "POST",
		Path:    "/orders",
		Headers: map[string]string{"X-Webhook-Token": "s3cret"},
	}))
	require.NoError(t, err)
	assert.True(t, decision.Fire)

	decision, err = evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
		Method:  "POST",
		Path:    "/orders",
		Headers: map[string]string{"X-Api-Key": "s3cret"},
	}))
	require.NoError(t, err)
	assert.False(t, decision.Fire, "key in the default header does not satisfy a custom header")
}

func TestEvaluator_BearerAuth(t *testing.T) {
	t.Parallel()

	evaluator := newEvaluator(Evaluator{Path: "/orders", Auth: AuthBearer, Secret: "tok"})

	tests := []struct {
		name     string
		header   string
		wantFire bool
	}{
		{"valid token", "Bearer tok", true},
		{"wrong token", "Bearer other", false},
		{"missing scheme", "tok", false},
		{"empty header", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			decision, err := evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
				Method:  "POST",
				Path:    "/orders",
				Headers: map[string]string{"Authorization": tc.header},
			}))
			require.NoError(t, err)
			assert.Equal(t, tc.wantFire, decision.Fire)
		})
	}
}

func TestEvaluator_SignatureAuth(t *testing.T) {
	t.Parallel()

	const secret = "signing-key"

	body := []byte(`{"order":"ord_1","total":12.5}`)
	evaluator := newEvaluator(Evaluator{Path: "/orders", Auth: AuthSignature, Secret: secret})

	decision, err := evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
		Method:  "POST",
		Path:    "/orders",
		Headers: map[string]string{"X-Gridbase-Signature": sign(secret, body)},
		Body:    body,
	}))
	require.NoError(t, err)
	assert.True(t, decision.Fire)

	decision, err = evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
		Method:  "POST",
		Path:    "/orders",
		Headers: map[string]string{"X-Gridbase-Signature": sign("other-key", body)},
		Body:    body,
	}))
	require.NoError(t, err)
	assert.False(t, decision.Fire)

	decision, err = evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
		Method:  "POST",
		Path:    "/orders",
		Headers: map[string]string{"X-Gridbase-Signature": "sha256=deadbeef"},
		Body:    body,
	}))
	require.NoError(t, err)
	assert.False(t, decision.Fire)
}

func TestEvaluator_PayloadExtraction(t *testing.T) {
	t.Parallel()

	evaluator := newEvaluator(Evaluator{Path: "/orders"})

	decision, err := evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
		Method: "POST",
		Path:   "/orders",
		Body:   []byte(`{"order":"ord_1","total":12.5}`),
	}))
	require.NoError(t, err)
	require.True(t, decision.Fire)

	assert.Equal(t, "ord_1", decision.Payload["order"])
	assert.Equal(t, 12.5, decision.Payload["total"])
	assert.Equal(t, "POST", decision.Payload["method"])

	decision, err = evaluator.Evaluate(context.Background(), requestEvent(events.WebhookRequest{
		Method: "POST",
		Path:   "/orders",
		Body:   []byte("plain text"),
	}))
	require.NoError(t, err)
	require.True(t, decision.Fire)
	assert.Equal(t, "plain text", decision.Payload["body"])
}

func TestFactory_Create(t *testing.T) {
	t.Parallel()

	factory := NewFactory()
	deps := protocol.Dependencies{Logger: slog.Default()}

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()

		evaluator, err := factory.Create(map[string]any{
			"path":            "/orders",
			"allowed_methods": []any{"POST", "PUT"},
			"auth_mode":       "signature",
			"secret":          "k",
		}, deps)
		require.NoError(t, err)

		typed := evaluator.(*Evaluator)
		assert.Equal(t, AuthSignature, typed.Auth)
		assert.Equal(t, []string{"POST", "PUT"}, typed.AllowedMethods)
	})

	t.Run("header_name threaded through", func(t *testing.T) {
		t.Parallel()

		evaluator, err := factory.Create(map[string]any{
			"path":        "/orders",
			"auth_mode":   "api_key",
			"secret":      "k",
			"header_name": "X-Webhook-Token",
		}, deps)
		require.NoError(t, err)

		typed := evaluator.(*Evaluator)
		assert.Equal(t, "X-Webhook-Token", typed.APIKeyHeader)

		assert.True(t, typed.Authenticate(&events.WebhookRequest{
			Headers: map[string]string{"X-Webhook-Token": "k"},
		}))
	})

	t.Run("header_name defaults", func(t *testing.T) {
		t.Parallel()

		evaluator, err := factory.Create(map[string]any{
			"path":      "/orders",
			"auth_mode": "api_key",
			"secret":    "k",
		}, deps)
		require.NoError(t, err)

		typed := evaluator.(*Evaluator)
		assert.True(t, typed.Authenticate(&events.WebhookRequest{
			Headers: map[string]string{DefaultAPIKeyHeader: "k"},
		}))
	})

	t.Run("missing path", func(t *testing.T) {
		t.Parallel()

		_, err := factory.Create(map[string]any{}, deps)
		require.Error(t, err)
		assert.True(t, errs.IsConfig(err))
	})

	t.Run("auth without secret", func(t *testing.T) {
		t.Parallel()

		_, err := factory.Create(map[string]any{"path": "/x", "auth_mode": "api_key"}, deps)
		require.Error(t, err)
		assert.True(t, errs.IsConfig(err))
	})

	t.Run("unknown auth mode", func(t *testing.T) {
		t.Parallel()

		_, err := factory.Create(map[string]any{"path": "/x", "auth_mode": "mtls"}, deps)
		require.Error(t, err)
		assert.True(t, errs.IsConfig(err))
	})
}
