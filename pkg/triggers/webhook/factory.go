package webhook

import (
	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/protocol"
	"github.com/gridbase/gridbase/pkg/internal/config"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (*Factory) ID() string { return models.NodeTypeTriggerWebhook }

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Inbound path this trigger listens on",
			},
			"allowed_methods": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"auth_mode": map[string]any{
				"type": "string",
				"enum": []string{
					string(AuthNone),
					string(AuthAPIKey),
					string(AuthBearer),
					string(AuthSignature),
				},
			},
			"secret": map[string]any{
				"type": "string",
			},
			"header_name": map[string]any{
				"type":        "string",
				"description": "Header carrying the key for api_key auth, defaults to " + DefaultAPIKeyHeader,
			},
		},
		"required": []string{"path"},
	}
}

func (*Factory) Create(raw map[string]any, deps protocol.Dependencies) (protocol.TriggerEvaluator, error) {
	path := config.String(raw, "path")
	if path == "" {
		return nil, errs.Configf("webhook trigger: path is required")
	}

	auth := AuthMode(config.String(raw, "auth_mode"))
	secret := config.String(raw, "secret")

	switch auth {
	case AuthNone, "":
	case AuthAPIKey, AuthBearer, AuthSignature:
		if secret == "" {
			return nil, errs.Configf("webhook trigger: secret is required for %s auth", auth)
		}
	default:
		return nil, errs.Configf("webhook trigger: unknown auth mode %q", auth)
	}

	return &Evaluator{
		Path:           path,
		AllowedMethods: config.Strings(raw, "allowed_methods"),
		Auth:           auth,
		Secret:         secret,
		APIKeyHeader:   config.String(raw, "header_name"),
		logger:         deps.Logger,
	}, nil
}
