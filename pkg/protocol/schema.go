package protocol

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/gridbase/gridbase/pkg/errs"
)

// ValidateConfig checks a node config against a factory's JSON schema.
// Violations are configuration errors; they fail fast and are never
// retried.
func ValidateConfig(config map[string]any, schema map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return errs.Config(fmt.Errorf("schema validation: %w", err))
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		details = append(details, violation.String())
	}

	return errs.Configf("invalid config: %s", strings.Join(details, "; "))
}
