// Package template applies automation templates to workflows:
// placeholder resolution, node construction, and all-or-nothing
// persistence.
package template

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence"
)

// Applier instantiates template nodes onto workflows.
type Applier struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewApplier(store persistence.Persistence, logger *slog.Logger) *Applier {
	return &Applier{
		persistence: store,
		logger:      logger.With("module", "template"),
	}
}

// Apply instantiates the template onto the workflow: the trigger node
// first, then the actions in template order, each chained to its
// predecessor's main successor list. Placeholders are resolved against
// fieldMappings; if any are missing the call fails with one error
// naming all of them and creates nothing. On success the template's
// usage counter is incremented; the template itself is never mutated.
func (a *Applier) Apply(ctx context.Context, templateID, workflowID string, fieldMappings map[string]string) ([]*models.Node, error) {
	template, err := a.persistence.TemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if missing := missingPlaceholders(template, fieldMappings); len(missing) > 0 {
		return nil, errs.Configf("template %s: unmapped placeholders: %s",
			templateID, strings.Join(missing, ", "))
	}

	trigger := &models.Node{
		ID:      uuid.New().String(),
		Kind:    models.NodeKindTrigger,
		Type:    template.Trigger.TriggerType,
		Name:    template.Trigger.Name,
		Config:  substitute(template.Trigger.Config, fieldMappings),
		Enabled: true,
	}

	nodes := []*models.Node{trigger}
	previous := trigger

	for _, action := range template.Actions {
		kind := action.NodeKind
		if kind == "" {
			kind = models.NodeKindAction
		}

		node := &models.Node{
			ID:      uuid.New().String(),
			Kind:    kind,
			Type:    action.ActionType,
			Name:    action.Name,
			Config:  substitute(action.Config, fieldMappings),
			Enabled: true,
		}

		previous.Next = appendSuccessor(previous.Next, models.OutputMain, node.ID)
		nodes = append(nodes, node)
		previous = node
	}

	if err := a.persistence.AddWorkflowNodes(ctx, workflowID, nodes); err != nil {
		return nil, fmt.Errorf("apply template %s: %w", templateID, err)
	}

	if err := a.persistence.IncrementTemplateUsage(ctx, templateID); err != nil {
		a.logger.Error("failed to increment template usage", "template_id", templateID, "error", err)
	}

	a.logger.Info("template applied", "template_id", templateID, "workflow_id", workflowID, "nodes", len(nodes))

	return nodes, nil
}

// missingPlaceholders collects every placeholder the template uses that
// fieldMappings does not resolve, sorted for a stable error message.
func missingPlaceholders(template *models.AutomationTemplate, fieldMappings map[string]string) []string {
	names := make(map[string]struct{})
	collectPlaceholders(template.Trigger.Config, names)

	for _, action := range template.Actions {
		collectPlaceholders(action.Config, names)
	}

	var missing []string

	for name := range names {
		if _, ok := fieldMappings[name]; !ok {
			missing = append(missing, name)
		}
	}

	sort.Strings(missing)

	return missing
}

func collectPlaceholders(value any, names map[string]struct{}) {
	switch v := value.(type) {
	case string:
		if isPlaceholder(v) {
			names[v] = struct{}{}
		}
	case map[string]any:
		for _, item := range v {
			collectPlaceholders(item, names)
		}
	case []any:
		for _, item := range v {
			collectPlaceholders(item, names)
		}
	}
}

func isPlaceholder(s string) bool {
	return strings.HasSuffix(s, models.PlaceholderFieldSuffix) ||
		strings.HasSuffix(s, models.PlaceholderTableSuffix)
}

// substitute resolves placeholders recursively through nested maps and
// slices, leaving every other value untouched. The input config is
// copied, never mutated.
func substitute(value map[string]any, fieldMappings map[string]string) map[string]any {
	resolved := substituteValue(value, fieldMappings)

	out, _ := resolved.(map[string]any)

	return out
}

func substituteValue(value any, fieldMappings map[string]string) any {
	switch v := value.(type) {
	case string:
		if mapped, ok := fieldMappings[v]; ok && isPlaceholder(v) {
			return mapped
		}

		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = substituteValue(item, fieldMappings)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = substituteValue(item, fieldMappings)
		}

		return out
	default:
		return v
	}
}

func appendSuccessor(next map[string][]string, tag, nodeID string) map[string][]string {
	if next == nil {
		next = make(map[string][]string)
	}

	next[tag] = append(next[tag], nodeID)

	return next
}
