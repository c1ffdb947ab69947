package protocol

import (
	"context"
	"log/slog"

	"github.com/gridbase/gridbase/pkg/models"
)

// NodeOutput is what one node dispatch hands back to the runner: the
// output tag selecting the successor set, and data merged into the
// run payload.
type NodeOutput struct {
	Tag  string
	Data map[string]any
}

// NodeDispatcher executes one node kind. Dispatchers are resolved once
// at engine construction into a table keyed by node type.
type NodeDispatcher interface {
	Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext, logger *slog.Logger) (NodeOutput, error)
}
