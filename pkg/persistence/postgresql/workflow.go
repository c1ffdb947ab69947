package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence"
)

const workflowColumns = `id, name, workspace_id, nodes, published, paused, test_run_expires_at, created_at, updated_at`

func (p *Persistence) PublishedWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE published = true ORDER BY id`)
	if err != nil {
		return nil, persistence.NewStoreError("PublishedWorkflows", "", err)
	}
	defer func() { _ = rows.Close() }()

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewStoreError("PublishedWorkflows", "", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("PublishedWorkflows", "", err)
	}

	return workflows, nil
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewStoreError("WorkflowByID", id, err)
	}

	return workflow, nil
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	workflow.UpdatedAt = time.Now().UTC()

	nodes, err := marshalJSON(workflow.Nodes)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, workspace_id, nodes, published, paused, test_run_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			workspace_id = EXCLUDED.workspace_id,
			nodes = EXCLUDED.nodes,
			published = EXCLUDED.published,
			paused = EXCLUDED.paused,
			test_run_expires_at = EXCLUDED.test_run_expires_at,
			updated_at = EXCLUDED.updated_at`,
		workflow.ID, workflow.Name, workflow.WorkspaceID, nodes,
		workflow.Published, workflow.Paused, workflow.TestRunExpiresAt,
		workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

// AddWorkflowNodes appends nodes inside one transaction with the row
// locked, so concurrent applications cannot interleave partial graphs.
func (p *Persistence) AddWorkflowNodes(ctx context.Context, workflowID string, nodes []*models.Node) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewStoreError("AddWorkflowNodes", workflowID, err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1 FOR UPDATE`, workflowID)

	workflow, err := scanWorkflow(row)
	if err != nil {
		_ = tx.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewStoreError("AddWorkflowNodes", workflowID, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewStoreError("AddWorkflowNodes", workflowID, err)
	}

	for _, node := range nodes {
		if _, exists := workflow.NodeByID(node.ID); exists {
			_ = tx.Rollback()

			return persistence.NewStoreError("AddWorkflowNodes", node.ID, persistence.ErrNodeAlreadyExists)
		}
	}

	workflow.Nodes = append(workflow.Nodes, nodes...)

	encoded, err := marshalJSON(workflow.Nodes)
	if err != nil {
		_ = tx.Rollback()

		return persistence.NewStoreError("AddWorkflowNodes", workflowID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE workflows SET nodes = $1, updated_at = NOW() WHERE id = $2`,
		encoded, workflowID); err != nil {
		_ = tx.Rollback()

		return persistence.NewStoreError("AddWorkflowNodes", workflowID, err)
	}

	if err := tx.Commit(); err != nil {
		return persistence.NewStoreError("AddWorkflowNodes", workflowID, err)
	}

	return nil
}

func (p *Persistence) ClearTestRunExpiry(ctx context.Context, workflowID string) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE workflows SET test_run_expires_at = NULL, updated_at = NOW() WHERE id = $1`,
		workflowID)
	if err != nil {
		return persistence.NewStoreError("ClearTestRunExpiry", workflowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("ClearTestRunExpiry", workflowID, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("ClearTestRunExpiry", workflowID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow models.Workflow
		nodes    []byte
	)

	err := row.Scan(
		&workflow.ID, &workflow.Name, &workflow.WorkspaceID, &nodes,
		&workflow.Published, &workflow.Paused, &workflow.TestRunExpiresAt,
		&workflow.CreatedAt, &workflow.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(nodes, &workflow.Nodes); err != nil {
		return nil, err
	}

	return &workflow, nil
}
