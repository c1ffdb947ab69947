package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence"
)

func (p *Persistence) AppendExecutionLog(ctx context.Context, entry *models.ExecutionLogEntry) error {
	input, err := marshalJSON(entry.Input)
	if err != nil {
		return persistence.NewStoreError("AppendExecutionLog", entry.ExecutionID, err)
	}

	output, err := marshalJSON(entry.Output)
	if err != nil {
		return persistence.NewStoreError("AppendExecutionLog", entry.ExecutionID, err)
	}

	path, err := marshalJSON(entry.Path)
	if err != nil {
		return persistence.NewStoreError("AppendExecutionLog", entry.ExecutionID, err)
	}

	execErrors, err := marshalJSON(entry.Errors)
	if err != nil {
		return persistence.NewStoreError("AppendExecutionLog", entry.ExecutionID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO execution_log (id, execution_id, workflow_id, node_id, status, input, output, path, errors, duration_ms, error, retry_count, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)`,
		entry.ID, entry.ExecutionID, entry.WorkflowID, entry.NodeID, entry.Status,
		input, output, path, execErrors,
		entry.Duration.Milliseconds(), entry.Error, entry.RetryCount, entry.CreatedAt)
	if err != nil {
		return persistence.NewStoreError("AppendExecutionLog", entry.ExecutionID, err)
	}

	return nil
}

func (p *Persistence) ExecutionLog(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, execution_id, workflow_id, COALESCE(node_id, ''), status, input, output, path, errors, duration_ms, COALESCE(error, ''), retry_count, created_at
		FROM execution_log WHERE execution_id = $1 ORDER BY created_at, id`,
		executionID)
	if err != nil {
		return nil, persistence.NewStoreError("ExecutionLog", executionID, err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*models.ExecutionLogEntry, 0)

	for rows.Next() {
		entry, err := scanExecutionLogEntry(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ExecutionLog", executionID, err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ExecutionLog", executionID, err)
	}

	return entries, nil
}

func scanExecutionLogEntry(rows *sql.Rows) (*models.ExecutionLogEntry, error) {
	var (
		entry      models.ExecutionLogEntry
		input      []byte
		output     []byte
		path       []byte
		execErrors []byte
		durationMs int64
	)

	err := rows.Scan(
		&entry.ID, &entry.ExecutionID, &entry.WorkflowID, &entry.NodeID, &entry.Status,
		&input, &output, &path, &execErrors,
		&durationMs, &entry.Error, &entry.RetryCount, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	entry.Duration = time.Duration(durationMs) * time.Millisecond

	if err := unmarshalJSON(input, &entry.Input); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(output, &entry.Output); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(path, &entry.Path); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(execErrors, &entry.Errors); err != nil {
		return nil, err
	}

	return &entry, nil
}
