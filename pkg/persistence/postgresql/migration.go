package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				workspace_id VARCHAR(255) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				published BOOLEAN NOT NULL DEFAULT false,
				paused BOOLEAN NOT NULL DEFAULT false,
				test_run_expires_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_workflows_workspace ON workflows(workspace_id);
			CREATE INDEX idx_workflows_published ON workflows(published);

			CREATE TABLE execution_log (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				input JSONB,
				output JSONB,
				path JSONB,
				errors JSONB,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				error TEXT,
				retry_count INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_execution_log_execution ON execution_log(execution_id, created_at);
			CREATE INDEX idx_execution_log_workflow ON execution_log(workflow_id);

			CREATE TABLE webhooks (
				id VARCHAR(255) PRIMARY KEY,
				workspace_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				url TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				event_kinds JSONB NOT NULL DEFAULT '[]',
				secret TEXT,
				headers JSONB,
				retry JSONB,
				success_count BIGINT NOT NULL DEFAULT 0,
				failure_count BIGINT NOT NULL DEFAULT 0,
				last_success_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_webhooks_active ON webhooks(active);

			CREATE TABLE webhook_deliveries (
				id VARCHAR(255) PRIMARY KEY,
				webhook_id VARCHAR(255) NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
				event_kind VARCHAR(255) NOT NULL,
				payload JSONB,
				status VARCHAR(50) NOT NULL,
				attempts INT NOT NULL DEFAULT 0,
				next_retry_at TIMESTAMP WITH TIME ZONE,
				last_error TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_deliveries_webhook ON webhook_deliveries(webhook_id);
			CREATE INDEX idx_deliveries_retry ON webhook_deliveries(status, next_retry_at);

			CREATE TABLE activity_log (
				id VARCHAR(255) PRIMARY KEY,
				delivery_id VARCHAR(255) NOT NULL,
				webhook_id VARCHAR(255) NOT NULL,
				kind VARCHAR(50) NOT NULL,
				status_code INT,
				error TEXT,
				latency_ms BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_activity_log_delivery ON activity_log(delivery_id, created_at);

			CREATE TABLE automation_templates (
				id VARCHAR(255) PRIMARY KEY,
				document JSONB NOT NULL,
				usage_count BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
	}
}
