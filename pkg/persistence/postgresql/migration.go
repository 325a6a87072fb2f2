package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE flow_definitions (
				id VARCHAR(255) PRIMARY KEY,
				seq BIGSERIAL NOT NULL,
				code VARCHAR(255) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				application_filter JSONB,
				is_enabled BOOLEAN NOT NULL DEFAULT true,
				is_locked BOOLEAN NOT NULL DEFAULT false,
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				updated_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flow_definitions_seq ON flow_definitions(seq);

			CREATE TABLE documents (
				id VARCHAR(255) PRIMARY KEY,
				title TEXT NOT NULL DEFAULT '',
				status VARCHAR(255) NOT NULL DEFAULT '',
				task_state VARCHAR(50) NOT NULL DEFAULT '',
				fields JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
		2: `
			CREATE TABLE flow_executions (
				id VARCHAR(255) PRIMARY KEY,
				document_id VARCHAR(255) NOT NULL,
				flow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('initiated', 'in_progress', 'completed', 'failed', 'transfered')),
				execution_data JSONB NOT NULL DEFAULT '{}',
				flow_tasks JSONB NOT NULL DEFAULT '{}',
				started_by VARCHAR(255) NOT NULL DEFAULT '',
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_flow_executions_document_id ON flow_executions(document_id);
			CREATE INDEX idx_flow_executions_status ON flow_executions(status);

			-- At most one non-terminal execution per document.
			CREATE UNIQUE INDEX idx_flow_executions_active_document
				ON flow_executions(document_id)
				WHERE status IN ('initiated', 'in_progress');

			CREATE TABLE flow_actions (
				seq BIGSERIAL PRIMARY KEY,
				id VARCHAR(255) NOT NULL UNIQUE,
				execution_id VARCHAR(255) NOT NULL REFERENCES flow_executions(id) ON DELETE CASCADE,
				action_description TEXT NOT NULL,
				actor VARCHAR(255) NOT NULL DEFAULT '',
				flow_node VARCHAR(255) NOT NULL DEFAULT '',
				action_params JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				end_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flow_actions_execution_id ON flow_actions(execution_id);
		`,
	}
}
