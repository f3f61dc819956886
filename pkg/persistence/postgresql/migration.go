package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE flows (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT false,
				trigger_type VARCHAR(50) NOT NULL,
				keywords TEXT[] NOT NULL DEFAULT '{}',
				channel_type VARCHAR(50) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_active ON flows(workspace_id, is_active, trigger_type);

			CREATE TABLE channels (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				type VARCHAR(50) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true,
				access_token TEXT NOT NULL,
				meta_business_id TEXT NOT NULL,
				expires_in BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_channels_meta_business_id ON channels(meta_business_id);

			CREATE TABLE contacts (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				email TEXT,
				custom_data JSONB,
				tags TEXT[] NOT NULL DEFAULT '{}',
				pending_flow_id TEXT,
				automation_state VARCHAR(50) NOT NULL DEFAULT '',
				pending_metadata JSONB,
				is_follower BOOLEAN NOT NULL DEFAULT false,
				automation_version BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE contact_channels (
				contact_id TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
				channel_id TEXT NOT NULL,
				channel_type VARCHAR(50) NOT NULL,
				external_id TEXT NOT NULL,
				username TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (contact_id, channel_id)
			);

			CREATE INDEX idx_contact_channels_external ON contact_channels(channel_type, external_id);

			CREATE TABLE delivery_logs (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL,
				contact_id TEXT NOT NULL,
				workspace_id TEXT NOT NULL,
				follow_msg_sent BOOLEAN NOT NULL DEFAULT false,
				follow_confirmed BOOLEAN NOT NULL DEFAULT false,
				opening_msg_sent BOOLEAN NOT NULL DEFAULT false,
				opening_clicked BOOLEAN NOT NULL DEFAULT false,
				email_req_sent BOOLEAN NOT NULL DEFAULT false,
				email_provided BOOLEAN NOT NULL DEFAULT false,
				link_msg_sent BOOLEAN NOT NULL DEFAULT false,
				link_clicked BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_delivery_logs_pair ON delivery_logs(flow_id, contact_id, created_at DESC);

			CREATE TABLE automation_logs (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL,
				workspace_id TEXT NOT NULL,
				trigger_type VARCHAR(50) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automation_logs_flow ON automation_logs(flow_id, created_at);

			CREATE TABLE delay_timers (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL,
				contact_id TEXT NOT NULL,
				workspace_id TEXT NOT NULL,
				channel_id TEXT NOT NULL DEFAULT '',
				next_node_id TEXT NOT NULL,
				resume_at TIMESTAMP WITH TIME ZONE NOT NULL,
				metadata JSONB,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'fired')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_delay_timers_due ON delay_timers(status, resume_at);
		`,
	}
}
