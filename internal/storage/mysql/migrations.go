package mysql

import (
	"context"
	"fmt"
)

// Migrate creates the schema if it doesn't already exist yet. Grounded on
// the teacher's bootstrap.InitializeSchema, reduced to a fixed DDL list
// since this repo has no migration-file tooling of its own: the tables
// below are never altered after creation, only the rows within them.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL,
		role_id VARCHAR(36) NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		INDEX idx_users_role (role_id),
		FOREIGN KEY (role_id) REFERENCES roles(id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS permissions (
		id VARCHAR(36) PRIMARY KEY,
		` + "`key`" + ` VARCHAR(150) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		category VARCHAR(30) NOT NULL
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS role_permissions (
		id VARCHAR(36) PRIMARY KEY,
		role_id VARCHAR(36) NOT NULL,
		permission_id VARCHAR(36) NOT NULL,
		granted TINYINT(1) NOT NULL,
		UNIQUE KEY uq_role_permission (role_id, permission_id),
		FOREIGN KEY (role_id) REFERENCES roles(id),
		FOREIGN KEY (permission_id) REFERENCES permissions(id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS user_permissions (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL,
		permission_id VARCHAR(36) NOT NULL,
		granted TINYINT(1) NOT NULL,
		UNIQUE KEY uq_user_permission (user_id, permission_id),
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (permission_id) REFERENCES permissions(id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS model_role_permissions (
		id VARCHAR(36) PRIMARY KEY,
		model_id VARCHAR(36) NOT NULL,
		role_id VARCHAR(36) NOT NULL,
		permission_id VARCHAR(36) NOT NULL,
		allowed TINYINT(1) NOT NULL,
		UNIQUE KEY uq_model_role_permission (model_id, role_id, permission_id),
		FOREIGN KEY (role_id) REFERENCES roles(id),
		FOREIGN KEY (permission_id) REFERENCES permissions(id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS model_definitions (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(150) NOT NULL UNIQUE,
		table_name VARCHAR(150) NULL,
		owner_field VARCHAR(150) NULL,
		json_payload JSON NOT NULL,
		version INT NOT NULL,
		published TINYINT(1) NOT NULL DEFAULT 0,
		published_at DATETIME NULL,
		published_by VARCHAR(36) NULL,
		is_system TINYINT(1) NOT NULL DEFAULT 0,
		file_path VARCHAR(500) NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS model_versions (
		id VARCHAR(36) PRIMARY KEY,
		model_id VARCHAR(36) NOT NULL,
		version_number INT NOT NULL,
		json_payload JSON NOT NULL,
		created_by VARCHAR(36) NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE KEY uq_model_version (model_id, version_number),
		FOREIGN KEY (model_id) REFERENCES model_definitions(id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS records (
		id VARCHAR(36) PRIMARY KEY,
		model_id VARCHAR(36) NOT NULL,
		model_name VARCHAR(150) NOT NULL,
		model_version_id VARCHAR(36) NULL,
		data_payload JSON NOT NULL,
		owner_id VARCHAR(36) NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted_at DATETIME NULL,
		INDEX idx_records_model (model_id, deleted_at),
		INDEX idx_records_owner (model_id, owner_id, deleted_at)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id VARCHAR(36) PRIMARY KEY,
		token_hash VARCHAR(255) NOT NULL,
		user_id VARCHAR(36) NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked TINYINT(1) NOT NULL DEFAULT 0,
		revoked_at DATETIME NULL,
		replaced_by_id VARCHAR(36) NULL,
		created_by_ip VARCHAR(64) NULL,
		INDEX idx_refresh_tokens_user (user_id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NULL,
		action VARCHAR(100) NOT NULL,
		model_id VARCHAR(36) NULL,
		model_name VARCHAR(150) NULL,
		record_id VARCHAR(36) NULL,
		details JSON NULL,
		created_at DATETIME NOT NULL,
		INDEX idx_audit_created (created_at)
	) ENGINE=InnoDB`,
}
