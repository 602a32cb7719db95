package db

import "embed"

// MigrationFS embeds the schema for users, sessions, devices, and audit_logs.
// Applied by cmd/migrate and, on startup, by cmd/server when DATABASE_URL is set.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
