// Package database provides Bun connection management for MySQL, PostgreSQL
// and SQLite, a process-wide connection, table migrations for registered
// models, query hooks for logging and Prometheus metrics, and SQL error
// classification.
package database
