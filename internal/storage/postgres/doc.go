// Package postgres provides Postgres-backed persistence implementations.
package postgres
