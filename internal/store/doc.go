// Package store declares the collection run ledger and its records.
package store
