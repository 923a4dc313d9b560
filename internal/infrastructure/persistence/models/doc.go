// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Each model converts with ToDomain / FromDomain. Principal references are
// stored either as a (kind, id) pair or, on the ledger, as the mutually
// exclusive user_id / session_id columns.
package models
