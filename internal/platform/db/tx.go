package db

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// DefaultIsoLevel is the isolation level used for unit-of-work transactions.
// Under RepeatableRead a transaction that updates a row changed by a
// concurrent committed transaction fails instead of overwriting it.
const DefaultIsoLevel = pgx.RepeatableRead

// BeginStatement renders the statement opening a transaction at iso.
func BeginStatement(iso pgx.TxIsoLevel) string {
	if iso == "" {
		return "BEGIN"
	}
	return "BEGIN ISOLATION LEVEL " + strings.ToUpper(string(iso))
}

// Transaction control statements.
const (
	CommitStatement   = "COMMIT"
	RollbackStatement = "ROLLBACK"
)
