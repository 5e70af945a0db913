package db

import (
	"strings"

	"github.com/jmoiron/sqlx"
)

// Rebind converts a statement written with `?` placeholders and
// backtick-quoted identifiers into PostgreSQL syntax ($n, double quotes).
// Statements must not contain string literals holding either character;
// values always travel as bound arguments.
func Rebind(query string) string {
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	return strings.ReplaceAll(query, "`", `"`)
}
