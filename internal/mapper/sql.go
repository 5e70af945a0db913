package mapper

import (
	"strconv"
	"strings"

	"github.com/hackportal/hackportal-backend/internal/uow"
)

// activeHackathonClause selects the active hackathon's identifier; its single
// placeholder is bound to true.
func activeHackathonClause(column string) string {
	return column + " = (SELECT uid FROM HACKATHON WHERE (active = ?) LIMIT 1)"
}

func selectOne(table, pk string, id any, scope string) uow.Statement {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE (")
	b.WriteString(pk)
	b.WriteString("= ?)")
	args := []any{id}
	if scope != "" {
		b.WriteString(" AND (")
		b.WriteString(activeHackathonClause(scope))
		b.WriteString(")")
		args = append(args, true)
	}
	b.WriteString(";")
	return uow.Statement{SQL: b.String(), Args: args}
}

func selectAll(table, alias string, fields []string, scope string, startAt, count *int) uow.Statement {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(fields) == 0 {
		b.WriteString("*")
	} else {
		for i, f := range fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("`" + f + "`")
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(table)
	b.WriteString(" ")
	b.WriteString(alias)
	var args []any
	if scope != "" {
		b.WriteString(" WHERE (")
		b.WriteString(activeHackathonClause(scope))
		b.WriteString(")")
		args = append(args, true)
	}
	if startAt != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(*startAt))
	}
	if count != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*count))
	}
	b.WriteString(";")
	return uow.Statement{SQL: b.String(), Args: args}
}

func selectCount(table, pk, scope string) uow.Statement {
	sql := "SELECT COUNT(" + pk + ") AS \"count\" FROM " + table
	var args []any
	if scope != "" {
		sql += " WHERE (" + activeHackathonClause(scope) + ")"
		args = append(args, true)
	}
	return uow.Statement{SQL: sql + ";", Args: args}
}

func insertInto(table string, columns []string, values []any) uow.Statement {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return uow.Statement{
		SQL:  "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + placeholders + ");",
		Args: values,
	}
}

func updateSet(table, pk string, columns []string, values []any, id any) uow.Statement {
	assignments := make([]string, len(columns))
	for i, c := range columns {
		assignments[i] = c + " = ?"
	}
	return uow.Statement{
		SQL:  "UPDATE " + table + " SET " + strings.Join(assignments, ", ") + " WHERE (" + pk + "= ?);",
		Args: append(append([]any(nil), values...), id),
	}
}

func deleteFrom(table, pk string, id any) uow.Statement {
	return uow.Statement{
		SQL:  "DELETE FROM " + table + " WHERE (" + pk + "= ?);",
		Args: []any{id},
	}
}
