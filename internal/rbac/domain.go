package rbac

import "strings"

// Operation names a capability a role may hold.
type Operation string

// Operation kinds understood by the data mappers.
const (
	OpCreate           Operation = "create"
	OpRead             Operation = "read"
	OpReadAll          Operation = "readall"
	OpUpdate           Operation = "update"
	OpDelete           Operation = "delete"
	OpCount            Operation = "count"
	OpSendEmail        Operation = "sendemail"
	OpGetEmail         Operation = "getemail"
	OpReducePermission Operation = "reducepermission"
	OpMakeActive       Operation = "makeactive"
)

// Operations lists every operation kind in declaration order.
func Operations() []Operation {
	return []Operation{
		OpCreate, OpRead, OpReadAll, OpUpdate, OpDelete, OpCount,
		OpSendEmail, OpGetEmail, OpReducePermission, OpMakeActive,
	}
}

// Valid reports whether op is one of the declared operation kinds.
func (op Operation) Valid() bool {
	for _, known := range Operations() {
		if op == known {
			return true
		}
	}
	return false
}

// Scoped qualifies op with a resource name, e.g. "category:read".
func Scoped(resource string, op Operation) Operation {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return op
	}
	return Operation(resource + ":" + string(op))
}

// Role represents a named permission grouping. Parents are resolved by name
// at lookup time, so they may be registered in any order.
type Role struct {
	Name        string
	Permissions []Operation
	Parents     []string
}
