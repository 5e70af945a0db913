package mapper

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/hackportal/hackportal-backend/internal/rbac"
)

// CRUD lists the six operations every fully-featured entity supports.
var CRUD = []rbac.Operation{
	rbac.OpCreate, rbac.OpRead, rbac.OpReadAll, rbac.OpUpdate, rbac.OpDelete, rbac.OpCount,
}

// Table describes how an entity type T maps onto a relational table. Column
// names come from the `db` struct tags of T; the `readonly` tag option marks
// columns the database assigns, which are read but never written.
type Table[T any] struct {
	Name  string
	Alias string
	// PrimaryKey is the column identifying a row.
	PrimaryKey string
	// Resource qualifies permission names, e.g. "category" checks "category:read".
	Resource string
	// HackathonColumn, when set, enables hackathon scoping on reads.
	HackathonColumn string
	Operations      []rbac.Operation
	// GenerateKey assigns a random UUID primary key on insert when it is empty.
	GenerateKey bool
	// Check runs extra entity validation before insert and update.
	Check func(*T) error
}

type column struct {
	name     string
	index    []int
	readonly bool
}

type schema struct {
	columns []column
	byName  map[string]int
	pk      int
}

func (t Table[T]) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("mapper: table name required")
	}
	if strings.TrimSpace(t.PrimaryKey) == "" {
		return fmt.Errorf("mapper: %s: primary key required", t.Name)
	}
	for _, op := range t.Operations {
		if !op.Valid() {
			return fmt.Errorf("mapper: %s: unknown operation %q", t.Name, op)
		}
	}
	return nil
}

func (t Table[T]) alias() string {
	if t.Alias != "" {
		return t.Alias
	}
	return strings.ToLower(t.Name[:1])
}

func (t Table[T]) supports(op rbac.Operation) bool {
	for _, candidate := range t.Operations {
		if candidate == op {
			return true
		}
	}
	return false
}

func buildSchema[T any](t Table[T]) (schema, error) {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return schema{}, fmt.Errorf("mapper: %s: entity must be a struct, got %s", t.Name, typ)
	}
	s := schema{byName: make(map[string]int), pk: -1}
	for _, field := range reflect.VisibleFields(typ) {
		if !field.IsExported() || field.Anonymous {
			continue
		}
		tag, ok := field.Tag.Lookup("db")
		if !ok || tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			return schema{}, fmt.Errorf("mapper: %s: field %s has an empty column name", t.Name, field.Name)
		}
		if _, dup := s.byName[name]; dup {
			return schema{}, fmt.Errorf("mapper: %s: duplicate column %s", t.Name, name)
		}
		col := column{name: name, index: field.Index}
		for _, opt := range strings.Split(opts, ",") {
			if opt == "readonly" {
				col.readonly = true
			}
		}
		s.byName[name] = len(s.columns)
		if name == t.PrimaryKey {
			s.pk = len(s.columns)
		}
		s.columns = append(s.columns, col)
	}
	if s.pk < 0 {
		return schema{}, fmt.Errorf("mapper: %s: primary key %s is not a declared column", t.Name, t.PrimaryKey)
	}
	if t.HackathonColumn != "" {
		if _, ok := s.byName[t.HackathonColumn]; !ok {
			return schema{}, fmt.Errorf("mapper: %s: hackathon column %s is not a declared column", t.Name, t.HackathonColumn)
		}
	}
	return s, nil
}

// Columns returns the declared column names in declaration order.
func (s schema) Columns() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.name
	}
	return out
}

func (s schema) has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

func (s schema) primaryKey() column {
	return s.columns[s.pk]
}
