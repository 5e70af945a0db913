package mapper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackportal/hackportal-backend/internal/shared"
)

// QueryOptions shapes a read.
type QueryOptions struct {
	// Count limits the number of rows returned.
	Count *int `validate:"omitempty,gte=0"`
	// StartAt skips that many rows.
	StartAt *int `validate:"omitempty,gte=0"`
	// Fields projects the listed columns, in order. When non-nil it must be
	// non-empty and name declared columns only.
	Fields []string
	// CurrentHackathonOnly restricts reads to the active hackathon. Nil means
	// the mapper default.
	CurrentHackathonOnly *bool
	IgnoreCache          bool
}

// Int returns a pointer to n, for QueryOptions literals.
func Int(n int) *int { return &n }

// Bool returns a pointer to b, for QueryOptions literals.
func Bool(b bool) *bool { return &b }

// Page returns options reading one page of p.
func Page(p shared.Pagination) *QueryOptions {
	return &QueryOptions{StartAt: Int(p.Offset()), Count: Int(p.PerPage)}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func (o *QueryOptions) validate(s schema) error {
	if o == nil {
		return nil
	}
	if err := structValidator.Struct(o); err != nil {
		return validationError(err)
	}
	if o.Fields != nil {
		if len(o.Fields) == 0 {
			return &shared.ValidationError{Field: "fields", Reason: "projection must name at least one column"}
		}
		for _, f := range o.Fields {
			if !s.has(f) {
				return &shared.ValidationError{Field: "fields", Reason: fmt.Sprintf("unknown column %q", f)}
			}
		}
	}
	return nil
}

func (o *QueryOptions) scoped(def bool) bool {
	if o == nil || o.CurrentHackathonOnly == nil {
		return def
	}
	return *o.CurrentHackathonOnly
}

func (o *QueryOptions) ignoreCache() bool {
	return o != nil && o.IgnoreCache
}

// validationError converts validator output into the first failing field.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return &shared.ValidationError{Field: strings.ToLower(fe.Field()), Reason: reason}
	}
	return &shared.ValidationError{Reason: err.Error()}
}
