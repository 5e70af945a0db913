// Package event holds the hackportal entities and their mappers.
package event

import (
	"time"

	"github.com/hackportal/hackportal-backend/internal/mapper"
	"github.com/hackportal/hackportal-backend/internal/rbac"
)

// Table names.
const (
	TableCategory        = "CATEGORY_LIST"
	TableHackathon       = "HACKATHON"
	TablePreRegistration = "PRE_REGISTRATION"
	TableRegistration    = "REGISTRATION"
	TableAnnouncement    = "ANNOUNCEMENT"
)

// Category is a prize category of a hackathon.
type Category struct {
	UID         string  `db:"uid"`
	Name        string  `db:"name" validate:"required"`
	IsSponsor   bool    `db:"is_sponsor"`
	Sponsor     *string `db:"sponsor"`
	Description *string `db:"description"`
	Hackathon   *string `db:"hackathon"`
}

// Hackathon is one event instance. Active and BasePin change only through
// MakeActive.
type Hackathon struct {
	UID       string     `db:"uid"`
	Name      string     `db:"name" validate:"required"`
	StartTime time.Time  `db:"start_time" validate:"required"`
	EndTime   *time.Time `db:"end_time"`
	BasePin   *int64     `db:"base_pin,readonly"`
	Active    bool       `db:"active,readonly"`
}

// PreRegistration is an interest sign-up. Pin is assigned by the database in
// increasing order.
type PreRegistration struct {
	UID   string `db:"uid"`
	Email string `db:"email" validate:"required,email"`
	Pin   int64  `db:"pin,readonly"`
}

// Registration is a hacker's application to a hackathon.
type Registration struct {
	UID       string  `db:"uid"`
	FirstName string  `db:"first_name" validate:"required"`
	LastName  string  `db:"last_name" validate:"required"`
	Email     string  `db:"email" validate:"required,email"`
	ShirtSize *string `db:"shirt_size" validate:"omitempty,oneof=XS S M L XL XXL"`
	Submitted bool    `db:"submitted"`
	Hackathon string  `db:"hackathon" validate:"required"`
}

// Announcement is a message broadcast during a hackathon.
type Announcement struct {
	UID       string    `db:"uid"`
	Title     string    `db:"title" validate:"required"`
	Body      string    `db:"body" validate:"required"`
	PostedAt  time.Time `db:"posted_at" validate:"required"`
	Hackathon string    `db:"hackathon" validate:"required"`
}

// CategoryTable maps Category.
var CategoryTable = mapper.Table[Category]{
	Name:            TableCategory,
	Alias:           "c",
	PrimaryKey:      "uid",
	Resource:        rbac.ResourceCategory,
	HackathonColumn: "hackathon",
	Operations:      mapper.CRUD,
	GenerateKey:     true,
	Check: func(c *Category) error {
		if c.IsSponsor && (c.Sponsor == nil || *c.Sponsor == "") {
			return errSponsorRequired
		}
		return nil
	},
}

// HackathonTable maps Hackathon.
var HackathonTable = mapper.Table[Hackathon]{
	Name:        TableHackathon,
	Alias:       "h",
	PrimaryKey:  "uid",
	Resource:    rbac.ResourceHackathon,
	Operations:  append(append([]rbac.Operation(nil), mapper.CRUD...), rbac.OpMakeActive),
	GenerateKey: true,
}

// PreRegistrationTable maps PreRegistration.
var PreRegistrationTable = mapper.Table[PreRegistration]{
	Name:        TablePreRegistration,
	Alias:       "p",
	PrimaryKey:  "uid",
	Resource:    rbac.ResourcePreRegistration,
	Operations:  mapper.CRUD,
	GenerateKey: true,
}

// RegistrationTable maps Registration.
var RegistrationTable = mapper.Table[Registration]{
	Name:            TableRegistration,
	Alias:           "r",
	PrimaryKey:      "uid",
	Resource:        rbac.ResourceRegistration,
	HackathonColumn: "hackathon",
	Operations:      mapper.CRUD,
	GenerateKey:     true,
}

// AnnouncementTable maps Announcement. Announcements are immutable once posted.
var AnnouncementTable = mapper.Table[Announcement]{
	Name:            TableAnnouncement,
	Alias:           "a",
	PrimaryKey:      "uid",
	Resource:        rbac.ResourceAnnouncement,
	HackathonColumn: "hackathon",
	Operations:      []rbac.Operation{rbac.OpCreate, rbac.OpRead, rbac.OpReadAll, rbac.OpDelete, rbac.OpCount},
	GenerateKey:     true,
}
