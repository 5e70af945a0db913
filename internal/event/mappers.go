package event

import (
	"fmt"
	"log/slog"

	"github.com/hackportal/hackportal-backend/internal/mapper"
	"github.com/hackportal/hackportal-backend/internal/rbac"
	"github.com/hackportal/hackportal-backend/internal/uow"
)

// Mappers bundles one mapper per entity, sharing a unit of work and role
// registry.
type Mappers struct {
	Categories       *mapper.Mapper[Category]
	Hackathons       *HackathonMapper
	PreRegistrations *mapper.Mapper[PreRegistration]
	Registrations    *mapper.Mapper[Registration]
	Announcements    *mapper.Mapper[Announcement]
}

// NewMappers constructs every entity mapper.
func NewMappers(u *uow.UnitOfWork, roles *rbac.Registry, logger *slog.Logger, opts ...mapper.Option) (*Mappers, error) {
	var (
		m   Mappers
		err error
	)
	if m.Categories, err = mapper.New(CategoryTable, u, roles, logger, opts...); err != nil {
		return nil, fmt.Errorf("event: categories: %w", err)
	}
	if m.Hackathons, err = NewHackathonMapper(u, roles, logger, opts...); err != nil {
		return nil, fmt.Errorf("event: hackathons: %w", err)
	}
	if m.PreRegistrations, err = mapper.New(PreRegistrationTable, u, roles, logger, opts...); err != nil {
		return nil, fmt.Errorf("event: pre-registrations: %w", err)
	}
	if m.Registrations, err = mapper.New(RegistrationTable, u, roles, logger, opts...); err != nil {
		return nil, fmt.Errorf("event: registrations: %w", err)
	}
	if m.Announcements, err = mapper.New(AnnouncementTable, u, roles, logger, opts...); err != nil {
		return nil, fmt.Errorf("event: announcements: %w", err)
	}
	return &m, nil
}
