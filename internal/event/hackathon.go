package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hackportal/hackportal-backend/internal/mapper"
	"github.com/hackportal/hackportal-backend/internal/rbac"
	"github.com/hackportal/hackportal-backend/internal/shared"
	"github.com/hackportal/hackportal-backend/internal/uow"
)

var errSponsorRequired = &shared.ValidationError{Field: "sponsor", Reason: "sponsor categories must name a sponsor"}

const (
	deactivateSQL = "UPDATE HACKATHON SET active = false, end_time = ? WHERE (active = true);"
	// The newest pin is read with a row lock so concurrent activations
	// serialize on it.
	activateSQL = "UPDATE HACKATHON SET active = true, base_pin = (SELECT pin FROM PRE_REGISTRATION ORDER BY pin DESC LIMIT 1 FOR UPDATE) WHERE (uid= ?);"
)

// scopedTables hold rows filtered by the active hackathon; their cached reads
// change meaning when another hackathon becomes active.
var scopedTables = []string{TableCategory, TableRegistration, TableAnnouncement}

// HackathonMapper adds activation to the hackathon CRUD mapper.
type HackathonMapper struct {
	*mapper.Mapper[Hackathon]
	logger *slog.Logger
	now    func() time.Time
}

// NewHackathonMapper constructs a HackathonMapper.
func NewHackathonMapper(u *uow.UnitOfWork, roles *rbac.Registry, logger *slog.Logger, opts ...mapper.Option) (*HackathonMapper, error) {
	m, err := mapper.New(HackathonTable, u, roles, logger, opts...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HackathonMapper{Mapper: m, logger: logger, now: time.Now}, nil
}

// MakeActive ends the currently active hackathon and activates uid in one
// transaction, snapshotting the newest pre-registration pin as its base pin.
// An unknown uid aborts the transaction and leaves the previous hackathon
// active.
func (m *HackathonMapper) MakeActive(ctx context.Context, role, uid string) error {
	if err := m.Authorize(role, rbac.OpMakeActive); err != nil {
		return err
	}
	if strings.TrimSpace(uid) == "" {
		return &shared.ValidationError{Field: "uid", Reason: "hackathon uid required"}
	}

	u := m.UnitOfWork()
	err := u.Do(ctx, func(ctx context.Context) error {
		if _, err := u.Exec(ctx, TableHackathon, uow.Statement{SQL: deactivateSQL, Args: []any{m.now().UTC()}}); err != nil {
			return fmt.Errorf("deactivate: %w", err)
		}
		n, err := u.Exec(ctx, TableHackathon, uow.Statement{SQL: activateSQL, Args: []any{uid}})
		if err != nil {
			return fmt.Errorf("activate %s: %w", uid, err)
		}
		if n == 0 {
			return fmt.Errorf("activate %s: %w", uid, shared.ErrNotFound)
		}
		u.Invalidate(ctx, scopedTables...)
		return nil
	})
	if err != nil {
		m.logger.Warn("hackathon activation failed", slog.String("uid", uid), slog.Any("error", err))
		return err
	}
	m.logger.Info("hackathon activated", slog.String("uid", uid))
	return nil
}
