package rbac

// Role names of the default hackportal role graph.
const (
	RolePublic       = "public"
	RoleHacker       = "hacker"
	RoleSponsor      = "sponsor"
	RoleVolunteer    = "volunteer"
	RoleTeamMember   = "team_member"
	RoleTechDirector = "tech_director"
	RoleDirector     = "director"
	RoleAdmin        = "admin"
)

// Resource names used to scope permissions per entity.
const (
	ResourceCategory        = "category"
	ResourceHackathon       = "hackathon"
	ResourcePreRegistration = "preregistration"
	ResourceRegistration    = "registration"
	ResourceAnnouncement    = "announcement"
	ResourceUser            = "user"
)

func grant(resource string, ops ...Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, Scoped(resource, op))
	}
	return out
}

func concat(groups ...[]Operation) []Operation {
	var out []Operation
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// DefaultRoles returns the role graph used by the event backend.
func DefaultRoles() []Role {
	return []Role{
		{
			Name: RolePublic,
			Permissions: concat(
				grant(ResourceCategory, OpRead, OpReadAll),
				grant(ResourceHackathon, OpRead, OpReadAll),
				grant(ResourceAnnouncement, OpRead, OpReadAll),
				grant(ResourcePreRegistration, OpCreate),
			),
		},
		{
			Name:        RoleHacker,
			Parents:     []string{RolePublic},
			Permissions: grant(ResourceRegistration, OpCreate, OpRead, OpUpdate),
		},
		{
			Name:        RoleSponsor,
			Parents:     []string{RolePublic},
			Permissions: grant(ResourceRegistration, OpRead, OpReadAll),
		},
		{
			Name:    RoleVolunteer,
			Parents: []string{RoleHacker},
			Permissions: concat(
				grant(ResourceRegistration, OpReadAll, OpCount),
				grant(ResourcePreRegistration, OpCount),
			),
		},
		{
			Name:    RoleTeamMember,
			Parents: []string{RoleVolunteer},
			Permissions: concat(
				grant(ResourceAnnouncement, OpCreate, OpDelete, OpCount),
				grant(ResourcePreRegistration, OpRead, OpReadAll),
				grant(ResourceHackathon, OpCount),
				grant(ResourceCategory, OpCount),
			),
		},
		{
			Name:        RoleTechDirector,
			Parents:     []string{RoleTeamMember},
			Permissions: grant(ResourceCategory, OpCreate, OpUpdate, OpDelete),
		},
		{
			Name:    RoleDirector,
			Parents: []string{RoleTeamMember},
			Permissions: concat(
				grant(ResourceHackathon, OpCreate, OpUpdate, OpMakeActive),
				grant(ResourceCategory, OpCreate, OpUpdate, OpDelete),
				grant(ResourcePreRegistration, OpGetEmail, OpSendEmail),
				grant(ResourceRegistration, OpDelete, OpSendEmail),
			),
		},
		{
			Name:    RoleAdmin,
			Parents: []string{RoleDirector, RoleTechDirector},
			Permissions: concat(
				grant(ResourceHackathon, OpDelete),
				grant(ResourcePreRegistration, OpUpdate, OpDelete),
				grant(ResourceUser, OpReducePermission),
			),
		},
	}
}

// RegisterDefaults registers DefaultRoles into r.
func RegisterDefaults(r *Registry) error {
	for _, role := range DefaultRoles() {
		if err := r.Register(role); err != nil {
			return err
		}
	}
	return nil
}
