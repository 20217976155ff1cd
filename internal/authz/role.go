// Package authz defines viewer roles and the capabilities each role carries. Role checks
// elsewhere go through these capabilities instead of comparing role names.
package authz

import "strings"

// Role is the viewer's capability class.
type Role int

const (
	RoleUnknown Role = iota
	RoleStudent
	RoleTeacher
	RoleAcademic
	RoleConsultant
	RoleAdmin
)

// Assignment list actions understood by the assignment API.
const (
	ActionByTeacher    = "getByTeacherId"
	ActionByStudent    = "getByStudentId"
	ActionByClass      = "getByClassId"
	ActionByAssignment = "getByAssignmentId"
)

var roleNames = map[Role]string{
	RoleUnknown:    "unknown",
	RoleStudent:    "student",
	RoleTeacher:    "teacher",
	RoleAcademic:   "academic",
	RoleConsultant: "consultant",
	RoleAdmin:      "admin",
}

var roleAliases = map[string]Role{
	"student":       RoleStudent,
	"learner":       RoleStudent,
	"teacher":       RoleTeacher,
	"instructor":    RoleTeacher,
	"academic":      RoleAcademic,
	"consultant":    RoleConsultant,
	"admin":         RoleAdmin,
	"administrator": RoleAdmin,
	"superadmin":    RoleAdmin,
}

// ParseRole maps a role name to its Role. Unrecognised names yield RoleUnknown.
func ParseRole(name string) Role {
	if role, ok := roleAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return role
	}
	return RoleUnknown
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return roleNames[RoleUnknown]
}

// CanAuthorAssignments reports whether the role creates, edits and deletes assignments.
func (r Role) CanAuthorAssignments() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// CanGrade reports whether the role grades submissions.
func (r Role) CanGrade() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// CanSubmitWork reports whether the role submits work to assignments.
func (r Role) CanSubmitWork() bool {
	return r == RoleStudent
}

// CanManageClasses reports whether the role edits class rosters.
func (r Role) CanManageClasses() bool {
	switch r {
	case RoleAcademic, RoleConsultant, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanManageStaff reports whether the role administers user accounts.
func (r Role) CanManageStaff() bool {
	return r == RoleAdmin
}

// ListAction picks the assignment list action used for the role.
func ListAction(r Role) string {
	if r.CanAuthorAssignments() {
		return ActionByTeacher
	}
	return ActionByStudent
}

// Capability is a named permission check used by route guards.
type Capability func(Role) bool

// Capabilities exposes the capability checks by name.
var Capabilities = map[string]Capability{
	"author_assignments": Role.CanAuthorAssignments,
	"grade":              Role.CanGrade,
	"submit_work":        Role.CanSubmitWork,
	"manage_classes":     Role.CanManageClasses,
	"manage_staff":       Role.CanManageStaff,
}
