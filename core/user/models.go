package user

import "strings"

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	TeacherRoles = []string{RoleTeacher}
	StudentRoles = []string{RoleStudent}
	AllRoles     = getAllRoles()

	// StaffRoles may manage revisions and read any student's progress.
	StaffRoles = []string{RoleTeacher, RoleAdmin}
)

func getAllRoles() []string {
	all := make([]string, 0, 5)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, StudentRoles...)
	return all
}

// RoleName strips the role to its family: "admin:owner" -> "admin".
func RoleName(role string) string {
	return strings.SplitN(role, ":", 2)[0]
}

// ParseRole maps a plain family name ("student", "teacher", "admin") to its role value.
func ParseRole(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "student":
		return RoleStudent, true
	case "teacher":
		return RoleTeacher, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}

// Identity is the authenticated caller, as carried by the bearer token.
type Identity struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

func (id Identity) RoleStartsWith(prefix string) bool {
	for _, role := range id.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (id Identity) IsAdmin() bool {
	return id.RoleStartsWith(RoleAdmin)
}

func (id Identity) IsTeacher() bool {
	return id.RoleStartsWith(RoleTeacher)
}

func (id Identity) IsStudent() bool {
	return id.RoleStartsWith(RoleStudent)
}

// OwnerRole is the role family recorded on the resources this identity creates. Admin wins over teacher.
func (id Identity) OwnerRole() string {
	switch {
	case id.IsAdmin():
		return RoleName(RoleAdmin)
	case id.IsTeacher():
		return RoleName(RoleTeacher)
	case id.IsStudent():
		return RoleName(RoleStudent)
	}
	return ""
}

// RoleNames lists the distinct role families of the identity.
func (id Identity) RoleNames() []string {
	names := make([]string, 0, len(id.Roles))
	seen := make(map[string]bool, len(id.Roles))
	for _, role := range id.Roles {
		name := RoleName(role)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
