package user

type Role string

const (
	RoleAdmin    Role = "admin"    // full access
	RoleHR       Role = "hr"       // manages attendance for everyone
	RoleEmployee Role = "employee" // own attendance only
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHR, RoleEmployee:
		return true
	}
	return false
}
