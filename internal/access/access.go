// Package access defines the closed role and department vocabularies and the
// static mapping between them.
//
// The mapping is the security boundary of the whole pipeline: retrieval is
// constrained to AllowedDepartments(role) before any generation happens, so
// content a role may not see never reaches the model or the citations.
package access

import (
	"fmt"
	"strings"
)

// Role identifies the access level of an authenticated user.
// The set is closed; roles are immutable once assigned to a user.
type Role string

const (
	RoleFinance     Role = "finance"
	RoleMarketing   Role = "marketing"
	RoleHR          Role = "hr"
	RoleEngineering Role = "engineering"
	RoleCLevel      Role = "c-level"
	RoleEmployee    Role = "employee"
)

// Department classifies a document fragment at ingestion time.
type Department string

const (
	DeptFinance     Department = "finance"
	DeptMarketing   Department = "marketing"
	DeptHR          Department = "hr"
	DeptEngineering Department = "engineering"
	DeptGeneral     Department = "general"
)

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleFinance, RoleMarketing, RoleHR, RoleEngineering, RoleCLevel, RoleEmployee}
}

// Departments lists the full department universe.
func Departments() []Department {
	return []Department{DeptFinance, DeptMarketing, DeptHR, DeptEngineering, DeptGeneral}
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleFinance, RoleMarketing, RoleHR, RoleEngineering, RoleCLevel, RoleEmployee:
		return true
	}
	return false
}

// Valid reports whether d is a member of the closed department set.
func (d Department) Valid() bool {
	switch d {
	case DeptFinance, DeptMarketing, DeptHR, DeptEngineering, DeptGeneral:
		return true
	}
	return false
}

// ParseRole converts external input (API requests, stored credentials) into
// a Role. It is the only place a string becomes a Role; everything past this
// boundary may assume validity.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// ParseDepartment converts external input into a Department.
func ParseDepartment(s string) (Department, error) {
	d := Department(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown department %q", s)
	}
	return d, nil
}

// AllowedDepartments returns the set of departments a role may read.
// C-Level sees the full universe; Employee sees general only; every other
// role sees general plus its own department.
//
// The lookup is pure and has no error path: an unknown role is a programming
// error upstream of this package and panics rather than degrading into an
// empty (fail-closed but silent) result.
func AllowedDepartments(r Role) []Department {
	switch r {
	case RoleCLevel:
		return Departments()
	case RoleEmployee:
		return []Department{DeptGeneral}
	case RoleFinance:
		return []Department{DeptGeneral, DeptFinance}
	case RoleMarketing:
		return []Department{DeptGeneral, DeptMarketing}
	case RoleHR:
		return []Department{DeptGeneral, DeptHR}
	case RoleEngineering:
		return []Department{DeptGeneral, DeptEngineering}
	default:
		panic(fmt.Sprintf("access: unknown role %q", r))
	}
}

// Allowed reports whether role r may read department d.
func Allowed(r Role, d Department) bool {
	for _, allowed := range AllowedDepartments(r) {
		if allowed == d {
			return true
		}
	}
	return false
}
