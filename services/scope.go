package services

import "github.com/bracketops/tournament-core/models"

// Principal is the authenticated caller extracted from the JWT.
type Principal struct {
	UserID int
	Role   models.Role
}

// Scope is the tenant boundary every service call runs under. TenantID is the
// owning user whose rows are visible; ViewAll (superadmin) lifts the filter
// for reads and blocks writes.
type Scope struct {
	TenantID      int
	ViewAll       bool
	Impersonating bool
}

// ResolveScope turns a principal plus the optional superadmin escape hatches
// (view_all query flag, X-Impersonate-User header) into a concrete scope.
func ResolveScope(principal *Principal, viewAllRequested bool, impersonateID int) (Scope, error) {
	if principal == nil {
		return Scope{}, ErrUnauthorized
	}

	if impersonateID > 0 {
		if principal.Role != models.RoleSuperadmin {
			return Scope{}, ErrForbidden
		}
		return Scope{TenantID: impersonateID, Impersonating: true}, nil
	}

	if viewAllRequested {
		if principal.Role != models.RoleSuperadmin {
			return Scope{}, ErrForbidden
		}
		return Scope{ViewAll: true}, nil
	}

	return Scope{TenantID: principal.UserID}, nil
}

// CanWrite reports whether the scope may mutate tenant data. A view-all scope
// is read-only; impersonation writes as the impersonated tenant.
func (s Scope) CanWrite() bool {
	return !s.ViewAll && s.TenantID > 0
}

// Owns reports whether a row owned by userID is visible to this scope for a
// direct fetch.
func (s Scope) Owns(userID int) bool {
	if s.ViewAll {
		return true
	}
	return s.TenantID == userID
}
