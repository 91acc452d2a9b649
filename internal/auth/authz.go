package auth

import (
	"net/http"
	"slices"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/studioos/internal/models"
)

// Permission represents an authorized action
type Permission string

const (
	PermRead               Permission = "records:read"
	PermOrgManage          Permission = "org:manage"
	PermMembersManage      Permission = "members:manage"
	PermClientsWrite       Permission = "clients:write"
	PermGalleriesWrite     Permission = "galleries:write"
	PermBookingsWrite      Permission = "bookings:write"
	PermBillingWrite       Permission = "billing:write"
	PermContractsWrite     Permission = "contracts:write"
	PermAutomationsWrite   Permission = "automations:write"
	PermIntegrationsManage Permission = "integrations:manage"
)

// RolePermissions maps member roles to allowed permissions
var RolePermissions = map[string][]Permission{
	models.RoleOwner: {
		PermRead,
		PermOrgManage,
		PermMembersManage,
		PermClientsWrite,
		PermGalleriesWrite,
		PermBookingsWrite,
		PermBillingWrite,
		PermContractsWrite,
		PermAutomationsWrite,
		PermIntegrationsManage,
	},
	models.RoleAdmin: {
		PermRead,
		PermMembersManage,
		PermClientsWrite,
		PermGalleriesWrite,
		PermBookingsWrite,
		PermBillingWrite,
		PermContractsWrite,
		PermAutomationsWrite,
		PermIntegrationsManage,
	},
	models.RoleStaff: {
		PermRead,
		PermClientsWrite,
		PermGalleriesWrite,
		PermBookingsWrite,
	},
}

// HasPermission checks if a role has a specific permission
func HasPermission(role string, perm Permission) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	return slices.Contains(perms, perm)
}

// Require returns middleware that rejects requests whose principal lacks perm.
// Requests without an organization membership are rejected too.
func Require(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				if IdentityFromContext(r.Context()) == nil {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				http.Error(w, "no organization", http.StatusForbidden)
				return
			}

			if !HasPermission(principal.Role, perm) {
				zerolog.Ctx(r.Context()).Warn().
					Str("member_id", principal.MemberID.String()).
					Str("role", principal.Role).
					Str("permission", string(perm)).
					Msg("Permission denied")
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
