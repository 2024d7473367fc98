package api

import (
	"net/http"
	"strings"
)

// Principal is the caller identity as seen by handlers.
type Principal struct {
	Tenant  string
	Role    string // admin, dispatcher, rider, viewer
	RiderID string
}

// getPrincipal extracts tenant and role from the bearer token when one is
// present, falling back to headers for dev setups.
func (s *Server) getPrincipal(r *http.Request) Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return Principal{Tenant: pr.Tenant, Role: pr.Role, RiderID: pr.RiderID}
		}
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := r.Header.Get("X-Role")
	riderID := r.Header.Get("X-Rider-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	if role == "" {
		role = "admin"
	}
	return Principal{Tenant: tenant, Role: role, RiderID: riderID}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanDispatch reports whether the principal may mutate deliveries/riders
// and trigger planning runs.
func (p Principal) CanDispatch() bool { return p.Role == "admin" || p.Role == "dispatcher" }
