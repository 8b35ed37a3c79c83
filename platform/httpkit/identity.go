// Package httpkit holds the gin plumbing shared by every module: who is
// calling, how errors become responses, and the middleware chain.
package httpkit

import (
	"context"
	"net/http"
	"slices"

	"clinicbook_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RoleAdmin is the role that grants access to every appointment.
const RoleAdmin = "admin"

// ContextIdentityKey is the gin context key AuthRequired stores the caller under.
const ContextIdentityKey = "identity"

// Identity is the authenticated caller as seen by handlers.
type Identity interface {
	UserID() uuid.UUID
	Roles() []string
	HasRole(role string) bool
	// IsAuthenticated is false for the anonymous identity.
	IsAuthenticated() bool
}

type caller struct {
	id    uuid.UUID
	roles []string
}

func (c caller) UserID() uuid.UUID { return c.id }
func (c caller) Roles() []string { return c.roles }
func (c caller) HasRole(role string) bool { return slices.Contains(c.roles, role) }
func (c caller) IsAuthenticated() bool { return c.id != uuid.Nil }

// SetIdentity records the authenticated caller on c and tags the request
// context so request logs carry the user id.
func SetIdentity(c *gin.Context, userID uuid.UUID, roles []string) {
	c.Set(ContextIdentityKey, caller{id: userID, roles: roles})
	ctx := context.WithValue(c.Request.Context(), logger.UserIDKey, userID.String())
	c.Request = c.Request.WithContext(ctx)
}

// GetIdentity returns the caller stored by AuthRequired, or an anonymous
// identity when the route is not authenticated.
func GetIdentity(c *gin.Context) Identity {
	if v, ok := c.Get(ContextIdentityKey); ok {
		if id, ok := v.(caller); ok {
			return id
		}
	}
	return caller{}
}

// MustGetIdentity returns the caller or aborts with 401 and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return nil
	}
	return id
}
