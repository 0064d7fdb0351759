// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity represents the authenticated account's identity.
// This interface abstracts identity extraction from the web framework,
// allowing handlers to access account information without depending on Gin.
type Identity interface {
	// AccountID returns the authenticated account's ID.
	AccountID() uuid.UUID
	// Role returns the account's role (requester, provider or admin).
	Role() string
	// HasRole checks if the account has a specific role.
	HasRole(role string) bool
	// IsAuthenticated returns true if the account is authenticated.
	IsAuthenticated() bool
}

// identity is the concrete implementation of Identity.
type identity struct {
	accountID     uuid.UUID
	role          string
	authenticated bool
}

func (i *identity) AccountID() uuid.UUID {
	return i.accountID
}

func (i *identity) Role() string {
	return i.role
}

func (i *identity) HasRole(role string) bool {
	return i.role == role
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if account info is not present.
func GetIdentity(c *gin.Context) Identity {
	accountID, accountOK := c.Get(ContextAccountIDKey)
	role, roleOK := c.Get(ContextRoleKey)

	if !accountOK {
		return &identity{authenticated: false}
	}

	aid, ok := accountID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	var roleValue string
	if roleOK {
		roleValue, _ = role.(string)
	}

	return &identity{
		accountID:     aid,
		role:          roleValue,
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the account is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return id
}
