package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/marketstall/api/internal/domain"
)

// Role constants used throughout the API when checking authorisation boundaries.
const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
	RoleAdmin    = "admin"
)

// ErrUserLoaderUnavailable indicates that the identity was created without a user loader.
var ErrUserLoaderUnavailable = errors.New("auth: user loader not configured")

// Identity captures the authenticated principal details extracted from a Firebase ID token.
type Identity struct {
	UID    string
	Email  string
	Roles  []string
	Locale string

	token *firebaseauth.Token

	userLoader UserLoader
	once       sync.Once
	userRecord *firebaseauth.UserRecord
	userErr    error
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity includes any of the provided roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// Actor maps the identity onto the lifecycle actor for the requested role.
// The role must be one the identity actually carries; admins may act as any
// role, everyone else only as a role in their claim set.
func (i *Identity) Actor(role domain.Role) (domain.Actor, bool) {
	if i == nil {
		return domain.Actor{}, false
	}
	if !i.HasRole(string(role)) && !i.HasRole(RoleAdmin) {
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: i.UID, Role: role}, true
}

// PrimaryRole picks the most privileged lifecycle role the identity carries.
func (i *Identity) PrimaryRole() (domain.Role, bool) {
	switch {
	case i.HasRole(RoleAdmin):
		return domain.RoleAdmin, true
	case i.HasRole(RoleSeller):
		return domain.RoleSeller, true
	case i.HasRole(RoleCustomer):
		return domain.RoleCustomer, true
	}
	return "", false
}

// User resolves the Firebase user profile using the injected loader on first access.
func (i *Identity) User(ctx context.Context) (*firebaseauth.UserRecord, error) {
	if i == nil {
		return nil, ErrUserLoaderUnavailable
	}
	if i.userLoader == nil {
		return nil, ErrUserLoaderUnavailable
	}

	i.once.Do(func() {
		i.userRecord, i.userErr = i.userLoader(ctx, i.UID)
	})

	return i.userRecord, i.userErr
}

type contextKey string

const identityContextKey contextKey = "github.com/marketstall/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// UserLoader fetches the Firebase user profile corresponding to a UID.
type UserLoader func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)

// ServiceIdentity captures a machine principal authenticated via service-to-service credentials.
type ServiceIdentity struct {
	Subject string
}

const serviceIdentityContextKey contextKey = "github.com/marketstall/api/internal/platform/auth/service-identity"

// WithServiceIdentity stores the service identity within the context for downstream handlers.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	return context.WithValue(ctx, serviceIdentityContextKey, identity)
}

// ServiceIdentityFromContext retrieves the service identity previously stored in context.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
