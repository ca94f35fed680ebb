// Package access decides which organization and file records a caller may act on.
package access

import (
	"context"
	"database/sql"
	"errors"

	"filedrive/api/internal/store"
)

// ErrDenied is the uniform failure for every access check. Callers must not be
// able to tell "org not found" from "not a member" from "file not found".
var ErrDenied = errors.New("access denied")

// OrgRef distinguishes a real organization from a user's personal space. A
// caller with no organization uses their own user ID as the org identifier.
type OrgRef struct {
	ID       string
	Personal bool
}

// ResolveOrgRef classifies an org identifier relative to a user.
func ResolveOrgRef(user store.User, orgID string) OrgRef {
	return OrgRef{ID: orgID, Personal: orgID == user.ID}
}

// DirectoryStore is the record lookup surface the resolver needs.
type DirectoryStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetFile(ctx context.Context, fileID string) (store.File, error)
}

type Resolver struct {
	store DirectoryStore
}

func NewResolver(store DirectoryStore) *Resolver {
	return &Resolver{store: store}
}

// ResolveOrgAccess returns the caller's user record if the caller may act
// within orgID: either a membership matches, or orgID is the caller's own
// personal space. Every failure mode collapses to ErrDenied.
func (r *Resolver) ResolveOrgAccess(ctx context.Context, callerID, orgID string) (store.User, error) {
	if callerID == "" {
		return store.User{}, ErrDenied
	}
	user, err := r.store.GetUserByID(ctx, callerID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrDenied
	}
	if err != nil {
		return store.User{}, err
	}
	if !HasOrgAccess(user, orgID) {
		return store.User{}, ErrDenied
	}
	return user, nil
}

// ResolveFileAccess loads the file and delegates to ResolveOrgAccess on its
// owning org. A missing file is ErrDenied, not NotFound: surfacing absence
// would leak which file IDs exist.
func (r *Resolver) ResolveFileAccess(ctx context.Context, callerID, fileID string) (store.User, store.File, error) {
	file, err := r.store.GetFile(ctx, fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, store.File{}, ErrDenied
	}
	if err != nil {
		return store.User{}, store.File{}, err
	}
	user, err := r.ResolveOrgAccess(ctx, callerID, file.OrgID)
	if err != nil {
		return store.User{}, store.File{}, err
	}
	return user, file, nil
}

// HasOrgAccess reports whether user may act within orgID. The personal-space
// check is an exact match against the user's own ID, never a substring test.
func HasOrgAccess(user store.User, orgID string) bool {
	if orgID == "" {
		return false
	}
	for _, membership := range user.Orgs {
		if membership.OrgID == orgID {
			return true
		}
	}
	return ResolveOrgRef(user, orgID).Personal
}

// RoleInOrg returns the user's membership role for orgID, if any.
func RoleInOrg(user store.User, orgID string) (store.Role, bool) {
	for _, membership := range user.Orgs {
		if membership.OrgID == orgID {
			return membership.Role, true
		}
	}
	return "", false
}

// CanMutateDeletion reports whether user may flip file's soft-delete flag:
// the file's owner, or an admin of the file's org.
func CanMutateDeletion(user store.User, file store.File) bool {
	if file.OwnerID == user.ID {
		return true
	}
	role, ok := RoleInOrg(user, file.OrgID)
	return ok && role == store.RoleAdmin
}
