package access

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"filedrive/api/internal/store"
)

type fakeDirectory struct {
	users map[string]store.User
	files map[string]store.File
}

func (f *fakeDirectory) GetUserByID(_ context.Context, userID string) (store.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeDirectory) GetFile(_ context.Context, fileID string) (store.File, error) {
	file, ok := f.files[fileID]
	if !ok {
		return store.File{}, sql.ErrNoRows
	}
	return file, nil
}

func testResolver() *Resolver {
	return NewResolver(&fakeDirectory{
		users: map[string]store.User{
			"usr_member": {ID: "usr_member", Orgs: []store.OrgMembership{{OrgID: "org_x", Role: store.RoleMember}}},
			"usr_admin":  {ID: "usr_admin", Orgs: []store.OrgMembership{{OrgID: "org_x", Role: store.RoleAdmin}}},
			"usr_solo":   {ID: "usr_solo"},
		},
		files: map[string]store.File{
			"file_x": {ID: "file_x", OrgID: "org_x", OwnerID: "usr_member", Type: store.FileTypePDF},
			"file_p": {ID: "file_p", OrgID: "usr_solo", OwnerID: "usr_solo", Type: store.FileTypeCSV},
		},
	})
}

func TestResolveOrgAccess(t *testing.T) {
	resolver := testResolver()
	ctx := context.Background()

	cases := []struct {
		name     string
		callerID string
		orgID    string
		denied   bool
	}{
		{name: "unauthenticated", callerID: "", orgID: "org_x", denied: true},
		{name: "unknown user", callerID: "usr_ghost", orgID: "org_x", denied: true},
		{name: "member of org", callerID: "usr_member", orgID: "org_x", denied: false},
		{name: "non-member", callerID: "usr_solo", orgID: "org_x", denied: true},
		{name: "personal space", callerID: "usr_solo", orgID: "usr_solo", denied: false},
		{name: "someone else's personal space", callerID: "usr_member", orgID: "usr_solo", denied: true},
		{name: "empty org id", callerID: "usr_member", orgID: "", denied: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user, err := resolver.ResolveOrgAccess(ctx, tc.callerID, tc.orgID)
			if tc.denied {
				if !errors.Is(err, ErrDenied) {
					t.Fatalf("expected ErrDenied, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user.ID != tc.callerID {
				t.Fatalf("expected resolved user %q, got %q", tc.callerID, user.ID)
			}
		})
	}
}

func TestResolveOrgAccessPersonalSpaceIsExactMatch(t *testing.T) {
	// A short org ID that happens to be a substring of the caller's ID must
	// not grant access; only an exact match against the caller's ID does.
	resolver := NewResolver(&fakeDirectory{
		users: map[string]store.User{
			"usr_solo": {ID: "usr_solo"},
		},
	})
	if _, err := resolver.ResolveOrgAccess(context.Background(), "usr_solo", "solo"); !errors.Is(err, ErrDenied) {
		t.Fatalf("substring org id must be denied, got %v", err)
	}
}

func TestResolveFileAccess(t *testing.T) {
	resolver := testResolver()
	ctx := context.Background()

	user, file, err := resolver.ResolveFileAccess(ctx, "usr_admin", "file_x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "usr_admin" || file.ID != "file_x" {
		t.Fatalf("unexpected resolution: user=%q file=%q", user.ID, file.ID)
	}

	if _, _, err := resolver.ResolveFileAccess(ctx, "usr_member", "file_missing"); !errors.Is(err, ErrDenied) {
		t.Fatalf("missing file must be denied, got %v", err)
	}
	if _, _, err := resolver.ResolveFileAccess(ctx, "usr_member", "file_p"); !errors.Is(err, ErrDenied) {
		t.Fatalf("file in another user's personal space must be denied, got %v", err)
	}
	if _, _, err := resolver.ResolveFileAccess(ctx, "usr_solo", "file_p"); err != nil {
		t.Fatalf("owner of personal space denied: %v", err)
	}
}

func TestCanMutateDeletion(t *testing.T) {
	file := store.File{ID: "file_x", OrgID: "org_x", OwnerID: "usr_member"}

	cases := []struct {
		name string
		user store.User
		want bool
	}{
		{
			name: "owner",
			user: store.User{ID: "usr_member", Orgs: []store.OrgMembership{{OrgID: "org_x", Role: store.RoleMember}}},
			want: true,
		},
		{
			name: "org admin",
			user: store.User{ID: "usr_admin", Orgs: []store.OrgMembership{{OrgID: "org_x", Role: store.RoleAdmin}}},
			want: true,
		},
		{
			name: "non-owner member",
			user: store.User{ID: "usr_other", Orgs: []store.OrgMembership{{OrgID: "org_x", Role: store.RoleMember}}},
			want: false,
		},
		{
			name: "admin of a different org",
			user: store.User{ID: "usr_other", Orgs: []store.OrgMembership{{OrgID: "org_y", Role: store.RoleAdmin}}},
			want: false,
		},
		{
			name: "non-member",
			user: store.User{ID: "usr_outsider"},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanMutateDeletion(tc.user, file); got != tc.want {
				t.Fatalf("CanMutateDeletion(%q) = %v, want %v", tc.user.ID, got, tc.want)
			}
		})
	}
}

func TestResolveOrgRef(t *testing.T) {
	user := store.User{ID: "usr_solo"}
	if ref := ResolveOrgRef(user, "usr_solo"); !ref.Personal {
		t.Fatal("own user ID should resolve as personal space")
	}
	if ref := ResolveOrgRef(user, "org_x"); ref.Personal {
		t.Fatal("real org ID should not resolve as personal space")
	}
}
