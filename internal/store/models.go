package store

import "time"

// Role is a user's standing within one organization.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ValidRole reports whether a raw role string is one we store.
func ValidRole(role string) bool {
	return Role(role) == RoleAdmin || Role(role) == RoleMember
}

// FileType is the declared content category of an uploaded file.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeCSV   FileType = "csv"
	FileTypePDF   FileType = "pdf"
	FileTypeDocx  FileType = "docx"
)

// ParseFileType validates a raw type string.
func ParseFileType(raw string) (FileType, bool) {
	switch FileType(raw) {
	case FileTypeImage, FileTypeCSV, FileTypePDF, FileTypeDocx:
		return FileType(raw), true
	default:
		return "", false
	}
}

type OrgMembership struct {
	OrgID string
	Role  Role
}

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	AvatarURL             string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	Orgs                  []OrgMembership
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type File struct {
	ID            string
	Name          string
	OrgID         string
	OwnerID       string
	BlobRef       string
	Type          FileType
	PendingDelete bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Favorite struct {
	UserID    string
	OrgID     string
	FileID    string
	CreatedAt time.Time
}
