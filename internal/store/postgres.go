package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// ErrDuplicateMembership is returned when a (user, org) membership already exists.
var ErrDuplicateMembership = errors.New("membership already exists")

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, avatar_url, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.AvatarURL, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, avatar_url, is_email_verified
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.AvatarURL, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	orgs, err := s.listMemberships(ctx, user.ID)
	if err != nil {
		return User{}, err
	}
	user.Orgs = orgs
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, avatar_url, is_email_verified
		FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.AvatarURL, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	orgs, err := s.listMemberships(ctx, user.ID)
	if err != nil {
		return User{}, err
	}
	user.Orgs = orgs
	return user, nil
}

func (s *PostgresStore) listMemberships(ctx context.Context, userID string) ([]OrgMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, role FROM org_memberships WHERE user_id=$1 ORDER BY org_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var orgs []OrgMembership
	for rows.Next() {
		var m OrgMembership
		if err := rows.Scan(&m.OrgID, &m.Role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		orgs = append(orgs, m)
	}
	return orgs, rows.Err()
}

func (s *PostgresStore) AddOrgMembership(ctx context.Context, userID, orgID string, role Role) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO org_memberships (user_id, org_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, org_id) DO NOTHING
	`, userID, orgID, role)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert membership rows: %w", err)
	}
	if affected == 0 {
		return ErrDuplicateMembership
	}
	return nil
}

func (s *PostgresStore) UpdateMembershipRole(ctx context.Context, userID, orgID string, role Role) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE org_memberships SET role=$3 WHERE user_id=$1 AND org_id=$2
	`, userID, orgID, role)
	if err != nil {
		return fmt.Errorf("update membership role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update membership rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) InsertFile(ctx context.Context, file File) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, name, org_id, owner_id, blob_ref, type, pending_delete)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
	`, file.ID, file.Name, file.OrgID, file.OwnerID, file.BlobRef, file.Type)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID string) (File, error) {
	var file File
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, org_id, owner_id, blob_ref, type, pending_delete, created_at, updated_at
		FROM files WHERE id=$1
	`, fileID).Scan(&file.ID, &file.Name, &file.OrgID, &file.OwnerID, &file.BlobRef, &file.Type, &file.PendingDelete, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return File{}, err
	}
	return file, nil
}

func (s *PostgresStore) ListFilesByOrg(ctx context.Context, orgID string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, org_id, owner_id, blob_ref, type, pending_delete, created_at, updated_at
		FROM files WHERE org_id=$1
		ORDER BY created_at, id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list files by org: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

func (s *PostgresStore) ListPendingDeleteFiles(ctx context.Context) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, org_id, owner_id, blob_ref, type, pending_delete, created_at, updated_at
		FROM files WHERE pending_delete
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending-delete files: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

func scanFiles(rows *sql.Rows) ([]File, error) {
	var files []File
	for rows.Next() {
		var file File
		if err := rows.Scan(&file.ID, &file.Name, &file.OrgID, &file.OwnerID, &file.BlobRef, &file.Type, &file.PendingDelete, &file.CreatedAt, &file.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *PostgresStore) SetFilePendingDelete(ctx context.Context, fileID string, pending bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE files SET pending_delete=$2, updated_at=NOW() WHERE id=$1
	`, fileID, pending)
	if err != nil {
		return fmt.Errorf("set pending delete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set pending delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateFileBlobRef(ctx context.Context, fileID, blobRef string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE files SET blob_ref=$2, updated_at=NOW() WHERE id=$1
	`, fileID, blobRef)
	if err != nil {
		return fmt.Errorf("update file blob ref: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update file blob ref rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteFileRecord(ctx context.Context, fileID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE file_id=$1`, fileID); err != nil {
		return fmt.Errorf("delete file favorites: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id=$1`, fileID); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}

// ToggleFavorite flips the (user, file) bookmark and reports the resulting state.
// The delete-first shape keeps a concurrent double toggle from inserting twice;
// the unique index on (user_id, file_id) backstops the race.
func (s *PostgresStore) ToggleFavorite(ctx context.Context, userID, orgID, fileID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM favorites WHERE user_id=$1 AND file_id=$2
	`, userID, fileID)
	if err != nil {
		return false, fmt.Errorf("delete favorite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete favorite rows: %w", err)
	}
	if affected > 0 {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO favorites (user_id, org_id, file_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, file_id) DO NOTHING
	`, userID, orgID, fileID); err != nil {
		return false, fmt.Errorf("insert favorite: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) ListFavoritesByUser(ctx context.Context, userID, orgID string) ([]Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, org_id, file_id, created_at
		FROM favorites WHERE user_id=$1 AND org_id=$2
		ORDER BY created_at, file_id
	`, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var favorites []Favorite
	for rows.Next() {
		var favorite Favorite
		if err := rows.Scan(&favorite.UserID, &favorite.OrgID, &favorite.FileID, &favorite.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		favorites = append(favorites, favorite)
	}
	return favorites, rows.Err()
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti=$1 AND expires_at > NOW())
	`, jti).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
