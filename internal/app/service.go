package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"filedrive/api/internal/access"
	"filedrive/api/internal/auth"
	"filedrive/api/internal/authpw"
	"filedrive/api/internal/blob"
	"filedrive/api/internal/config"
	"filedrive/api/internal/docview"
	"filedrive/api/internal/email"
	"filedrive/api/internal/filefilter"
	"filedrive/api/internal/search"
	"filedrive/api/internal/store"
	"filedrive/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type CreateFileInput struct {
	Name    string `json:"name"`
	OrgID   string `json:"orgId"`
	BlobRef string `json:"blobRef"`
	Type    string `json:"type"`
}

type ListFilesInput struct {
	OrgID         string
	Query         string
	Type          string
	FavoritesOnly bool
	DeletedOnly   bool
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	AddOrgMembership(context.Context, string, string, store.Role) error
	UpdateMembershipRole(context.Context, string, string, store.Role) error
	InsertFile(context.Context, store.File) error
	GetFile(context.Context, string) (store.File, error)
	ListFilesByOrg(context.Context, string) ([]store.File, error)
	ListPendingDeleteFiles(context.Context) ([]store.File, error)
	SetFilePendingDelete(context.Context, string, bool) error
	UpdateFileBlobRef(context.Context, string, string) error
	DeleteFileRecord(context.Context, string) error
	ToggleFavorite(context.Context, string, string, string) (bool, error)
	ListFavoritesByUser(context.Context, string, string) ([]store.Favorite, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. Postgres implements it directly;
// Redis is swapped in when configured.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type blobStore interface {
	NewObjectKey() string
	PresignUpload(ctx context.Context, key string) (string, error)
	PresignFetch(ctx context.Context, key, downloadName string) (string, error)
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	blobs    blobStore
	resolver *access.Resolver
	authpw   *authpw.Service
	search   *search.Service
	email    *email.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, blobs *blob.Store) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		blobs:    blobs,
		resolver: access.NewResolver(dataStore),
		authpw:   authpw.NewService(dataStore),
	}
}

// UseSessionStore swaps refresh token storage, e.g. for Redis.
func (s *Service) UseSessionStore(sessions sessionStore) {
	s.sessions = sessions
}

// UseSearch enables full-text search. Without it the search endpoint
// returns empty results.
func (s *Service) UseSearch(svc *search.Service) {
	s.search = svc
}

// UseEmail enables outbound email.
func (s *Service) UseEmail(svc *email.Service) {
	s.email = svc
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Sessions ---

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, ref.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// --- Uploads and downloads ---

func (s *Service) GenerateUploadURL(ctx context.Context, session Session, orgID string) (map[string]any, error) {
	if _, err := s.resolver.ResolveOrgAccess(ctx, session.UserID, orgID); err != nil {
		return nil, deniedError(err)
	}

	key := s.blobs.NewObjectKey()
	url, err := s.blobs.PresignUpload(ctx, key)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url, "blobRef": key}, nil
}

func (s *Service) GetFileURL(ctx context.Context, session Session, fileID string, download bool) (map[string]any, error) {
	_, file, err := s.resolver.ResolveFileAccess(ctx, session.UserID, fileID)
	if err != nil {
		return nil, deniedError(err)
	}

	downloadName := ""
	if download {
		downloadName = file.Name
	}
	url, err := s.blobs.PresignFetch(ctx, file.BlobRef, downloadName)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url}, nil
}

// --- Files ---

func (s *Service) CreateFile(ctx context.Context, session Session, input CreateFileInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if strings.TrimSpace(input.BlobRef) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "blobRef is required", nil)
	}
	fileType, ok := store.ParseFileType(input.Type)
	if !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be one of image, csv, pdf, docx", nil)
	}

	user, err := s.resolver.ResolveOrgAccess(ctx, session.UserID, input.OrgID)
	if err != nil {
		return nil, deniedError(err)
	}

	file := store.File{
		ID:      util.NewID("file"),
		Name:    name,
		OrgID:   input.OrgID,
		OwnerID: user.ID,
		BlobRef: input.BlobRef,
		Type:    fileType,
	}
	if err := s.store.InsertFile(ctx, file); err != nil {
		return nil, err
	}

	s.indexFile(file)
	return filePayload(file, false), nil
}

func (s *Service) GetFiles(ctx context.Context, session Session, input ListFilesInput) ([]map[string]any, error) {
	user, err := s.resolver.ResolveOrgAccess(ctx, session.UserID, input.OrgID)
	if err != nil {
		if errors.Is(err, access.ErrDenied) {
			return []map[string]any{}, nil
		}
		return nil, err
	}

	files, err := s.store.ListFilesByOrg(ctx, input.OrgID)
	if err != nil {
		return nil, err
	}
	favoriteIDs, err := s.favoriteIDSet(ctx, user.ID, input.OrgID)
	if err != nil {
		return nil, err
	}

	var fileType store.FileType
	if input.Type != "" {
		parsed, ok := store.ParseFileType(input.Type)
		if !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be one of image, csv, pdf, docx", nil)
		}
		fileType = parsed
	}

	filtered := filefilter.Apply(files, favoriteIDs, filefilter.Params{
		OrgID:         input.OrgID,
		Query:         input.Query,
		Type:          fileType,
		FavoritesOnly: input.FavoritesOnly,
		DeletedOnly:   input.DeletedOnly,
	})

	items := make([]map[string]any, 0, len(filtered))
	for _, f := range filtered {
		_, favorited := favoriteIDs[f.ID]
		items = append(items, filePayload(f, favorited))
	}
	return items, nil
}

func (s *Service) GetFileByID(ctx context.Context, session Session, fileID string) (map[string]any, error) {
	user, file, err := s.resolver.ResolveFileAccess(ctx, session.UserID, fileID)
	if err != nil {
		return nil, deniedError(err)
	}
	favoriteIDs, err := s.favoriteIDSet(ctx, user.ID, file.OrgID)
	if err != nil {
		return nil, err
	}
	_, favorited := favoriteIDs[file.ID]
	return filePayload(file, favorited), nil
}

// GetFileMeta returns the subset of file metadata needed to render a
// download or preview, access-checked like every other file read.
func (s *Service) GetFileMeta(ctx context.Context, session Session, fileID string) (map[string]any, error) {
	_, file, err := s.resolver.ResolveFileAccess(ctx, session.UserID, fileID)
	if err != nil {
		return nil, deniedError(err)
	}
	return map[string]any{
		"id":   file.ID,
		"name": file.Name,
		"type": string(file.Type),
	}, nil
}

func (s *Service) GetAllFavorites(ctx context.Context, session Session, orgID string) ([]map[string]any, error) {
	user, err := s.resolver.ResolveOrgAccess(ctx, session.UserID, orgID)
	if err != nil {
		if errors.Is(err, access.ErrDenied) {
			return []map[string]any{}, nil
		}
		return nil, err
	}

	favorites, err := s.store.ListFavoritesByUser(ctx, user.ID, orgID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(favorites))
	for _, fav := range favorites {
		items = append(items, map[string]any{
			"fileId": fav.FileID,
			"orgId":  fav.OrgID,
			"userId": fav.UserID,
		})
	}
	return items, nil
}

func (s *Service) ToggleFavorite(ctx context.Context, session Session, fileID string) (map[string]any, error) {
	user, file, err := s.resolver.ResolveFileAccess(ctx, session.UserID, fileID)
	if err != nil {
		return nil, deniedError(err)
	}
	favorited, err := s.store.ToggleFavorite(ctx, user.ID, file.OrgID, file.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"fileId": file.ID, "favorited": favorited}, nil
}

// --- Deletion lifecycle ---

func (s *Service) DeleteFile(ctx context.Context, session Session, fileID string) (map[string]any, error) {
	return s.setPendingDelete(ctx, session, fileID, true)
}

func (s *Service) RestoreFile(ctx context.Context, session Session, fileID string) (map[string]any, error) {
	return s.setPendingDelete(ctx, session, fileID, false)
}

func (s *Service) setPendingDelete(ctx context.Context, session Session, fileID string, pending bool) (map[string]any, error) {
	user, file, err := s.resolver.ResolveFileAccess(ctx, session.UserID, fileID)
	if err != nil {
		return nil, deniedError(err)
	}
	if !access.CanMutateDeletion(user, file) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the file owner or an org admin can do that", nil)
	}

	// Marking an already-marked file (or restoring a live one) is a no-op.
	if file.PendingDelete != pending {
		if err := s.store.SetFilePendingDelete(ctx, file.ID, pending); err != nil {
			return nil, err
		}
		file.PendingDelete = pending
		if s.search != nil {
			if pending {
				s.search.DeleteFile(file.ID)
			} else {
				s.indexFile(file)
			}
		}
	}

	return filePayload(file, false), nil
}

// SweepDeleted permanently removes files marked for deletion. The blob is
// deleted before the record so a failed blob delete leaves the record
// visible for the next sweep instead of orphaning the object.
func (s *Service) SweepDeleted(ctx context.Context) (int, error) {
	files, err := s.store.ListPendingDeleteFiles(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, file := range files {
		if err := s.blobs.Delete(ctx, file.BlobRef); err != nil {
			log.Printf("sweep: delete blob %s for file %s: %v", file.BlobRef, file.ID, err)
			continue
		}
		if err := s.store.DeleteFileRecord(ctx, file.ID); err != nil {
			log.Printf("sweep: delete record %s: %v", file.ID, err)
			continue
		}
		if s.search != nil {
			s.search.DeleteFile(file.ID)
		}
		deleted++
	}
	return deleted, nil
}

// --- Content updates ---

// UpdateFileContent points a file at a freshly uploaded blob, used by the
// in-browser editor. The old blob is removed best effort.
func (s *Service) UpdateFileContent(ctx context.Context, session Session, fileID, blobRef string) (map[string]any, error) {
	if strings.TrimSpace(blobRef) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "blobRef is required", nil)
	}
	_, file, err := s.resolver.ResolveFileAccess(ctx, session.UserID, fileID)
	if err != nil {
		return nil, deniedError(err)
	}

	oldRef := file.BlobRef
	if err := s.store.UpdateFileBlobRef(ctx, file.ID, blobRef); err != nil {
		return nil, err
	}
	file.BlobRef = blobRef

	if oldRef != "" && oldRef != blobRef {
		if err := s.blobs.Delete(ctx, oldRef); err != nil {
			log.Printf("update content: delete old blob %s: %v", oldRef, err)
		}
	}

	return filePayload(file, false), nil
}

// DocxPreview renders a docx file as HTML for in-browser viewing.
func (s *Service) DocxPreview(ctx context.Context, session Session, fileID string) (map[string]any, error) {
	_, file, err := s.resolver.ResolveFileAccess(ctx, session.UserID, fileID)
	if err != nil {
		return nil, deniedError(err)
	}
	if file.Type != store.FileTypeDocx {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "preview is only available for docx files", nil)
	}

	rc, err := s.blobs.Fetch(ctx, file.BlobRef)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", file.BlobRef, err)
	}

	html, err := docview.HTML(data)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "PREVIEW_FAILED", "Could not render document preview", nil)
	}

	return map[string]any{"fileId": file.ID, "name": file.Name, "html": html}, nil
}

// --- Sharing ---

func (s *Service) ShareFileByEmail(ctx context.Context, session Session, fileID, to, company string) (map[string]any, error) {
	if strings.TrimSpace(to) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "recipient email is required", nil)
	}
	if s.email == nil || !s.email.IsConfigured() {
		return nil, domainError(http.StatusServiceUnavailable, "EMAIL_UNAVAILABLE", "Email is not configured", nil)
	}

	user, file, err := s.resolver.ResolveFileAccess(ctx, session.UserID, fileID)
	if err != nil {
		return nil, deniedError(err)
	}

	fileURL, err := s.blobs.PresignFetch(ctx, file.BlobRef, file.Name)
	if err != nil {
		return nil, err
	}

	if err := s.email.SendFileShareEmail(to, user.Email, user.DisplayName, company, file.Name, fileURL); err != nil {
		return nil, fmt.Errorf("send share email: %w", err)
	}

	return map[string]any{"sent": true, "to": to}, nil
}

// --- Search ---

func (s *Service) Search(ctx context.Context, session Session, text, fileType string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}

	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return search.Response{}, err
	}

	// Searchable scope: every org membership plus the personal space.
	orgIDs := make([]string, 0, len(user.Orgs)+1)
	for _, m := range user.Orgs {
		orgIDs = append(orgIDs, m.OrgID)
	}
	orgIDs = append(orgIDs, user.ID)

	return s.search.Search(search.Query{
		Text:       text,
		OrgIDs:     orgIDs,
		FilterType: fileType,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

// --- Memberships ---

func (s *Service) AddOrgMembership(ctx context.Context, userID, orgID, role string) error {
	parsed, err := parseRole(role)
	if err != nil {
		return err
	}
	if err := s.store.AddOrgMembership(ctx, userID, orgID, parsed); err != nil {
		if errors.Is(err, store.ErrDuplicateMembership) {
			return domainError(http.StatusConflict, "ALREADY_MEMBER", "User is already a member of that org", nil)
		}
		return err
	}
	return nil
}

func (s *Service) UpdateMembershipRole(ctx context.Context, userID, orgID, role string) error {
	parsed, err := parseRole(role)
	if err != nil {
		return err
	}
	return s.store.UpdateMembershipRole(ctx, userID, orgID, parsed)
}

func parseRole(role string) (store.Role, error) {
	if !store.ValidRole(role) {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be admin or member", nil)
	}
	return store.Role(role), nil
}

// --- Helpers ---

func (s *Service) favoriteIDSet(ctx context.Context, userID, orgID string) (map[string]struct{}, error) {
	favorites, err := s.store.ListFavoritesByUser(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(favorites))
	for _, fav := range favorites {
		set[fav.FileID] = struct{}{}
	}
	return set, nil
}

func (s *Service) indexFile(file store.File) {
	if s.search == nil {
		return
	}
	s.search.IndexFile(search.FileRecord{
		ID:    file.ID,
		Name:  file.Name,
		OrgID: file.OrgID,
		Type:  string(file.Type),
	})
}

// deniedError keeps denial responses uniform: callers cannot tell a file
// they lack access to apart from one that does not exist.
func deniedError(err error) error {
	if errors.Is(err, access.ErrDenied) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return err
}

func filePayload(f store.File, favorited bool) map[string]any {
	return map[string]any{
		"id":            f.ID,
		"name":          f.Name,
		"orgId":         f.OrgID,
		"ownerId":       f.OwnerID,
		"type":          string(f.Type),
		"pendingDelete": f.PendingDelete,
		"favorited":     favorited,
		"createdAt":     f.CreatedAt,
	}
}
