package app

import (
	"context"
	"net/http"
	"testing"

	"filedrive/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthSignUp(t *testing.T) {
	var created store.User
	fs := &fakeStore{
		createUserFn: func(_ context.Context, user store.User) error {
			created = user
			return nil
		},
	}
	svc := newTestService(fs, &fakeBlob{})
	handler := NewHTTPServer(svc, "*", "internal-token").Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/auth/signup", "",
		`{"email":"avery@example.com","password":"longenough","displayName":"Avery"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeJSON(t, rec)
	if payload["userId"] == nil {
		t.Fatalf("missing userId: %v", payload)
	}
	// Without SMTP configured the verification token rides in the response.
	if token, _ := payload["devVerificationToken"].(string); token == "" {
		t.Fatalf("missing devVerificationToken: %v", payload)
	}
	if created.Email != "avery@example.com" || created.IsEmailVerified {
		t.Fatalf("unexpected created user: %+v", created)
	}
}

func TestAuthSignUpRejectsShortPassword(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeBlob{})
	handler := NewHTTPServer(svc, "*", "internal-token").Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/auth/signup", "",
		`{"email":"avery@example.com","password":"short","displayName":"Avery"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if payload := decodeJSON(t, rec); payload["code"] != "SIGNUP_FAILED" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestAuthSignUpDuplicateEmail(t *testing.T) {
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: "usr_existing"}, nil
		},
	}
	svc := newTestService(fs, &fakeBlob{})
	handler := NewHTTPServer(svc, "*", "internal-token").Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/auth/signup", "",
		`{"email":"avery@example.com","password":"longenough","displayName":"Avery"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if payload := decodeJSON(t, rec); payload["code"] != "EMAIL_EXISTS" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestAuthSignIn(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("longenough"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatal(err)
	}
	user := store.User{
		ID:              "usr_1",
		DisplayName:     "Avery",
		Email:           "avery@example.com",
		PasswordHash:    string(hash),
		IsEmailVerified: true,
	}
	fs := &fakeStore{
		getUserByIDFn: userDirectory(user),
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return user, nil
		},
	}
	svc := newTestService(fs, &fakeBlob{})
	handler := NewHTTPServer(svc, "*", "internal-token").Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/auth/signin", "",
		`{"email":"avery@example.com","password":"longenough"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeJSON(t, rec)
	accessToken, _ := payload["accessToken"].(string)
	if accessToken == "" {
		t.Fatalf("missing accessToken: %v", payload)
	}
	if payload["userName"] != "Avery" {
		t.Fatalf("userName = %v", payload["userName"])
	}

	// The issued token authenticates follow-up requests.
	probe := doRequest(t, handler, http.MethodGet, "/api/session", accessToken, "")
	if probe.Code != http.StatusOK {
		t.Fatalf("session probe: status = %d", probe.Code)
	}
	if session := decodeJSON(t, probe); session["authenticated"] != true {
		t.Fatalf("session probe: %v", session)
	}
}

func TestAuthSignInWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("longenough"), bcrypt.DefaultCost)
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: "usr_1", PasswordHash: string(hash), IsEmailVerified: true}, nil
		},
	}
	svc := newTestService(fs, &fakeBlob{})
	handler := NewHTTPServer(svc, "*", "internal-token").Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/auth/signin", "",
		`{"email":"avery@example.com","password":"notthepassword"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if payload := decodeJSON(t, rec); payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestAuthSignInUnverifiedEmail(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("longenough"), bcrypt.DefaultCost)
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: "usr_1", PasswordHash: string(hash)}, nil
		},
	}
	svc := newTestService(fs, &fakeBlob{})
	handler := NewHTTPServer(svc, "*", "internal-token").Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/auth/signin", "",
		`{"email":"avery@example.com","password":"longenough"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if payload := decodeJSON(t, rec); payload["code"] != "EMAIL_NOT_VERIFIED" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestAuthInvalidBody(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeBlob{})
	handler := NewHTTPServer(svc, "*", "internal-token").Handler()

	for _, path := range []string{"/api/auth/signup", "/api/auth/signin"} {
		rec := doRequest(t, handler, http.MethodPost, path, "", `{"email":`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", path, rec.Code)
			continue
		}
		if payload := decodeJSON(t, rec); payload["code"] != "INVALID_BODY" {
			t.Errorf("%s: code = %v", path, payload["code"])
		}
	}
}

func TestSessionRefreshEndpoint(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: userDirectory(store.User{ID: "usr_1", DisplayName: "Avery"}),
	}
	svc := newTestService(fs, &fakeBlob{})
	handler := NewHTTPServer(svc, "*", "internal-token").Handler()

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	rec := doRequest(t, handler, http.MethodPost, "/api/session/refresh", "",
		`{"refreshToken":"`+session.RefreshToken+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeJSON(t, rec)
	if token, _ := payload["token"].(string); token == "" {
		t.Fatalf("missing token: %v", payload)
	}

	// Refresh tokens are single use.
	rec = doRequest(t, handler, http.MethodPost, "/api/session/refresh", "",
		`{"refreshToken":"`+session.RefreshToken+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reuse: status = %d", rec.Code)
	}
}
