package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/skinshowcase/internal/model"
	"github.com/hitoshi/skinshowcase/internal/repository"
	"github.com/hitoshi/skinshowcase/internal/security"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn        func(ctx context.Context, id string) (*model.User, error)
	upsertBySteamIDFn func(ctx context.Context, steamID, username, avatarURL string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) UpsertBySteamID(ctx context.Context, steamID, username, avatarURL string) (*model.User, error) {
	if m.upsertBySteamIDFn != nil {
		return m.upsertBySteamIDFn(ctx, steamID, username, avatarURL)
	}
	return &model.User{ID: "user-1", SteamID: steamID, Username: username, AvatarURL: avatarURL}, nil
}

func (m *mockUserRepo) UpdateTradeLink(_ context.Context, _, _ string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error {
	return nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, _ string) error {
	return nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type mockIdentityProvider struct {
	getLoginURLFn func(state string) string
	verifyFn      func(ctx context.Context, params url.Values) (*model.ExternalProfile, error)
}

func (m *mockIdentityProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockIdentityProvider) Verify(ctx context.Context, params url.Values) (*model.ExternalProfile, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, params)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ IdentityProvider = (*mockIdentityProvider)(nil)

// --- テスト ---

func TestGetLoginURL_DelegatesToProvider(t *testing.T) {
	idp := &mockIdentityProvider{
		getLoginURLFn: func(state string) string {
			return "https://steamcommunity.com/openid/login?state=" + state
		},
	}
	svc := NewService(idp, nil, nil, nil, nil, ServiceConfig{SessionMaxAge: 86400})

	got := svc.GetLoginURL("test-state")
	want := "https://steamcommunity.com/openid/login?state=test-state"
	if got != want {
		t.Errorf("GetLoginURL() = %q, want %q", got, want)
	}
}

func TestHandleCallback_UpsertsUserAndCreatesSession(t *testing.T) {
	ctx := context.Background()

	var gotSteamID, gotName, gotAvatar string
	var createdSession *model.Session

	idp := &mockIdentityProvider{
		verifyFn: func(ctx context.Context, params url.Values) (*model.ExternalProfile, error) {
			return &model.ExternalProfile{
				SubjectID:   "76561198000000001",
				DisplayName: "<b>alice</b>",
				Photos:      []string{"small.jpg", "medium.jpg", "full.jpg"},
			}, nil
		},
	}
	userRepo := &mockUserRepo{
		upsertBySteamIDFn: func(ctx context.Context, steamID, username, avatarURL string) (*model.User, error) {
			gotSteamID, gotName, gotAvatar = steamID, username, avatarURL
			return &model.User{ID: "user-1", SteamID: steamID, Username: username, AvatarURL: avatarURL}, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := NewService(idp, userRepo, sessionRepo, security.NewTextSanitizer(64), nil, ServiceConfig{SessionMaxAge: 3600})

	session, err := svc.HandleCallback(ctx, url.Values{})
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if gotSteamID != "76561198000000001" {
		t.Errorf("steamID = %q", gotSteamID)
	}
	if gotName != "alice" {
		t.Errorf("表示名がサニタイズされていない: %q", gotName)
	}
	if gotAvatar != "full.jpg" {
		t.Errorf("avatar = %q, want full.jpg", gotAvatar)
	}

	if session == nil || createdSession == nil {
		t.Fatal("expected session to be created")
	}
	if session.UserID != "user-1" {
		t.Errorf("session userID = %q, want user-1", session.UserID)
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64", len(session.ID))
	}
	if d := time.Until(session.ExpiresAt); d < 59*time.Minute || d > time.Hour {
		t.Errorf("session expiry = %v, want ~1h", d)
	}
}

func TestHandleCallback_InvalidAssertion_ReturnsUnauthorized(t *testing.T) {
	idp := &mockIdentityProvider{
		verifyFn: func(ctx context.Context, params url.Values) (*model.ExternalProfile, error) {
			return nil, ErrInvalidAssertion
		},
	}
	upsertCalled := false
	userRepo := &mockUserRepo{
		upsertBySteamIDFn: func(ctx context.Context, steamID, username, avatarURL string) (*model.User, error) {
			upsertCalled = true
			return nil, nil
		},
	}

	svc := NewService(idp, userRepo, &mockSessionRepo{}, nil, nil, ServiceConfig{SessionMaxAge: 3600})

	_, err := svc.HandleCallback(context.Background(), url.Values{})
	if !model.IsKind(err, model.ErrCodeUnauthorized) {
		t.Errorf("error = %v, want UNAUTHORIZED", err)
	}
	if upsertCalled {
		t.Error("検証失敗時にユーザーが作成されてはならない")
	}
}

func TestHandleCallback_UpstreamFailure_KeepsKind(t *testing.T) {
	idp := &mockIdentityProvider{
		verifyFn: func(ctx context.Context, params url.Values) (*model.ExternalProfile, error) {
			return nil, model.NewUpstreamUnavailableError("Steam")
		},
	}
	svc := NewService(idp, &mockUserRepo{}, &mockSessionRepo{}, nil, nil, ServiceConfig{SessionMaxAge: 3600})

	_, err := svc.HandleCallback(context.Background(), url.Values{})
	if !model.IsKind(err, model.ErrCodeUpstreamUnavailable) {
		t.Errorf("error = %v, want UPSTREAM_UNAVAILABLE", err)
	}
}

func TestHandleCallback_SessionSaveError(t *testing.T) {
	idp := &mockIdentityProvider{
		verifyFn: func(ctx context.Context, params url.Values) (*model.ExternalProfile, error) {
			return &model.ExternalProfile{SubjectID: "76561198000000001"}, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			return errors.New("db down")
		},
	}
	svc := NewService(idp, &mockUserRepo{}, sessionRepo, nil, nil, ServiceConfig{SessionMaxAge: 3600})

	if _, err := svc.HandleCallback(context.Background(), url.Values{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestLogin_NoPhotos_EmptyAvatar(t *testing.T) {
	var gotAvatar = "unset"
	userRepo := &mockUserRepo{
		upsertBySteamIDFn: func(ctx context.Context, steamID, username, avatarURL string) (*model.User, error) {
			gotAvatar = avatarURL
			return &model.User{ID: "u", SteamID: steamID}, nil
		},
	}
	svc := NewService(nil, userRepo, nil, nil, nil, ServiceConfig{})

	if _, err := svc.Login(context.Background(), &model.ExternalProfile{SubjectID: "76561198000000001"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if gotAvatar != "" {
		t.Errorf("avatar = %q, want empty", gotAvatar)
	}
}

func TestLogin_EmptySubject_ValidationError(t *testing.T) {
	svc := NewService(nil, &mockUserRepo{}, nil, nil, nil, ServiceConfig{})

	_, err := svc.Login(context.Background(), &model.ExternalProfile{})
	if !model.IsKind(err, model.ErrCodeValidation) {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deleted string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := NewService(nil, nil, sessionRepo, nil, nil, ServiceConfig{})

	if err := svc.Logout(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deleted != "sess-1" {
		t.Errorf("deleted session = %q, want sess-1", deleted)
	}

	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Error("空のセッションIDでエラーにならない")
	}
}

func TestGetCurrentUser(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "valid" {
				return &model.Session{ID: id, UserID: "user-1"}, nil
			}
			return nil, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Username: "alice"}, nil
		},
	}
	svc := NewService(nil, userRepo, sessionRepo, nil, nil, ServiceConfig{})

	user, err := svc.GetCurrentUser(context.Background(), "valid")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user ID = %q, want user-1", user.ID)
	}

	for _, id := range []string{"", "expired"} {
		_, err := svc.GetCurrentUser(context.Background(), id)
		if !model.IsKind(err, model.ErrCodeUnauthorized) {
			t.Errorf("GetCurrentUser(%q) error = %v, want UNAUTHORIZED", id, err)
		}
	}
}

func TestGenerateSessionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := generateSessionID()
		if err != nil {
			t.Fatalf("generateSessionID() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate session ID: %s", id)
		}
		if strings.Trim(id, "0123456789abcdef") != "" {
			t.Fatalf("session ID is not hex: %s", id)
		}
		seen[id] = true
	}
}
