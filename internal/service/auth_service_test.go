package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-market-backend/internal/repository"
)

// stubAuthRepo хранит пользователей и сессии в памяти.
type stubAuthRepo struct {
	usersByEmail map[string]*models.User
	usersByID    map[uuid.UUID]*models.User
	sessions     map[string]*models.Session
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[uuid.UUID]*models.User),
		sessions:     make(map[string]*models.Session),
	}
}

func (s *stubAuthRepo) Create(ctx context.Context, user *models.User) error {
	if _, ok := s.usersByEmail[user.Email]; ok {
		return repository.ErrUserExists
	}
	user.ID = uuid.New()
	user.IsActive = true
	s.usersByEmail[user.Email] = user
	s.usersByID[user.ID] = user
	return nil
}

func (s *stubAuthRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := s.usersByEmail[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (s *stubAuthRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := s.usersByID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (s *stubAuthRepo) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if user, ok := s.usersByID[userID]; ok {
		now := time.Now()
		user.LastLoginAt = &now
	}
	return nil
}

func (s *stubAuthRepo) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New()
	s.sessions[session.RefreshToken] = session
	return nil
}

func (s *stubAuthRepo) GetSessionByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	session, ok := s.sessions[refreshToken]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return session, nil
}

func (s *stubAuthRepo) DeleteSession(ctx context.Context, refreshToken string) error {
	if _, ok := s.sessions[refreshToken]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(s.sessions, refreshToken)
	return nil
}

// stubReferrals записывает применённые коды.
type stubReferrals struct {
	applied []string
	err     error
}

func (s *stubReferrals) ApplyReferral(ctx context.Context, code string, applyingUserID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.applied = append(s.applied, code)
	return nil
}

func testTokenManager() *TokenManager {
	return NewTokenManager("test-access-secret", "test-refresh-secret", 15*time.Minute, 7*24*time.Hour)
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, testTokenManager(), nil)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{
		Email:    "Ivan.Petrov@Example.Com",
		Password: "Passw0rd123",
	}, map[string]string{"user_agent": "go-test", "ip": "127.0.0.1"})
	if err != nil {
		t.Fatalf("регистрация не должна падать: %v", err)
	}
	if result.User.Email != "ivan.petrov@example.com" {
		t.Fatalf("email должен приводиться к нижнему регистру, получен %q", result.User.Email)
	}
	if result.User.Username != "ivan_petrov" {
		t.Fatalf("username должен выводиться из email, получен %q", result.User.Username)
	}
	if result.User.Role != models.RoleUser {
		t.Fatalf("новый пользователь должен получать роль user, получена %q", result.User.Role)
	}
	if result.TokenPair.AccessToken == "" || result.TokenPair.RefreshToken == "" {
		t.Fatal("регистрация должна возвращать пару токенов")
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("ожидалась одна сессия, найдено %d", len(repo.sessions))
	}

	login, err := svc.Login(ctx, LoginInput{
		Email:    "ivan.petrov@example.com",
		Password: "Passw0rd123",
	}, nil)
	if err != nil {
		t.Fatalf("вход с верным паролем не должен падать: %v", err)
	}
	if login.User.ID != result.User.ID {
		t.Fatal("вход должен возвращать того же пользователя")
	}
	if login.User.LastLoginAt == nil {
		t.Fatal("после входа должен обновляться last_login_at")
	}
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, testTokenManager(), nil)
	ctx := context.Background()

	input := RegisterInput{Email: "dup@example.com", Password: "Passw0rd123"}
	if _, err := svc.Register(ctx, input, nil); err != nil {
		t.Fatalf("первая регистрация не должна падать: %v", err)
	}

	_, err := svc.Register(ctx, input, nil)
	if !apperror.IsConflict(err) {
		t.Fatalf("повторная регистрация должна возвращать конфликт, получено %v", err)
	}
}

func TestAuthService_Register_InvalidInput(t *testing.T) {
	svc := NewAuthService(newStubAuthRepo(), testTokenManager(), nil)
	ctx := context.Background()

	cases := []RegisterInput{
		{Email: "not-an-email", Password: "Passw0rd123"},
		{Email: "user@example.com", Password: "short"},
		{Email: "user@example.com", Password: "nouppercase1"},
		{Email: "user@example.com", Password: "NoDigitsHere"},
	}
	for _, in := range cases {
		if _, err := svc.Register(ctx, in, nil); !apperror.IsValidation(err) {
			t.Fatalf("ожидалась ошибка валидации для %q/%q, получено %v", in.Email, in.Password, err)
		}
	}
}

func TestAuthService_Register_ReferralApplied(t *testing.T) {
	referrals := &stubReferrals{}
	svc := NewAuthService(newStubAuthRepo(), testTokenManager(), referrals)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{
		Email:        "invited@example.com",
		Password:     "Passw0rd123",
		ReferralCode: "FRIEND42",
	}, nil)
	if err != nil {
		t.Fatalf("регистрация с кодом не должна падать: %v", err)
	}
	if len(referrals.applied) != 1 || referrals.applied[0] != "FRIEND42" {
		t.Fatalf("реферальный код должен применяться, применены %v", referrals.applied)
	}
}

func TestAuthService_Register_ReferralFailureIgnored(t *testing.T) {
	referrals := &stubReferrals{err: apperror.New(apperror.ErrCodeNotFound, "реферальный код не найден")}
	svc := NewAuthService(newStubAuthRepo(), testTokenManager(), referrals)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{
		Email:        "invited2@example.com",
		Password:     "Passw0rd123",
		ReferralCode: "NOSUCH99",
	}, nil)
	if err != nil {
		t.Fatalf("сбой применения кода не должен отменять регистрацию: %v", err)
	}
	if result.User.ID == uuid.Nil {
		t.Fatal("пользователь должен быть создан")
	}
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, testTokenManager(), nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "user@example.com", Password: "Passw0rd123"}, nil); err != nil {
		t.Fatalf("регистрация не должна падать: %v", err)
	}

	_, err := svc.Login(ctx, LoginInput{Email: "user@example.com", Password: "WrongPass1"}, nil)
	if err == nil {
		t.Fatal("вход с неверным паролем должен падать")
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperror.ErrCodeUnauthorized {
		t.Fatalf("ожидался код UNAUTHORIZED, получено %v", err)
	}
}

func TestAuthService_Login_InactiveAccount(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, testTokenManager(), nil)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{Email: "blocked@example.com", Password: "Passw0rd123"}, nil)
	if err != nil {
		t.Fatalf("регистрация не должна падать: %v", err)
	}
	result.User.IsActive = false

	_, err = svc.Login(ctx, LoginInput{Email: "blocked@example.com", Password: "Passw0rd123"}, nil)
	if !apperror.IsForbidden(err) {
		t.Fatalf("вход в заблокированный аккаунт должен быть запрещён, получено %v", err)
	}
}

func TestAuthService_RefreshRotation(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, testTokenManager(), nil)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{Email: "rotate@example.com", Password: "Passw0rd123"}, nil)
	if err != nil {
		t.Fatalf("регистрация не должна падать: %v", err)
	}
	oldRefresh := result.TokenPair.RefreshToken

	pair, err := svc.Refresh(ctx, oldRefresh, nil)
	if err != nil {
		t.Fatalf("обновление токенов не должно падать: %v", err)
	}
	if pair.RefreshToken == oldRefresh {
		t.Fatal("refresh токен должен ротироваться")
	}
	if _, ok := repo.sessions[oldRefresh]; ok {
		t.Fatal("старая сессия должна удаляться при ротации")
	}
	if _, ok := repo.sessions[pair.RefreshToken]; !ok {
		t.Fatal("новая сессия должна сохраняться")
	}

	// Повторное использование старого токена отклоняется.
	if _, err := svc.Refresh(ctx, oldRefresh, nil); err == nil {
		t.Fatal("повторное использование старого refresh токена должно падать")
	}
}

func TestAuthService_Logout_UnknownToken(t *testing.T) {
	svc := NewAuthService(newStubAuthRepo(), testTokenManager(), nil)

	if err := svc.Logout(context.Background(), "нет-такой-сессии"); err != nil {
		t.Fatalf("logout по неизвестному токену должен быть идемпотентным: %v", err)
	}
}

func TestTokenManager_AccessRoundTrip(t *testing.T) {
	manager := testTokenManager()
	user := &models.User{ID: uuid.New(), Role: models.RoleAdmin}

	pair, _, err := manager.GeneratePair(user)
	if err != nil {
		t.Fatalf("выпуск токенов не должен падать: %v", err)
	}

	userID, role, err := manager.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("разбор access токена не должен падать: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("ожидался userID %s, получен %s", user.ID, userID)
	}
	if role != models.RoleAdmin {
		t.Fatalf("ожидалась роль admin, получена %q", role)
	}

	// Access токен не должен проходить как refresh.
	if _, err := manager.ParseRefresh(pair.AccessToken); err == nil {
		t.Fatal("access токен не должен приниматься как refresh")
	}
}

func TestDeriveUsername(t *testing.T) {
	cases := map[string]string{
		"ivan.petrov@example.com": "ivan_petrov",
		"Anna+shop@example.com":   "anna_shop",
	}
	for email, want := range cases {
		if got := deriveUsername(email); got != want {
			t.Fatalf("deriveUsername(%q) = %q, ожидалось %q", email, got, want)
		}
	}

	short := deriveUsername("ab@example.com")
	if len(short) < 3 {
		t.Fatalf("короткий username должен дополняться, получен %q", short)
	}
}
