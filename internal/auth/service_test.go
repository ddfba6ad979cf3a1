package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeStore struct {
	users map[string]User // keyed by username

	otpEmail     string
	otpCode      string
	otpExpiresAt time.Time

	consumedEmail string
	consumedHash  string

	refreshTokens map[string]string // raw token -> username
	revoked       []string
}

func newAuthFakeStore() *fakeStore {
	return &fakeStore{
		users:         map[string]User{},
		refreshTokens: map[string]string{},
	}
}

func (f *fakeStore) addUser(user User) {
	f.users[user.Username] = user
}

func (f *fakeStore) GetByUsername(_ context.Context, username string) (User, error) {
	user, ok := f.users[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (User, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeStore) GetByEmail(_ context.Context, email string) (User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeStore) Create(_ context.Context, user User) error {
	if _, exists := f.users[user.Username]; exists {
		return ErrDuplicateUsername
	}
	f.users[user.Username] = user
	return nil
}

func (f *fakeStore) Update(_ context.Context, user User) (User, error) {
	f.users[user.Username] = user
	return user, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, status Status) error {
	for username, user := range f.users {
		if user.ID == id {
			user.Status = status
			f.users[username] = user
			return nil
		}
	}
	return ErrUserNotFound
}

func (f *fakeStore) List(_ context.Context) ([]User, error) {
	users := make([]User, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, user)
	}
	return users, nil
}

func (f *fakeStore) SetOTP(_ context.Context, email, code string, expiresAt time.Time) error {
	f.otpEmail = email
	f.otpCode = code
	f.otpExpiresAt = expiresAt
	return nil
}

func (f *fakeStore) ConsumeOTP(_ context.Context, email, code, newPasswordHash string) error {
	if email != f.otpEmail || code != f.otpCode || !time.Now().UTC().Before(f.otpExpiresAt) {
		return ErrInvalidOTP
	}
	f.consumedEmail = email
	f.consumedHash = newPasswordHash
	f.otpEmail, f.otpCode = "", ""
	return nil
}

func (f *fakeStore) CreateRefreshToken(_ context.Context, username, rawToken string, _ time.Time) error {
	f.refreshTokens[rawToken] = username
	return nil
}

func (f *fakeStore) RotateRefreshToken(_ context.Context, rawOldToken, rawNewToken string, _ time.Time) (string, error) {
	username, ok := f.refreshTokens[rawOldToken]
	if !ok {
		return "", ErrInvalidRefreshToken
	}
	delete(f.refreshTokens, rawOldToken)
	f.refreshTokens[rawNewToken] = username
	return username, nil
}

func (f *fakeStore) RevokeRefreshToken(_ context.Context, rawToken string) error {
	delete(f.refreshTokens, rawToken)
	f.revoked = append(f.revoked, rawToken)
	return nil
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestService(store Store) *Service {
	return NewService(store, "test-access-secret", "test-refresh-secret")
}

func TestLoginSuccess(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{
		ID:           "u1",
		Username:     "alice",
		PasswordHash: mustHash(t, "secret"),
		Role:         RoleCustomer,
		Email:        "alice@example.com",
		Status:       StatusActive,
	})
	service := newTestService(store)

	tokens, user, err := service.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "alice", user.Username)
	assert.Len(t, store.refreshTokens, 1, "refresh token must be recorded for revocation")
}

func TestLoginUnknownUser(t *testing.T) {
	service := newTestService(newAuthFakeStore())

	_, _, err := service.Login(context.Background(), "nobody", "secret")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLoginInactiveBeforePassword(t *testing.T) {
	store := newAuthFakeStore()
	// The hash is garbage: if the password were compared before the status
	// check, this would surface as invalid credentials instead.
	store.addUser(User{
		ID:           "u1",
		Username:     "bob",
		PasswordHash: "not-a-bcrypt-hash",
		Status:       StatusInactive,
	})
	service := newTestService(store)

	_, _, err := service.Login(context.Background(), "bob", "whatever")
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestLoginWrongPassword(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{
		ID:           "u1",
		Username:     "alice",
		PasswordHash: mustHash(t, "secret"),
		Status:       StatusActive,
	})
	service := newTestService(store)

	_, _, err := service.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDefaults(t *testing.T) {
	store := newAuthFakeStore()
	service := newTestService(store)

	user, err := service.Register(context.Background(), RegisterInput{
		Username: "carol",
		Password: "secret",
		Email:    "Carol@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, user.Role)
	assert.Equal(t, StatusActive, user.Status)
	assert.Equal(t, "carol@example.com", user.Email)
	assert.NotEmpty(t, user.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret")))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{ID: "u1", Username: "carol"})
	service := newTestService(store)

	_, err := service.Register(context.Background(), RegisterInput{Username: "carol", Password: "secret"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestRegisterInvalidRole(t *testing.T) {
	service := newTestService(newAuthFakeStore())

	_, err := service.Register(context.Background(), RegisterInput{Username: "dave", Password: "x", Role: "superuser"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestUpdateUserRejectsWrongOldPassword(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{ID: "u1", Username: "alice", PasswordHash: mustHash(t, "secret")})
	service := newTestService(store)

	_, err := service.UpdateUser(context.Background(), "u1", UpdateInput{
		OldPassword: "wrong",
		NewPassword: "fresh",
	})
	assert.ErrorIs(t, err, ErrInvalidOldPassword)
}

func TestUpdateUserChangesPassword(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{ID: "u1", Username: "alice", PasswordHash: mustHash(t, "secret")})
	service := newTestService(store)

	updated, err := service.UpdateUser(context.Background(), "u1", UpdateInput{
		OldPassword: "secret",
		NewPassword: "fresh",
	})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte("fresh")))
}

func TestToggleStatusRequiresEmail(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{ID: "u1", Username: "alice", Status: StatusActive})
	service := newTestService(store)

	_, _, err := service.ToggleStatus(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrMissingEmail)
}

func TestToggleStatusFlips(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{ID: "u1", Username: "alice", Email: "alice@example.com", Status: StatusActive})
	service := newTestService(store)

	_, status, err := service.ToggleStatus(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, status)
	assert.Equal(t, StatusInactive, store.users["alice"].Status)

	_, status, err = service.ToggleStatus(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)
}

func TestSendOTPIssuesSixDigits(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{ID: "u1", Username: "alice", Email: "alice@example.com", Status: StatusActive})
	service := newTestService(store)

	user, code, err := service.SendOTP(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Regexp(t, `^\d{6}$`, code)
	assert.Equal(t, "alice@example.com", store.otpEmail)
	assert.WithinDuration(t, time.Now().UTC().Add(5*time.Minute), store.otpExpiresAt, 5*time.Second)
}

func TestSendOTPUnknownEmail(t *testing.T) {
	service := newTestService(newAuthFakeStore())

	_, _, err := service.SendOTP(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestResetPasswordWithOTP(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{ID: "u1", Username: "alice", Email: "alice@example.com", Status: StatusActive})
	service := newTestService(store)

	_, code, err := service.SendOTP(context.Background(), "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, service.ResetPasswordWithOTP(context.Background(), "alice@example.com", code, "newpass"))
	assert.Equal(t, "alice@example.com", store.consumedEmail)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.consumedHash), []byte("newpass")))

	// Consumption is single-use.
	err = service.ResetPasswordWithOTP(context.Background(), "alice@example.com", code, "another")
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestResetPasswordWithWrongOTP(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{ID: "u1", Username: "alice", Email: "alice@example.com", Status: StatusActive})
	service := newTestService(store)

	_, _, err := service.SendOTP(context.Background(), "alice@example.com")
	require.NoError(t, err)

	err = service.ResetPasswordWithOTP(context.Background(), "alice@example.com", "000000", "newpass")
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestResetPasswordWithExpiredOTP(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{ID: "u1", Username: "alice", Email: "alice@example.com", Status: StatusActive})
	service := newTestService(store)
	service.WithTokenConfig(0, 0, time.Nanosecond)

	_, code, err := service.SendOTP(context.Background(), "alice@example.com")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	err = service.ResetPasswordWithOTP(context.Background(), "alice@example.com", code, "newpass")
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestRefreshRotatesToken(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{
		ID:           "u1",
		Username:     "alice",
		PasswordHash: mustHash(t, "secret"),
		Status:       StatusActive,
	})
	service := newTestService(store)

	tokens, _, err := service.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)

	rotated, err := service.Refresh(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// The old token was consumed by the rotation.
	_, err = service.Refresh(context.Background(), tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	service := newTestService(newAuthFakeStore())

	_, err := service.Refresh(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{
		ID:           "u1",
		Username:     "alice",
		PasswordHash: mustHash(t, "secret"),
		Status:       StatusActive,
	})
	service := newTestService(store)

	tokens, _, err := service.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)

	_, err = service.Refresh(context.Background(), tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshInactiveUser(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{
		ID:           "u1",
		Username:     "alice",
		PasswordHash: mustHash(t, "secret"),
		Status:       StatusActive,
	})
	service := newTestService(store)

	tokens, _, err := service.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(context.Background(), "u1", StatusInactive))

	_, err = service.Refresh(context.Background(), tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestLogoutRevokes(t *testing.T) {
	store := newAuthFakeStore()
	store.addUser(User{
		ID:           "u1",
		Username:     "alice",
		PasswordHash: mustHash(t, "secret"),
		Status:       StatusActive,
	})
	service := newTestService(store)

	tokens, _, err := service.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)

	require.NoError(t, service.Logout(context.Background(), tokens.RefreshToken))
	assert.Contains(t, store.revoked, tokens.RefreshToken)

	_, err = service.Refresh(context.Background(), tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}
