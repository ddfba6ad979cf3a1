package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicateUsername   = errors.New("username already exists")
	ErrAccountInactive     = errors.New("account is inactive")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidOldPassword  = errors.New("old password is incorrect")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrMissingEmail        = errors.New("user email is not defined")
	ErrInvalidOTP          = errors.New("invalid or expired otp")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultOTPTTL     = 5 * time.Minute
)

// Store is the persistence surface the service needs; *Repository is the
// production implementation.
type Store interface {
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, user User) error
	Update(ctx context.Context, user User) (User, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	List(ctx context.Context) ([]User, error)
	SetOTP(ctx context.Context, email, code string, expiresAt time.Time) error
	ConsumeOTP(ctx context.Context, email, code, newPasswordHash string) error
	CreateRefreshToken(ctx context.Context, username, rawToken string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, rawOldToken, rawNewToken string, newExpiresAt time.Time) (string, error)
	RevokeRefreshToken(ctx context.Context, rawToken string) error
}

type Service struct {
	store         Store
	jwtSecret     []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	otpTTL        time.Duration
}

func NewService(store Store, jwtSecret, refreshSecret string) *Service {
	return &Service{
		store:         store,
		jwtSecret:     []byte(jwtSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		otpTTL:        defaultOTPTTL,
	}
}

func (s *Service) WithTokenConfig(accessTTL, refreshTTL, otpTTL time.Duration) {
	if accessTTL > 0 {
		s.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
	if otpTTL > 0 {
		s.otpTTL = otpTTL
	}
}

// Login checks existence, then status, then the password. Inactive accounts
// are rejected before the password is ever compared.
func (s *Service) Login(ctx context.Context, username, password string) (Tokens, User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return Tokens{}, User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return Tokens{}, User{}, err
	}

	if user.Status == StatusInactive {
		return Tokens{}, User{}, ErrAccountInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Tokens{}, User{}, ErrInvalidCredentials
	}

	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		return Tokens{}, User{}, err
	}

	return tokens, user, nil
}

type RegisterInput struct {
	Username string
	Password string
	Role     string
	Email    string
	Image    string
	Status   string
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))

	role := RoleCustomer
	if input.Role != "" {
		parsed, err := ParseRole(input.Role)
		if err != nil {
			return User{}, ErrInvalidRole
		}
		role = parsed
	}

	status := StatusActive
	if input.Status != "" {
		parsed, err := ParseStatus(input.Status)
		if err != nil {
			return User{}, ErrInvalidStatus
		}
		status = parsed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	user := User{
		ID:           id.String(),
		Username:     input.Username,
		PasswordHash: string(hash),
		Role:         role,
		Email:        input.Email,
		Image:        strings.TrimSpace(input.Image),
		Status:       status,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

type UpdateInput struct {
	Email       string
	Username    string
	Role        string
	Image       string
	OldPassword string
	NewPassword string
	Status      string
}

func (s *Service) UpdateUser(ctx context.Context, id string, input UpdateInput) (User, error) {
	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	if input.OldPassword != "" && input.NewPassword != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.OldPassword)); err != nil {
			return User{}, ErrInvalidOldPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return User{}, fmt.Errorf("hash new password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	if input.Email != "" {
		user.Email = strings.TrimSpace(strings.ToLower(input.Email))
	}
	if input.Username != "" {
		user.Username = strings.TrimSpace(input.Username)
	}
	if input.Role != "" {
		role, err := ParseRole(input.Role)
		if err != nil {
			return User{}, ErrInvalidRole
		}
		user.Role = role
	}
	if input.Image != "" {
		user.Image = strings.TrimSpace(input.Image)
	}
	if input.Status != "" {
		status, err := ParseStatus(input.Status)
		if err != nil {
			return User{}, ErrInvalidStatus
		}
		user.Status = status
	}

	return s.store.Update(ctx, user)
}

// ToggleStatus flips active and inactive, returning the user as loaded and
// the status that was persisted.
func (s *Service) ToggleStatus(ctx context.Context, id string) (User, Status, error) {
	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return User{}, "", err
	}
	if user.Email == "" {
		return User{}, "", ErrMissingEmail
	}

	newStatus := user.Status.Toggled()
	if err := s.store.UpdateStatus(ctx, id, newStatus); err != nil {
		return User{}, "", err
	}

	return user, newStatus, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]PublicUser, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	public := make([]PublicUser, 0, len(users))
	for _, user := range users {
		public = append(public, user.Public())
	}

	return public, nil
}

// SendOTP issues a fresh 6-digit code with an absolute expiry, superseding
// any code issued earlier. The caller is responsible for delivering it.
func (s *Service) SendOTP(ctx context.Context, email string) (User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return User{}, "", err
	}

	code, err := generateOTP()
	if err != nil {
		return User{}, "", fmt.Errorf("generate otp: %w", err)
	}

	expiresAt := time.Now().UTC().Add(s.otpTTL)
	if err := s.store.SetOTP(ctx, email, code, expiresAt); err != nil {
		return User{}, "", err
	}

	return user, code, nil
}

func (s *Service) ResetPasswordWithOTP(ctx context.Context, email, code, newPassword string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	code = strings.TrimSpace(code)
	if email == "" || code == "" || newPassword == "" {
		return ErrInvalidOTP
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	return s.store.ConsumeOTP(ctx, email, code, string(hash))
}

// Refresh rotates the presented refresh token and issues a new session for
// its owner.
func (s *Service) Refresh(ctx context.Context, rawToken string) (Tokens, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Tokens{}, ErrInvalidRefreshToken
	}

	user, err := s.userForRefresh(ctx, rawToken)
	if err != nil {
		return Tokens{}, err
	}

	newRefresh, err := s.signRefreshToken(user.Username)
	if err != nil {
		return Tokens{}, err
	}

	username, err := s.store.RotateRefreshToken(ctx, rawToken, newRefresh, time.Now().UTC().Add(s.refreshTTL))
	if err != nil {
		return Tokens{}, err
	}
	if username != user.Username {
		return Tokens{}, ErrInvalidRefreshToken
	}

	access, err := s.signAccessToken(user)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{AccessToken: access, RefreshToken: newRefresh}, nil
}

func (s *Service) userForRefresh(ctx context.Context, rawToken string) (User, error) {
	claims, err := s.parseRefreshClaims(rawToken)
	if err != nil {
		return User{}, ErrInvalidRefreshToken
	}

	username, _ := claims["username"].(string)
	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidRefreshToken
		}
		return User{}, err
	}
	if user.Status == StatusInactive {
		return User{}, ErrAccountInactive
	}

	return user, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return ErrInvalidRefreshToken
	}

	return s.store.RevokeRefreshToken(ctx, rawToken)
}

// issueSession signs the access and refresh pair and records the refresh
// token for revocation checking.
func (s *Service) issueSession(ctx context.Context, user User) (Tokens, error) {
	access, err := s.signAccessToken(user)
	if err != nil {
		return Tokens{}, err
	}

	refresh, err := s.signRefreshToken(user.Username)
	if err != nil {
		return Tokens{}, err
	}

	if err := s.store.CreateRefreshToken(ctx, user.Username, refresh, time.Now().UTC().Add(s.refreshTTL)); err != nil {
		return Tokens{}, err
	}

	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) signAccessToken(user User) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"id":       user.ID,
		"username": user.Username,
		"role":     string(user.Role),
		"email":    user.Email,
		"image":    user.Image,
		"iat":      now.Unix(),
		"exp":      now.Add(s.accessTTL).Unix(),
		"typ":      "access",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return encoded, nil
}

func (s *Service) signRefreshToken(username string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.refreshTTL).Unix(),
		"typ":      "refresh",
		"jti":      uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}

	return encoded, nil
}

func (s *Service) parseRefreshClaims(rawToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		return s.refreshSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidRefreshToken
	}
	if tokenType, _ := claims["typ"].(string); tokenType != "refresh" {
		return nil, ErrInvalidRefreshToken
	}

	return claims, nil
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
