package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pvolkhin/chatgram-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when phone/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when registering an already-used phone number.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidPhone is returned when the phone number doesn't meet constraints.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrInvalidName is returned when the display name doesn't meet constraints.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidPassword is returned when the password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and returns a JWT token
// with the created user.
func (s *Service) Register(ctx context.Context, phoneNumber, name, email, password string) (string, *store.User, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	name = strings.TrimSpace(name)
	if len(phoneNumber) < 5 || len(phoneNumber) > 20 {
		return "", nil, ErrInvalidPhone
	}
	if name == "" || len(name) > 64 {
		return "", nil, ErrInvalidName
	}
	if len(password) < 6 {
		return "", nil, ErrInvalidPassword
	}

	// Check if the phone number is already taken
	existing, err := s.store.GetUserByPhone(ctx, phoneNumber)
	if err == nil && existing != nil {
		return "", nil, ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, phoneNumber, name, email, hashedPassword, avatarFor(name))
	if err != nil {
		return "", nil, fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Name)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// Login validates credentials and returns a JWT token with the user.
func (s *Service) Login(ctx context.Context, phoneNumber, password string) (string, *store.User, error) {
	user, err := s.store.GetUserByPhone(ctx, phoneNumber)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Name)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// avatarFor derives the default two-letter avatar from a display name.
func avatarFor(name string) string {
	runes := []rune(strings.ToUpper(name))
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return string(runes)
}
