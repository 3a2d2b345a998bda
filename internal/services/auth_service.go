package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"secondchance/internal/models"
	"secondchance/internal/repositories"
	"secondchance/pkg/security"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

// LoginInput is the body of a login request.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileInput identifies the caller and carries the new profile values.
// UserID comes from the verified token, Email from the request header.
type UpdateProfileInput struct {
	UserID    string `json:"-"`
	Email     string `json:"-"`
	FirstName string `json:"firstName" validate:"required"`
}

// AuthResult is returned by Register.
type AuthResult struct {
	Token string
	Email string
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token     string
	UserName  string
	UserEmail string
}

var authMessages = map[string]string{
	"email":     "Enter a valid email",
	"password":  "Password must be at least 6 characters long",
	"firstName": "First name is required",
	"lastName":  "Last name is required",
}

var loginMessages = map[string]string{
	"email":    "Email is required",
	"password": "Password is required",
}

// AuthService handles business logic for authentication and user profiles.
type AuthService struct {
	userRepo repositories.UserRepository
	tokens   *security.TokenManager
	hasher   *security.PasswordHasher
	validate *validator.Validate
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, tokens *security.TokenManager, hasher *security.PasswordHasher, log logrus.FieldLogger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		hasher:   hasher,
		validate: newValidator(),
		log:      log,
		now:      time.Now,
	}
}

// Register creates an account and returns a token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validateStruct(s.validate, in, authMessages); err != nil {
		return nil, err
	}

	// Pre-check for a friendlier error; the unique index still catches races.
	if _, err := s.userRepo.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	s.log.WithField("email", user.Email).Info("user registered successfully")
	return &AuthResult{Token: token, Email: user.Email}, nil
}

// Login checks the credentials and returns a token with the user's display data.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := validateStruct(s.validate, in, loginMessages); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !s.hasher.Compare(user.PasswordHash, in.Password) {
		s.log.WithField("email", user.Email).Warn("password mismatch")
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	s.log.WithField("email", user.Email).Info("user logged in successfully")
	return &LoginResult{Token: token, UserName: user.FirstName, UserEmail: user.Email}, nil
}

// UpdateProfile sets the caller's first name and returns a fresh token.
// The email header must name the same account as the token.
func (s *AuthService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (string, error) {
	if strings.TrimSpace(in.Email) == "" {
		return "", ErrEmailRequired
	}
	if err := validateStruct(s.validate, in, authMessages); err != nil {
		return "", err
	}

	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	if user.Email != strings.TrimSpace(in.Email) {
		return "", ErrForbidden
	}

	user.FirstName = in.FirstName
	user.CreatedAt = s.now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to update user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", err
	}

	s.log.WithField("email", user.Email).Info("user updated successfully")
	return token, nil
}

// ValidateToken verifies a session token and returns its claims.
func (s *AuthService) ValidateToken(token string) (*security.Claims, error) {
	return s.tokens.Verify(token)
}
