package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/kodbank/kodbank/internal/events"
	"github.com/kodbank/kodbank/internal/hash"
	"github.com/kodbank/kodbank/internal/logging"
	"github.com/kodbank/kodbank/internal/models"
	"github.com/kodbank/kodbank/internal/repo"
	"github.com/kodbank/kodbank/internal/tokens"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrMissingFields      = fmt.Errorf("%w: all fields are required", ErrValidation)
	ErrInvalidEmail       = fmt.Errorf("%w: invalid email format", ErrValidation)
	ErrInvalidCredentials = errors.New("invalid username or password")
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type AuthService struct {
	Repo     *repo.GormRepo
	Hasher   *hash.Hasher
	Issuer   *tokens.Issuer
	Producer *events.Producer
}

type RegisterInput struct {
	UID      uint
	Username string
	Password string
	Email    string
	Phone    string
	Role     string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Username  string
	Role      string
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) error {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if in.UID == 0 || in.Username == "" || in.Password == "" || in.Email == "" || in.Phone == "" {
		return ErrMissingFields
	}
	if !emailRe.MatchString(in.Email) {
		return ErrInvalidEmail
	}

	pwHash, err := s.Hasher.Hash(ctx, in.Password)
	if err != nil {
		l.Error("register_failed", "reason", "cannot hash the password", "error", err)
		return err
	}

	role := in.Role
	if role == "" {
		role = models.RoleCustomer
	}
	user := models.User{
		UID:          in.UID,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: pwHash,
		Phone:        in.Phone,
		Role:         role,
		Balance:      models.DefaultBalance,
	}

	if err := s.Repo.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrDuplicateUser) {
			l.Warn("register_failed", "status", 409, "username", in.Username)
			return err
		}
		l.Error("register_failed", "error", err)
		return err
	}

	s.publish(ctx, fmt.Sprint(user.UID), map[string]interface{}{
		"type":     events.TypeUserRegistered,
		"uid":      user.UID,
		"username": user.Username,
	})

	l.Info("register_successful", "username", user.Username)
	return nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	if username == "" || password == "" {
		return nil, ErrMissingFields
	}

	user, err := s.Repo.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			l.Warn("login_failed", "reason", "unknown username")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "error", err)
		return nil, err
	}

	if !s.Hasher.Check(ctx, user.PasswordHash, password) {
		l.Warn("login_failed", "reason", "password mismatch")
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.Issuer.Issue(user.Username, user.Role)
	if err != nil {
		l.Error("login_failed", "reason", "cannot sign token", "error", err)
		return nil, err
	}

	if _, err := s.Repo.CreateSession(ctx, user.UID, token, exp); err != nil {
		l.Error("login_failed", "reason", "cannot persist session", "error", err)
		return nil, err
	}

	s.publish(ctx, fmt.Sprint(user.UID), map[string]interface{}{
		"type":     events.TypeUserLoggedIn,
		"uid":      user.UID,
		"username": user.Username,
	})

	l.Info("login_successful", "role", user.Role)
	return &LoginResult{
		Token:     token,
		ExpiresAt: exp,
		Username:  user.Username,
		Role:      user.Role,
	}, nil
}

// LogOut revokes the session holding token. A token with no session row is
// a no-op, not an error.
func (s *AuthService) LogOut(ctx context.Context, token string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if token == "" {
		return nil
	}

	session, err := s.Repo.FindSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrSessionNotFound) {
			return nil
		}
		l.Error("logout_failed", "error", err)
		return err
	}

	if err := s.Repo.DeleteSessionByToken(ctx, token); err != nil {
		l.Error("logout_failed", "error", err)
		return err
	}

	s.publish(ctx, fmt.Sprint(session.UserUID), map[string]interface{}{
		"type": events.TypeUserLoggedOut,
		"uid":  session.UserUID,
	})

	l.Info("logout_successful", "uid", session.UserUID)
	return nil
}

func (s *AuthService) Balance(ctx context.Context, username string) (float64, error) {
	user, err := s.Repo.FindUserByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}

func (s *AuthService) UserInfo(ctx context.Context, username string) (*models.User, error) {
	return s.Repo.FindUserByUsername(ctx, username)
}

func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.Repo.ListUsers(ctx)
}

func (s *AuthService) publish(ctx context.Context, key string, event map[string]interface{}) {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Producer.PublishEvent(pubCtx, key, event); err != nil {
		logging.FromContext(ctx).Error("kafka publish error", "error", err)
	}
}
