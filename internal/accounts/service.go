// Package accounts handles registration, email activation and login sessions.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/roomledger/backend/internal/apperr"
	"github.com/roomledger/backend/internal/mailer"
	"github.com/roomledger/backend/internal/models"
	"github.com/roomledger/backend/pkg/idx"
	"github.com/roomledger/backend/pkg/utils"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

const maxUsernameLength = 150

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInactive is returned when logging in before activation.
	ErrInactive = errors.New("account is not activated, check your email")
)

// Store persists users.
type Store interface {
	GetUserByID(ctx context.Context, id idx.ID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// CreateUser inserts u and commits only if then returns nil.
	CreateUser(ctx context.Context, u *models.User, then func(*models.User) error) error
	ActivateUser(ctx context.Context, id idx.ID) (bool, error)
	TouchLastLogin(ctx context.Context, id idx.ID, at time.Time) error
	// DeletePendingUser removes a user that has not been activated yet.
	DeletePendingUser(ctx context.Context, id idx.ID) error
	SetStaff(ctx context.Context, username string, staff bool) error
}

// Dispatcher sends an email and records the attempt. A queued dispatcher
// only enqueues, and the worker delivers later.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID *idx.ID, emailType string, msg mailer.Message) error
	Queued() bool
}

// Options configure registration.
type Options struct {
	// BaseURL prefixes activation links, e.g. https://rooms.example.com.
	BaseURL string
	// FailSilently logs mail failures instead of failing registration.
	FailSilently bool
}

// Service implements the account operations.
type Service struct {
	store    Store
	mail     Dispatcher
	tokens   *ActivationTokens
	sessions *Sessions
	opts     Options
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates an accounts service.
func NewService(store Store, mail Dispatcher, tokens *ActivationTokens, sessions *Sessions, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Service{
		store:    store,
		mail:     mail,
		tokens:   tokens,
		sessions: sessions,
		opts:     opts,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterInput is a registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates an inactive user and sends the activation email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validateRegistration(in); err != nil {
		return nil, err
	}

	taken, err := s.store.UsernameExists(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict("username is already taken")
	}
	taken, err = s.store.EmailExists(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict("email is already registered")
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		ID:           idx.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
	}
	if err := s.createAndNotify(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID.String()), zap.String("username", user.Username))
	return user, nil
}

func (s *Service) validateRegistration(in RegisterInput) error {
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return apperr.Validation("username, email and password are required")
	}
	if utf8.RuneCountInString(in.Username) > maxUsernameLength {
		return apperr.Validation("username must be at most %d characters", maxUsernameLength)
	}
	if err := s.validate.Var(in.Email, "email"); err != nil {
		return apperr.Validation("enter a valid email address")
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return apperr.Validation("password must be at least %d characters", MinPasswordLength)
	}
	if len(in.Password) > utils.MaxPasswordBytes {
		return apperr.Validation("password must be at most %d bytes", utils.MaxPasswordBytes)
	}
	return nil
}

// createAndNotify inserts the user and sends the activation email. Inline
// delivery runs inside the insert transaction. A queued message is enqueued
// only after the commit, so the worker never mails a user that does not
// exist; if the enqueue fails the pending user is deleted again.
func (s *Service) createAndNotify(ctx context.Context, user *models.User) error {
	if !s.mail.Queued() {
		return s.store.CreateUser(ctx, user, s.sendActivation(ctx))
	}
	if err := s.store.CreateUser(ctx, user, nil); err != nil {
		return err
	}
	if err := s.sendActivation(ctx)(user); err != nil {
		if derr := s.store.DeletePendingUser(ctx, user.ID); derr != nil {
			s.logger.Error("remove user after failed enqueue", zap.String("user_id", user.ID.String()), zap.Error(derr))
		}
		return err
	}
	return nil
}

// sendActivation returns the callback that mails the activation link.
func (s *Service) sendActivation(ctx context.Context) func(*models.User) error {
	return func(u *models.User) error {
		msg, err := s.activationMessage(u)
		if err == nil {
			uid := u.ID
			err = s.mail.Dispatch(ctx, &uid, models.EmailTypeAccountActivation, msg)
		}
		if err == nil {
			return nil
		}
		if s.opts.FailSilently {
			s.logger.Warn("activation email not sent", zap.String("user_id", u.ID.String()), zap.Error(err))
			return nil
		}
		return fmt.Errorf("send activation email: %w", err)
	}
}

// ActivationLink returns the absolute activation URL for u.
func (s *Service) ActivationLink(u *models.User) (string, error) {
	token, err := s.tokens.Make(u)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/activate/%s/%s/", s.opts.BaseURL, EncodeUID(u.ID), token), nil
}

func (s *Service) activationMessage(u *models.User) (mailer.Message, error) {
	link, err := s.ActivationLink(u)
	if err != nil {
		return mailer.Message{}, err
	}
	return mailer.RenderActivation(u.Email, mailer.ActivationData{
		Username: u.Username,
		Link:     link,
		TTLHours: s.tokens.TTLHours(),
	})
}

// Activate activates the account named by uid if token is valid, and logs
// the user in. Every failure is an activation error and changes nothing.
func (s *Service) Activate(ctx context.Context, uid, token string) (string, *models.User, error) {
	failed := apperr.Activation("activation link is invalid or has expired")

	id, err := DecodeUID(uid)
	if err != nil {
		return "", nil, failed
	}
	user, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil, failed
	}
	if err != nil {
		return "", nil, err
	}
	if err := s.tokens.Check(user, token); err != nil {
		s.logger.Warn("activation token rejected", zap.String("user_id", id.String()))
		return "", nil, failed
	}
	ok, err := s.store.ActivateUser(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, failed
	}
	user.IsActive = true
	s.logger.Info("user activated", zap.String("user_id", id.String()))

	session, err := s.startSession(ctx, user)
	if err != nil {
		return "", nil, err
	}
	return session, user, nil
}

// Login checks credentials and starts a session.
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if !utils.CheckPassword(password, user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, ErrInactive
	}
	session, err := s.startSession(ctx, user)
	if err != nil {
		return "", nil, err
	}
	return session, user, nil
}

func (s *Service) startSession(ctx context.Context, user *models.User) (string, error) {
	at := s.now().UTC()
	if err := s.store.TouchLastLogin(ctx, user.ID, at); err != nil {
		return "", err
	}
	user.LastLogin = &at
	token, _, err := s.sessions.Issue(user.ID)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Logout revokes the session.
func (s *Service) Logout(ctx context.Context, sess models.Session) error {
	return s.sessions.Revoke(ctx, sess)
}

// SetStaff grants or revokes staff rights by username.
func (s *Service) SetStaff(ctx context.Context, username string, staff bool) error {
	if err := s.store.SetStaff(ctx, strings.TrimSpace(username), staff); err != nil {
		return err
	}
	s.logger.Info("staff flag changed", zap.String("username", username), zap.Bool("staff", staff))
	return nil
}
