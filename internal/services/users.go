package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"expense-api/internal/auth"
	"expense-api/internal/lib/logger"
	"expense-api/internal/models"
	"expense-api/internal/storage"

	"github.com/google/uuid"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
	// bcrypt only accepts this many bytes.
	maxPasswordBytes = 72
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// dummyHash is compared against when the user does not exist so a missing
// account costs the same bcrypt work as a wrong password.
var dummyHash = sync.OnceValue(func() string {
	h, _ := auth.HashPassword("dummy-password-for-timing")
	return h
})

// UserStore is the persistence the Directory needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User, categories []models.Category) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	MarkUserVerified(ctx context.Context, id int64) error
	TouchLastLogin(ctx context.Context, id int64) error
	DeleteUser(ctx context.Context, id int64) error
}

// Directory creates, authenticates and verifies user accounts.
type Directory struct {
	log         *slog.Logger
	users       UserStore
	verifier    *Verifier
	frontendURL string
}

func NewDirectory(log *slog.Logger, users UserStore, verifier *Verifier, frontendURL string) *Directory {
	return &Directory{
		log:         log,
		users:       users,
		verifier:    verifier,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

type RegisterInput struct {
	Username string
	Password string
	Email    string
	FullName string
}

// Registration is the outcome of a successful Register call.
type Registration struct {
	User             *models.User
	VerificationLink string
}

// Register validates the input, rejects taken usernames and emails, stores
// the user with the default category set and, when an email was given,
// returns a link carrying a fresh verification token.
func (d *Directory) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	const op = "services.Directory.Register"

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	if username == "" || in.Password == "" {
		return nil, invalid("Username and password are required")
	}
	if utf8.RuneCountInString(username) < minUsernameLen {
		return nil, invalid("Username is required and must be at least %d characters", minUsernameLen)
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		return nil, invalid("Password must be at least %d characters", minPasswordLen)
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, invalid("Password must be at most %d bytes", maxPasswordBytes)
	}
	if email != "" && !emailRe.MatchString(email) {
		return nil, invalid("Invalid email format")
	}

	existing, err := d.users.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, persistence(op, err)
	}
	if existing == nil && email != "" {
		existing, err = d.users.GetUserByEmail(ctx, email)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, persistence(op, err)
		}
	}
	if existing != nil {
		return nil, newError(ErrConflict, "User already exists")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, persistence(op, err)
	}

	u := &models.User{
		UUID:         uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		IsActive:     true,
	}
	if email != "" {
		u.Email = &email
	}

	u, err = d.users.CreateUser(ctx, u, DefaultCategories())
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, newError(ErrConflict, "User already exists")
		}
		return nil, persistence(op, err)
	}

	d.log.Info("user registered", slog.Int64("user_id", u.ID), slog.String("username", u.Username))

	reg := &Registration{User: u}
	if email == "" {
		return reg, nil
	}

	// The user row is already committed; a failure here leaves an unverified
	// account that can request verification again.
	token, err := d.verifier.IssueToken(email)
	if err != nil {
		d.log.Warn("failed to issue verification token", slog.Int64("user_id", u.ID), logger.Err(err))
		return reg, nil
	}
	reg.VerificationLink = d.frontendURL + "/verify-email?token=" + url.QueryEscape(token)

	return reg, nil
}

// Authenticate checks a username and password. Unknown users, wrong passwords
// and deactivated accounts all fail with the same error.
func (d *Directory) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	const op = "services.Directory.Authenticate"

	u, err := d.users.GetUserByUsername(ctx, username)
	return d.checkCredentials(ctx, op, u, err, password)
}

// AuthenticateByEmail is Authenticate keyed by email address.
func (d *Directory) AuthenticateByEmail(ctx context.Context, email, password string) (*models.User, error) {
	const op = "services.Directory.AuthenticateByEmail"

	u, err := d.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	return d.checkCredentials(ctx, op, u, err, password)
}

func (d *Directory) checkCredentials(ctx context.Context, op string, u *models.User, lookupErr error, password string) (*models.User, error) {
	if lookupErr != nil {
		if !errors.Is(lookupErr, storage.ErrNotFound) {
			return nil, persistence(op, lookupErr)
		}
		auth.CheckPassword(password, dummyHash())
		return nil, newError(ErrAuth, "Invalid credentials")
	}
	if !auth.CheckPassword(password, u.PasswordHash) || !u.IsActive {
		return nil, newError(ErrAuth, "Invalid credentials")
	}

	if err := d.users.TouchLastLogin(ctx, u.ID); err != nil {
		d.log.Warn("failed to record last login", slog.Int64("user_id", u.ID), logger.Err(err))
	} else {
		ts := time.Now().UTC()
		u.LastLogin = &ts
	}
	return u, nil
}

// VerifyEmail redeems a verification token and marks the bound user verified.
func (d *Directory) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	const op = "services.Directory.VerifyEmail"

	if token == "" {
		return nil, invalid("Token is required")
	}

	email, err := d.verifier.Redeem(token)
	if err != nil {
		return nil, err
	}

	u, err := d.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(ErrNotFound, "User not found")
		}
		return nil, persistence(op, err)
	}

	if err := d.users.MarkUserVerified(ctx, u.ID); err != nil {
		return nil, persistence(op, err)
	}
	u.IsVerified = true

	d.log.Info("email verified", slog.Int64("user_id", u.ID))
	return u, nil
}

// Get returns the user with the given id.
func (d *Directory) Get(ctx context.Context, id int64) (*models.User, error) {
	const op = "services.Directory.Get"

	u, err := d.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(ErrNotFound, "User not found")
		}
		return nil, persistence(op, err)
	}
	return u, nil
}

// Delete removes the user and everything the user owns.
func (d *Directory) Delete(ctx context.Context, id int64) error {
	const op = "services.Directory.Delete"

	if err := d.users.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return newError(ErrNotFound, "User not found")
		}
		return persistence(op, err)
	}

	d.log.Info("user deleted", slog.Int64("user_id", id))
	return nil
}

// EnsureUser registers username unless an account with that name already
// exists. created reports whether a new account was made.
func (d *Directory) EnsureUser(ctx context.Context, username, password string) (created bool, err error) {
	const op = "services.Directory.EnsureUser"

	_, err = d.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return false, persistence(op, err)
	}

	if _, err := d.Register(ctx, RegisterInput{Username: username, Password: password}); err != nil {
		return false, err
	}
	return true, nil
}
