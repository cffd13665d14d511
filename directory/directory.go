package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pharmalens/dashauth/internal"
	"github.com/pharmalens/dashauth/internal/stores"
	"github.com/pharmalens/dashauth/kv"
	"github.com/pharmalens/dashauth/password"
	"github.com/rs/zerolog"
)

// DefaultVerificationTTL is the lifetime of a verification token bound at account creation.
const DefaultVerificationTTL = 24 * time.Hour

// Config configures a [Directory].
type Config struct {
	// VerificationTTL bounds tokens passed in Registration.VerificationToken.
	VerificationTTL time.Duration
	Logger          zerolog.Logger
}

// Registration is the input to CreateUser. Password is plaintext; it is hashed
// before anything is written.
type Registration struct {
	Username          string
	Email             string
	Name              string
	Password          string
	Role              Role
	IsVerified        bool
	VerificationToken string
}

// Update is a partial profile update. Nil fields are left unchanged.
type Update struct {
	Name *string
	Role *Role
}

// Directory is the user store. It is safe for concurrent use.
type Directory struct {
	store         kv.Store
	hasher        password.Hasher
	verifications *stores.BindingStore
	logger        zerolog.Logger
	ttl           time.Duration
	now           func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// New returns a Directory over store. A nil hasher is a programming error.
func New(store kv.Store, hasher password.Hasher, cfg Config) *Directory {
	ttl := cfg.VerificationTTL
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}
	return &Directory{
		store:         store,
		hasher:        hasher,
		verifications: stores.NewEmailVerificationStore(store),
		logger:        cfg.Logger,
		ttl:           ttl,
		now:           time.Now,
	}
}

// CreateUser persists a new account and its email and username index entries.
// When reg.VerificationToken is set the token is bound to the new user.
func (d *Directory) CreateUser(ctx context.Context, reg Registration) (*User, error) {
	email := NormalizeEmail(reg.Email)
	username := strings.TrimSpace(reg.Username)
	if email == "" || username == "" || reg.Password == "" {
		return nil, fmt.Errorf("%w: email, username and password are required", ErrInvalidUser)
	}

	role := reg.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, role)
	}

	id, err := internal.NewUserID()
	if err != nil {
		return nil, err
	}
	hash, err := d.hasher.Hash(reg.Password)
	if err != nil {
		return nil, err
	}

	now := d.now().UTC()
	rec := &userRecord{
		ID:           id,
		Username:     username,
		Email:        email,
		Name:         strings.TrimSpace(reg.Name),
		PasswordHash: hash,
		Role:         role,
		IsVerified:   reg.IsVerified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	data, err := encodeUser(rec)
	if err != nil {
		return nil, err
	}

	if err := d.store.Set(ctx, userKey(id), data, 0); err != nil {
		return nil, d.writeErr("create user", err)
	}
	if err := d.store.Set(ctx, emailIndexKey(email), []byte(id), 0); err != nil {
		return nil, d.writeErr("write email index", err)
	}
	if err := d.store.Set(ctx, usernameIndexKey(username), []byte(id), 0); err != nil {
		return nil, d.writeErr("write username index", err)
	}

	if reg.VerificationToken != "" {
		if err := d.verifications.Save(ctx, reg.VerificationToken, email, id, d.ttl); err != nil {
			return nil, d.writeErr("bind verification token", err)
		}
	}

	return rec.user(), nil
}

// GetUserByID returns the user with id.
func (d *Directory) GetUserByID(ctx context.Context, id string) (*User, error) {
	rec, err := d.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.user(), nil
}

// FindUserByEmail resolves the email index. Matching is case-insensitive.
func (d *Directory) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	rec, err := d.loadByIndex(ctx, emailIndexKey(email))
	if err != nil {
		return nil, err
	}
	return rec.user(), nil
}

// FindUserByUsername resolves the username index. Matching is case-insensitive.
func (d *Directory) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	rec, err := d.loadByIndex(ctx, usernameIndexKey(username))
	if err != nil {
		return nil, err
	}
	return rec.user(), nil
}

// VerifyCredentials returns the user when password matches the stored hash.
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
func (d *Directory) VerifyCredentials(ctx context.Context, email, plain string) (*User, error) {
	rec, err := d.loadByIndex(ctx, emailIndexKey(email))
	if err != nil {
		d.burnVerify(plain)
		return nil, ErrInvalidCredentials
	}
	if !d.hasher.Verify(plain, rec.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return rec.user(), nil
}

// UpdateUser applies upd to the user's profile and stamps UpdatedAt.
func (d *Directory) UpdateUser(ctx context.Context, id string, upd Update) (*User, error) {
	if upd.Role != nil && !upd.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, *upd.Role)
	}
	return d.mutate(ctx, id, func(rec *userRecord) error {
		if upd.Name != nil {
			rec.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Role != nil {
			rec.Role = *upd.Role
		}
		return nil
	})
}

// ChangePassword replaces the password hash after re-verifying current. On
// mismatch it returns ErrIncorrectPassword and writes nothing.
func (d *Directory) ChangePassword(ctx context.Context, id, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidUser)
	}
	_, err := d.mutate(ctx, id, func(rec *userRecord) error {
		if !d.hasher.Verify(current, rec.PasswordHash) {
			return ErrIncorrectPassword
		}
		hash, err := d.hasher.Hash(next)
		if err != nil {
			return err
		}
		rec.PasswordHash = hash
		return nil
	})
	return err
}

// SetPassword replaces the password hash without checking the current one.
func (d *Directory) SetPassword(ctx context.Context, id, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidUser)
	}
	hash, err := d.hasher.Hash(next)
	if err != nil {
		return err
	}
	_, err = d.mutate(ctx, id, func(rec *userRecord) error {
		rec.PasswordHash = hash
		return nil
	})
	return err
}

// VerifyEmail marks the user verified. Verifying twice succeeds.
func (d *Directory) VerifyEmail(ctx context.Context, id string) (*User, error) {
	return d.mutate(ctx, id, func(rec *userRecord) error {
		rec.IsVerified = true
		return nil
	})
}

// UpdateUserVerification marks a user verified. With a non-empty userID the
// user is verified directly and token, if any, is discarded. Otherwise token
// is consumed and resolved to its user. Unknown or expired tokens and missing
// users return ErrUserNotFound.
func (d *Directory) UpdateUserVerification(ctx context.Context, token, userID string) (*User, error) {
	if userID != "" {
		u, err := d.VerifyEmail(ctx, userID)
		if err != nil {
			return nil, err
		}
		if token != "" {
			if err := d.verifications.Delete(ctx, token); err != nil {
				d.logger.Warn().Err(err).Msg("discard verification token")
			}
		}
		return u, nil
	}

	binding, err := d.verifications.Consume(ctx, token)
	if err != nil {
		if !errors.Is(err, stores.ErrBindingNotFound) {
			d.logger.Error().Err(err).Msg("consume verification token")
		}
		return nil, ErrUserNotFound
	}

	id := binding.UserID
	if id == "" {
		u, err := d.FindUserByEmail(ctx, binding.Email)
		if err != nil {
			return nil, err
		}
		id = u.ID
	}

	u, err := d.VerifyEmail(ctx, id)
	if errors.Is(err, ErrUnavailable) {
		return nil, err
	}
	if err != nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (d *Directory) mutate(ctx context.Context, id string, fn func(*userRecord) error) (*User, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}

	var updated *userRecord
	err := d.store.Update(ctx, userKey(id), func(current []byte) ([]byte, error) {
		rec, err := decodeUser(current)
		if err != nil {
			return nil, err
		}
		if err := fn(rec); err != nil {
			return nil, err
		}
		rec.UpdatedAt = d.now().UTC()
		updated = rec
		return encodeUser(rec)
	})

	switch {
	case err == nil:
		return updated.user(), nil
	case errors.Is(err, kv.ErrNotFound):
		return nil, ErrUserNotFound
	case errors.Is(err, ErrIncorrectPassword), errors.Is(err, ErrCorruptRecord):
		return nil, err
	default:
		return nil, d.writeErr("update user", err)
	}
}

func (d *Directory) load(ctx context.Context, id string) (*userRecord, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}
	data, err := d.store.Get(ctx, userKey(id))
	if err != nil {
		d.logReadErr(err, "load user")
		return nil, ErrUserNotFound
	}
	rec, err := decodeUser(data)
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", id).Msg("decode user")
		return nil, ErrUserNotFound
	}
	return rec, nil
}

func (d *Directory) loadByIndex(ctx context.Context, indexKey string) (*userRecord, error) {
	id, err := d.store.Get(ctx, indexKey)
	if err != nil {
		d.logReadErr(err, "resolve index")
		return nil, ErrUserNotFound
	}
	return d.load(ctx, string(id))
}

// burnVerify spends the same work as a real verification so that unknown
// emails are not distinguishable by response time.
func (d *Directory) burnVerify(plain string) {
	d.dummyOnce.Do(func() {
		hash, err := d.hasher.Hash("dashauth-dummy-password")
		if err == nil {
			d.dummyHash = hash
		}
	})
	if d.dummyHash != "" {
		d.hasher.Verify(plain, d.dummyHash)
	}
}

func (d *Directory) logReadErr(err error, op string) {
	if errors.Is(err, kv.ErrNotFound) {
		return
	}
	d.logger.Error().Err(err).Str("op", op).Msg("user directory read failed")
}

func (d *Directory) writeErr(op string, err error) error {
	d.logger.Error().Err(err).Str("op", op).Msg("user directory write failed")
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
