package auth

import (
	"context"
	"fmt"
	"runtime"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// bcrypt ignores everything past this many bytes
const maxPasswordBytes = 72

var _ PasswordAuthenticator = (*PasswordHasher)(nil)

// PasswordHasher hashes passwords with bcrypt. Hash and Verify are CPU
// bound, concurrent calls are bounded by a weighted semaphore so a burst
// of logins can not monopolize every core.
type PasswordHasher struct {
	cost   int
	slots  *semaphore.Weighted
	dummy  []byte
	logger Logger
}

// HasherOption configures a PasswordHasher
type HasherOption func(*PasswordHasher)

// WithHasherConcurrency sets how many hash computations may run at once
func WithHasherConcurrency(n int) HasherOption {
	return func(h *PasswordHasher) {
		if n > 0 {
			h.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithHasherLogger sets the logger
func WithHasherLogger(logger Logger) HasherOption {
	return func(h *PasswordHasher) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewPasswordHasher returns a hasher using the given bcrypt cost. Zero
// selects the default cost.
func NewPasswordHasher(cost int, opts ...HasherOption) (*PasswordHasher, error) {
	if cost == 0 {
		cost = passwordHashCost()
	}

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	h := &PasswordHasher{
		cost:   cost,
		slots:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(h)
	}

	// digest of a throwaway secret, compared against when the identifier is unknown
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt dummy digest: %w", err)
	}
	h.dummy = dummy

	return h, nil
}

// Cost returns the configured work factor
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash will generate a salted password digest
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	var digest []byte
	err := h.run(ctx, func() error {
		var err error
		digest, err = bcrypt.GenerateFromPassword([]byte(password), h.cost)
		return err
	})

	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		h.logger.Error("password hash failure", "error", err)
		return "", errors.Wrap(err, errors.CategoryInternal, ErrHashFailure.Message).
			WithCode(errors.CodeInternal).
			WithTextCode(TextCodeHashFailure)
	}

	return string(digest), nil
}

// Verify will validate the given cleartext password matches the digest.
// A mismatch is (false, nil). A malformed digest is an internal error and
// must not be reported to the user as a wrong password.
func (h *PasswordHasher) Verify(ctx context.Context, password, digest string) (bool, error) {
	// bcrypt would silently truncate, so a longer candidate can never match
	if len(password) > maxPasswordBytes {
		h.DummyVerify(ctx, password)
		return false, ctx.Err()
	}

	var cmpErr error
	err := h.run(ctx, func() error {
		cmpErr = bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
		return nil
	})
	if err != nil {
		return false, err
	}

	switch {
	case cmpErr == nil:
		return true, nil
	case errors.Is(cmpErr, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		h.logger.Error("password digest comparison failure", "error", cmpErr)
		return false, errors.Wrap(cmpErr, errors.CategoryInternal, ErrHashFailure.Message).
			WithCode(errors.CodeInternal).
			WithTextCode(TextCodeHashFailure)
	}
}

// DummyVerify spends the same work as Verify against a throwaway digest
func (h *PasswordHasher) DummyVerify(ctx context.Context, password string) {
	if len(password) > maxPasswordBytes {
		password = password[:maxPasswordBytes]
	}
	_ = h.run(ctx, func() error {
		return bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
	})
}

// run executes fn on its own goroutine once a slot is free. The caller
// stops waiting when ctx is done; fn still finishes and releases the slot.
func (h *PasswordHasher) run(ctx context.Context, fn func() error) error {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer h.slots.Release(1)
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
