// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the document store
//
// UserService takes a repository.UserProfileRepository (interface), never a
// concrete store, so tests inject an in-memory fake and main picks MongoDB or
// SQLite at startup.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/career-connect/internal/apperror"
	"github.com/sakif/career-connect/internal/metrics"
	"github.com/sakif/career-connect/internal/model"
	"github.com/sakif/career-connect/internal/repository"
)

// DefaultStoreTimeout bounds every store call made by the service.
const DefaultStoreTimeout = 5 * time.Second

// Client-facing validation messages.
const (
	msgRequiredFields = "User ID and email are required"
	msgUIDRequired    = "User ID is required"
	msgUIDImmutable   = "User ID cannot be changed"
	msgEmailInvalid   = "email must be a non-empty string"
)

// Outcome tells the caller which branch an upsert took.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// UserService implements the user profile operations.
//
// The service holds no per-request state. Atomicity of find-or-create and of
// merge-update is delegated to the repository, which is required to make
// Upsert and Merge single atomic operations per external id.
type UserService struct {
	repo    repository.UserProfileRepository
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	stamps  *stamper
}

// Option configures a UserService.
type Option func(*UserService)

// WithStoreTimeout overrides DefaultStoreTimeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *UserService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces time.Now as the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *UserService) { s.stamps = newStamper(clock) }
}

// WithMetrics counts operation outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *UserService) { s.metrics = m }
}

// NewUserService creates a UserService backed by repo.
func NewUserService(repo repository.UserProfileRepository, logger *slog.Logger, opts ...Option) *UserService {
	s := &UserService{
		repo:    repo,
		logger:  logger,
		timeout: DefaultStoreTimeout,
		stamps:  newStamper(time.Now),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert creates the profile for input["uid"] or merges input into it.
//
// input is the decoded request body. uid and email must be non-empty strings.
// Every other top-level key is an attribute; supplied keys overwrite stored
// ones and unsupplied keys are kept. _id, createdAt and updatedAt in input
// are ignored.
//
// Repeating the same call converges on one stored record: the first call
// reports OutcomeCreated, every later one OutcomeUpdated.
func (s *UserService) Upsert(ctx context.Context, input map[string]any) (*model.UserProfile, Outcome, error) {
	uid, uidOK := nonEmptyString(input[model.FieldExternalID])
	email, emailOK := nonEmptyString(input[model.FieldEmail])
	if !uidOK {
		return nil, "", apperror.ValidationFailed(model.FieldExternalID, msgRequiredFields)
	}
	if !emailOK {
		return nil, "", apperror.ValidationFailed(model.FieldEmail, msgRequiredFields)
	}

	attrs, err := attributesOf(input)
	if err != nil {
		return nil, "", err
	}

	ch := model.Changes{Email: email, Attributes: attrs, At: s.stamps.next()}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, created, err := s.repo.Upsert(storeCtx, uid, ch)
	if err != nil {
		s.metrics.ObserveOperation("upsert", "error")
		s.logger.Error("failed to upsert user",
			slog.String("uid", uid),
			slog.String("error", err.Error()),
		)
		return nil, "", storeError("upserting user", err)
	}

	outcome := OutcomeUpdated
	if created {
		outcome = OutcomeCreated
	}
	s.metrics.ObserveOperation("upsert", string(outcome))
	s.logger.Info("user upserted",
		slog.String("uid", uid),
		slog.String("id", p.InternalID),
		slog.String("outcome", string(outcome)),
	)

	return p, outcome, nil
}

// GetByExternalID returns the profile for uid.
// Returns apperror.ErrNotFound if none exists.
func (s *UserService) GetByExternalID(ctx context.Context, uid string) (*model.UserProfile, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, apperror.ValidationFailed(model.FieldExternalID, msgUIDRequired)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.repo.GetByExternalID(storeCtx, uid)
	if err != nil {
		s.observeFailure("get", uid, err)
		return nil, storeError("getting user", err)
	}

	s.metrics.ObserveOperation("get", "ok")
	return p, nil
}

// ListAll returns every stored profile in store order.
//
// There is no pagination: the result grows with the collection. It is meant
// for administrative use.
func (s *UserService) ListAll(ctx context.Context) ([]model.UserProfile, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	profiles, err := s.repo.List(storeCtx)
	if err != nil {
		s.metrics.ObserveOperation("list", "error")
		s.logger.Error("failed to list users", slog.String("error", err.Error()))
		return nil, storeError("listing users", err)
	}

	s.metrics.ObserveOperation("list", "ok")
	return profiles, nil
}

// PartialUpdate merges patch into the existing profile for uid.
//
// Unlike Upsert it never creates a profile: a missing uid is
// apperror.ErrNotFound. patch may repeat the profile's own uid but not change
// it, and may replace email only with another non-empty string.
func (s *UserService) PartialUpdate(ctx context.Context, uid string, patch map[string]any) (*model.UserProfile, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, apperror.ValidationFailed(model.FieldExternalID, msgUIDRequired)
	}

	if v, ok := patch[model.FieldExternalID]; ok {
		if supplied, _ := nonEmptyString(v); supplied != uid {
			return nil, apperror.ValidationFailed(model.FieldExternalID, msgUIDImmutable)
		}
	}

	var email string
	if v, ok := patch[model.FieldEmail]; ok {
		e, valid := nonEmptyString(v)
		if !valid {
			return nil, apperror.ValidationFailed(model.FieldEmail, msgEmailInvalid)
		}
		email = e
	}

	attrs, err := attributesOf(patch)
	if err != nil {
		return nil, err
	}

	ch := model.Changes{Email: email, Attributes: attrs, At: s.stamps.next()}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.repo.Merge(storeCtx, uid, ch)
	if err != nil {
		s.observeFailure("update", uid, err)
		return nil, storeError("updating user", err)
	}

	s.metrics.ObserveOperation("update", "ok")
	s.logger.Info("user updated",
		slog.String("uid", uid),
		slog.Int("fields", len(attrs)),
	)

	return p, nil
}

// Delete removes the profile for uid.
// Returns apperror.ErrNotFound if nothing was deleted.
func (s *UserService) Delete(ctx context.Context, uid string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return apperror.ValidationFailed(model.FieldExternalID, msgUIDRequired)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Delete(storeCtx, uid); err != nil {
		s.observeFailure("delete", uid, err)
		return storeError("deleting user", err)
	}

	s.metrics.ObserveOperation("delete", "ok")
	s.logger.Info("user deleted", slog.String("uid", uid))
	return nil
}

// Ping checks store reachability within the store timeout.
func (s *UserService) Ping(ctx context.Context) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Ping(storeCtx); err != nil {
		return storeError("pinging store", err)
	}
	return nil
}

// observeFailure counts a failed operation. NotFound is a normal answer, so
// it is counted but not logged as an error.
func (s *UserService) observeFailure(operation, uid string, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		s.metrics.ObserveOperation(operation, "not_found")
		return
	}
	s.metrics.ObserveOperation(operation, "error")
	s.logger.Error("user store operation failed",
		slog.String("operation", operation),
		slog.String("uid", uid),
		slog.String("error", err.Error()),
	)
}

// storeError wraps a repository error. A deadline that expired without the
// store classifying it becomes apperror.ErrUnavailable.
func storeError(action string, err error) error {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) && errors.Is(err, context.DeadlineExceeded) {
		err = apperror.Unavailable(err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// attributesOf copies the non-reserved keys of input. Names that a document
// store would read as an operator ($set) or a nested path (a.b) are rejected,
// since storing them would not be a shallow top-level overwrite.
func attributesOf(input map[string]any) (map[string]any, error) {
	attrs := make(map[string]any, len(input))
	for k, v := range input {
		if model.IsReserved(k) {
			continue
		}
		if k == "" || strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
			return nil, apperror.ValidationFailed(k,
				fmt.Sprintf("invalid field name %q", k))
		}
		attrs[k] = v
	}
	return attrs, nil
}
