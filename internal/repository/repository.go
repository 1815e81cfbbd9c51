// Package repository declares the storage contract the service layer depends on.
//
// Implementations live in sub-packages (mongo, sqlite). The service only ever
// sees this interface, so tests can swap in an in-memory fake.
package repository

import (
	"context"

	"github.com/sakif/career-connect/internal/model"
)

// UserProfileRepository stores UserProfiles keyed by their external id.
//
// Upsert and Merge must each be atomic with respect to other calls for the
// same external id: two concurrent Upserts for an absent id yield exactly one
// created record, and the other caller observes it as an update.
//
// Not-found conditions are reported as apperror.ErrNotFound; transient
// connectivity failures as apperror.ErrUnavailable.
type UserProfileRepository interface {
	// Upsert creates the profile if absent or merges ch into it if present.
	// created reports which branch was taken.
	Upsert(ctx context.Context, externalID string, ch model.Changes) (p *model.UserProfile, created bool, err error)
	GetByExternalID(ctx context.Context, externalID string) (*model.UserProfile, error)
	// List returns every profile in store order. No pagination.
	List(ctx context.Context) ([]model.UserProfile, error)
	// Merge applies ch to an existing profile. It never creates one.
	Merge(ctx context.Context, externalID string, ch model.Changes) (*model.UserProfile, error)
	Delete(ctx context.Context, externalID string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
