package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/career-connect/internal/apperror"
	"github.com/sakif/career-connect/internal/model"
	"github.com/sakif/career-connect/internal/repository"
)

// compile-time check that *DB implements repository.UserProfileRepository
var _ repository.UserProfileRepository = (*DB)(nil)

const profileColumns = `id, uid, email, attributes, created_at, updated_at`

// Upsert inserts or merges a profile keyed by uid.
//
// The lookup and the write share one transaction on the single pooled
// connection (see New), so the find-then-write sequence is serialized.
// New rows get an xid internal id; existing rows keep theirs.
// Apply advances updatedAt from the value read inside the transaction, so a
// stale ch.At never moves it backwards.
func (db *DB) Upsert(ctx context.Context, externalID string, ch model.Changes) (*model.UserProfile, bool, error) {
	var (
		result  *model.UserProfile
		created bool
	)

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getByExternalID(ctx, tx, externalID)
		if errors.Is(err, apperror.ErrNotFound) {
			p := model.NewProfile(externalID, ch)
			p.InternalID = xid.New().String()
			if err := insertProfile(ctx, tx, p); err != nil {
				return err
			}
			result, created = p, true
			return nil
		}
		if err != nil {
			return err
		}

		existing.Apply(ch)
		if err := updateProfile(ctx, tx, existing); err != nil {
			return err
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return result, created, nil
}

// GetByExternalID retrieves a profile by uid.
// Returns apperror.ErrNotFound if no profile has that uid.
func (db *DB) GetByExternalID(ctx context.Context, externalID string) (*model.UserProfile, error) {
	return getByExternalID(ctx, db.conn, externalID)
}

// List returns every profile in insertion order.
func (db *DB) List(ctx context.Context) ([]model.UserProfile, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing user profiles: %w", err)
	}
	defer rows.Close()

	profiles := []model.UserProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user profiles: %w", err)
	}

	return profiles, nil
}

// Merge applies ch to an existing profile. Returns apperror.ErrNotFound
// rather than creating one.
func (db *DB) Merge(ctx context.Context, externalID string, ch model.Changes) (*model.UserProfile, error) {
	var result *model.UserProfile

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getByExternalID(ctx, tx, externalID)
		if err != nil {
			return err
		}
		existing.Apply(ch)
		if err := updateProfile(ctx, tx, existing); err != nil {
			return err
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Delete removes the profile with the given uid.
// Returns apperror.ErrNotFound when nothing was deleted.
func (db *DB) Delete(ctx context.Context, externalID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_profiles WHERE uid = ?`, externalID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user profile %s: %w", externalID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking delete result: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", externalID)
	}

	return nil
}

func getByExternalID(ctx context.Context, q queryer, externalID string) (*model.UserProfile, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE uid = ?`, externalID)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", externalID)
		}
		return nil, fmt.Errorf("sqlite: getting user profile %s: %w", externalID, err)
	}

	return p, nil
}

func insertProfile(ctx context.Context, q queryer, p *model.UserProfile) error {
	attrs, err := encodeAttributes(p.Attributes)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO user_profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.InternalID,
		p.ExternalID,
		p.Email,
		attrs,
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user profile (uid=%s): %w", p.ExternalID, err)
	}
	return nil
}

func updateProfile(ctx context.Context, q queryer, p *model.UserProfile) error {
	attrs, err := encodeAttributes(p.Attributes)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx,
		`UPDATE user_profiles SET email = ?, attributes = ?, updated_at = ? WHERE id = ?`,
		p.Email,
		attrs,
		p.UpdatedAt.UTC(),
		p.InternalID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user profile %s: %w", p.ExternalID, err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (*model.UserProfile, error) {
	var (
		p     model.UserProfile
		attrs string
	)
	if err := s.Scan(&p.InternalID, &p.ExternalID, &p.Email, &attrs, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attrs), &p.Attributes); err != nil {
		return nil, fmt.Errorf("decoding attributes of %s: %w", p.ExternalID, err)
	}
	if p.Attributes == nil {
		p.Attributes = map[string]any{}
	}
	return &p, nil
}

func encodeAttributes(attrs map[string]any) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding attributes: %w", err)
	}
	return string(b), nil
}
