// Package model defines the data structures used throughout the application.
package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Wire names of the fields every profile carries. These keys are never
// stored in UserProfile.Attributes.
const (
	FieldInternalID = "_id"
	FieldExternalID = "uid"
	FieldEmail      = "email"
	FieldCreatedAt  = "createdAt"
	FieldUpdatedAt  = "updatedAt"
)

// IsReserved reports whether key is one of the typed profile fields.
func IsReserved(key string) bool {
	switch key {
	case FieldInternalID, FieldExternalID, FieldEmail, FieldCreatedAt, FieldUpdatedAt:
		return true
	}
	return false
}

// UserProfile is the one record kept per external identifier.
//
// The two required fields and the timestamps are typed; everything else the
// client sends lives in Attributes. On the wire the profile is a single flat
// JSON object:
//
//	{"_id":"...","uid":"abc","email":"a@x.com","age":30,"createdAt":"...","updatedAt":"..."}
//
// ExternalID is the caller's stable key (an identity-provider subject id).
// InternalID is assigned by the store at creation and never changes.
type UserProfile struct {
	InternalID string
	ExternalID string
	Email      string
	Attributes map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Changes is a shallow patch: supplied keys overwrite, everything else is kept.
type Changes struct {
	Email      string         // empty leaves the stored email untouched
	Attributes map[string]any // top-level keys to overwrite
	At         time.Time      // becomes UpdatedAt (and CreatedAt on insert)
}

// Clone returns a deep-enough copy: the attribute map is copied, values are shared.
func (p *UserProfile) Clone() *UserProfile {
	c := *p
	c.Attributes = maps.Clone(p.Attributes)
	if c.Attributes == nil {
		c.Attributes = map[string]any{}
	}
	return &c
}

// NextUpdatedAt returns the updatedAt a mutation stamped at must store on a
// profile whose current updatedAt is prev: at, or prev+1ms when at is not
// after prev. A write stamped before a competing write that committed first
// still moves updatedAt forward.
func NextUpdatedAt(prev, at time.Time) time.Time {
	if prev.IsZero() || at.After(prev) {
		return at
	}
	return prev.Add(time.Millisecond)
}

// Apply merges ch into the profile in place and advances UpdatedAt
// (see NextUpdatedAt). CreatedAt, ExternalID and InternalID are never touched.
func (p *UserProfile) Apply(ch Changes) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]any, len(ch.Attributes))
	}
	for k, v := range ch.Attributes {
		if IsReserved(k) {
			continue
		}
		p.Attributes[k] = v
	}
	if ch.Email != "" {
		p.Email = ch.Email
	}
	p.UpdatedAt = NextUpdatedAt(p.UpdatedAt, ch.At)
}

// NewProfile builds the record an upsert inserts when no profile exists yet.
func NewProfile(externalID string, ch Changes) *UserProfile {
	p := &UserProfile{
		ExternalID: externalID,
		CreatedAt:  ch.At,
	}
	p.Apply(ch)
	return p
}

// MarshalJSON flattens Attributes next to the typed fields.
func (p UserProfile) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Attributes)+5)
	for k, v := range p.Attributes {
		out[k] = v
	}
	if p.InternalID != "" {
		out[FieldInternalID] = p.InternalID
	}
	out[FieldExternalID] = p.ExternalID
	out[FieldEmail] = p.Email
	out[FieldCreatedAt] = p.CreatedAt
	out[FieldUpdatedAt] = p.UpdatedAt
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON. Unknown keys become Attributes.
func (p *UserProfile) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var decoded UserProfile
	decoded.Attributes = make(map[string]any, len(raw))
	for k, v := range raw {
		var err error
		switch k {
		case FieldInternalID:
			err = json.Unmarshal(v, &decoded.InternalID)
		case FieldExternalID:
			err = json.Unmarshal(v, &decoded.ExternalID)
		case FieldEmail:
			err = json.Unmarshal(v, &decoded.Email)
		case FieldCreatedAt:
			err = json.Unmarshal(v, &decoded.CreatedAt)
		case FieldUpdatedAt:
			err = json.Unmarshal(v, &decoded.UpdatedAt)
		default:
			var val any
			err = json.Unmarshal(v, &val)
			decoded.Attributes[k] = val
		}
		if err != nil {
			return fmt.Errorf("decoding %q: %w", k, err)
		}
	}

	*p = decoded
	return nil
}
