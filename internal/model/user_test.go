package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_ShallowMerge(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewProfile("u1", Changes{
		Email:      "a@x.com",
		Attributes: map[string]any{"age": 30, "city": "Dhaka"},
		At:         created,
	})

	later := created.Add(time.Minute)
	p.Apply(Changes{Attributes: map[string]any{"age": 31}, At: later})

	assert.Equal(t, "u1", p.ExternalID)
	assert.Equal(t, "a@x.com", p.Email, "email must survive a patch that omits it")
	assert.Equal(t, 31, p.Attributes["age"])
	assert.Equal(t, "Dhaka", p.Attributes["city"])
	assert.Equal(t, created, p.CreatedAt)
	assert.Equal(t, later, p.UpdatedAt)
}

func TestApply_IgnoresReservedKeys(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewProfile("u1", Changes{Email: "a@x.com", At: created})

	p.Apply(Changes{
		Attributes: map[string]any{
			FieldCreatedAt:  "1999-01-01T00:00:00Z",
			FieldInternalID: "forged",
			FieldExternalID: "u2",
		},
		At: created.Add(time.Second),
	})

	assert.Equal(t, created, p.CreatedAt)
	assert.Equal(t, "u1", p.ExternalID)
	assert.Empty(t, p.InternalID)
	assert.Empty(t, p.Attributes)
}

func TestClone_DoesNotShareAttributes(t *testing.T) {
	p := &UserProfile{ExternalID: "u1", Attributes: map[string]any{"a": 1}}
	c := p.Clone()
	c.Attributes["a"] = 2

	assert.Equal(t, 1, p.Attributes["a"])
}

func TestUserProfileJSON_Flattened(t *testing.T) {
	ts := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	p := UserProfile{
		InternalID: "abc",
		ExternalID: "u1",
		Email:      "a@x.com",
		Attributes: map[string]any{"displayName": "Ada"},
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "abc", flat["_id"])
	assert.Equal(t, "u1", flat["uid"])
	assert.Equal(t, "a@x.com", flat["email"])
	assert.Equal(t, "Ada", flat["displayName"])
	assert.Equal(t, "2026-10-15T12:00:00Z", flat["createdAt"])

	var back UserProfile
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p.ExternalID, back.ExternalID)
	assert.Equal(t, p.InternalID, back.InternalID)
	assert.True(t, p.CreatedAt.Equal(back.CreatedAt))
	assert.Equal(t, map[string]any{"displayName": "Ada"}, back.Attributes)
}

func TestUserProfileJSON_OmitsEmptyInternalID(t *testing.T) {
	data, err := json.Marshal(UserProfile{ExternalID: "u1", Email: "a@x.com"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"_id"`)
}

func TestApply_StaleStampStillAdvances(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewProfile("u1", Changes{Email: "a@x.com", At: created})

	// A write stamped before the create commits after it.
	p.Apply(Changes{Attributes: map[string]any{"age": 30}, At: created.Add(-time.Millisecond)})

	assert.Equal(t, created.Add(time.Millisecond), p.UpdatedAt)
	assert.True(t, p.UpdatedAt.After(p.CreatedAt))
}

func TestNextUpdatedAt(t *testing.T) {
	prev := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		prev time.Time
		at   time.Time
		want time.Time
	}{
		{"first write", time.Time{}, prev, prev},
		{"later stamp", prev, prev.Add(time.Second), prev.Add(time.Second)},
		{"equal stamp", prev, prev, prev.Add(time.Millisecond)},
		{"stale stamp", prev, prev.Add(-time.Second), prev.Add(time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextUpdatedAt(tt.prev, tt.at))
		})
	}
}
