package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareKeepsGivenIDAndCreatedAt(t *testing.T) {
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw, _ := json.Marshal(map[string]any{"id": "keep", "created_at": created, "name": "x"})

	out, id, err := Prepare(raw, now, func() string { return "generated" })
	require.NoError(t, err)
	assert.Equal(t, "keep", id)
	assert.Equal(t, created, CreatedAt(out))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, now.Format(time.RFC3339), decoded["updated_at"])
}

func TestPrepareAssignsMissingFields(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out, id, err := Prepare(Document(`{"id":"","created_at":"0001-01-01T00:00:00Z"}`), now, func() string { return "generated" })
	require.NoError(t, err)
	assert.Equal(t, "generated", id)
	assert.Equal(t, "generated", ID(out))
	assert.Equal(t, now, CreatedAt(out))
}

func TestPrepareRejectsNonObjects(t *testing.T) {
	_, _, err := Prepare(Document(`[1,2]`), time.Now(), func() string { return "x" })
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = Prepare(Document(`null`), time.Now(), func() string { return "x" })
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMergeProtectsIdentity(t *testing.T) {
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	doc := Document(`{"id":"a","created_at":"2025-01-01T00:00:00Z","qty":1,"name":"n"}`)

	out, err := Merge(doc, Document(`{"id":"b","created_at":"2020-01-01T00:00:00Z","qty":5}`), now)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "a", decoded["id"])
	assert.Equal(t, "2025-01-01T00:00:00Z", decoded["created_at"])
	assert.Equal(t, float64(5), decoded["qty"])
	assert.Equal(t, "n", decoded["name"])
}

func TestFieldEqualsComparesJSONValues(t *testing.T) {
	doc := Document(`{"qty":5,"name":"rice","active":true,"tags":["a"]}`)

	assert.True(t, FieldEquals(doc, "qty", 5))
	assert.True(t, FieldEquals(doc, "qty", 5.0))
	assert.True(t, FieldEquals(doc, "name", "rice"))
	assert.True(t, FieldEquals(doc, "active", true))
	assert.True(t, FieldEquals(doc, "tags", []string{"a"}))
	assert.False(t, FieldEquals(doc, "name", "Rice"))
	assert.False(t, FieldEquals(doc, "missing", nil))
}
