package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestSixID_StringRoundTrip(t *testing.T) {
	id := NewSixID()
	parsed, err := ParseSixID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Len(t, id.String(), 10)
}

func TestSixID_ParseLenient(t *testing.T) {
	id := NewSixID()
	s := id.String()
	parsed, err := ParseSixID(s[:5] + "-" + s[5:])
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseSixID("short")
	assert.Error(t, err)
	_, err = ParseSixID("UUUUUUUUUU")
	assert.Error(t, err, "U is not in the Crockford alphabet")
}

func TestSixID_BSONRoundTrip(t *testing.T) {
	type doc struct {
		ID SixID `bson:"_id"`
	}
	in := doc{ID: NewSixID()}
	raw, err := bson.Marshal(in)
	require.NoError(t, err)

	var out doc
	require.NoError(t, bson.Unmarshal(raw, &out))
	assert.Equal(t, in.ID, out.ID)
}

func TestSixID_IsZero(t *testing.T) {
	assert.True(t, SixID{}.IsZero())
	assert.False(t, NewSixID().IsZero())
}

func TestNewSixIDHook(t *testing.T) {
	fixed := SixID{1, 2, 3, 4, 5, 6}
	NewSixIDHook = func() (SixID, bool) { return fixed, true }
	defer func() { NewSixIDHook = nil }()
	assert.Equal(t, fixed, NewSixID())
}
