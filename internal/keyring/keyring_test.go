package keyring

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedSecret(raw string) string {
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestRing_Add_DecodesSecret(t *testing.T) {
	r := New(RotationRoundRobin)

	require.NoError(t, r.Add("main", "key1", encodedSecret("topsecret")))

	key := r.Current()
	require.NotNil(t, key)
	assert.Equal(t, []byte("topsecret"), key.Secret)
}

func TestRing_Add_BadEncoding(t *testing.T) {
	r := New(RotationRoundRobin)

	err := r.Add("main", "key1", "not-valid-base64!!!")
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestRing_Add_DuplicateID(t *testing.T) {
	r := New(RotationRoundRobin)

	require.NoError(t, r.Add("main", "key1", encodedSecret("a")))
	require.NoError(t, r.Add("main", "key2", encodedSecret("b")))

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "key1", r.Current().Key)
}

func TestRing_Rotate(t *testing.T) {
	r := New(RotationRoundRobin)
	require.NoError(t, r.Add("a", "key-a", encodedSecret("sa")))
	require.NoError(t, r.Add("b", "key-b", encodedSecret("sb")))

	assert.Equal(t, "key-a", r.Current().Key)
	r.Rotate()
	assert.Equal(t, "key-b", r.Current().Key)
	r.Rotate()
	assert.Equal(t, "key-a", r.Current().Key)
}

func TestRing_OnError_RotatesWhenConfigured(t *testing.T) {
	r := New(RotationOnError)
	require.NoError(t, r.Add("a", "key-a", encodedSecret("sa")))
	require.NoError(t, r.Add("b", "key-b", encodedSecret("sb")))

	r.OnError()
	assert.Equal(t, "key-b", r.Current().Key)
}

func TestRing_DisableSkipsKey(t *testing.T) {
	r := New(RotationRoundRobin)
	require.NoError(t, r.Add("a", "key-a", encodedSecret("sa")))
	require.NoError(t, r.Add("b", "key-b", encodedSecret("sb")))

	r.Disable("a")
	assert.Equal(t, "key-b", r.Current().Key)

	r.Enable("a")
	assert.Equal(t, "key-a", r.Current().Key)
}

func TestRing_Current_Empty(t *testing.T) {
	r := New(RotationRoundRobin)
	assert.Nil(t, r.Current())
}

func TestAPIKey_String_MasksKey(t *testing.T) {
	k := &APIKey{ID: "main", Key: "ABCDEFGHIJKLMNOP"}
	s := k.String()

	assert.NotContains(t, s, "EFGHIJKL")
	assert.Contains(t, s, "ABCD")
	assert.Contains(t, s, "MNOP")
}
