package seal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	s, err := New(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	sealed, err := s.Seal("0900000000")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "0900000000")

	again, err := s.Seal("0900000000")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "fresh nonce per value")

	pt, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "0900000000", pt)
}

func TestPlainPassThrough(t *testing.T) {
	var s *Sealer
	v, err := s.Seal("a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", v)

	v, err = s.Open("a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", v)
}

func TestWrongKeyOrTamper(t *testing.T) {
	a, err := New(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	b, err := New(bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)
	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = a.Open("v1:!!")
	assert.ErrorIs(t, err, ErrCorrupt)

	var none *Sealer
	_, err = none.Open(sealed)
	assert.Error(t, err)
}

func TestBadKeyLength(t *testing.T) {
	_, err := New([]byte("short"))
	assert.Error(t, err)
}
