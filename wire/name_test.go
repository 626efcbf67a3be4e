package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Fqdn(t *testing.T) {
	assert.Equal(t, "example.com.", Fqdn("example.com"))
	assert.Equal(t, "example.com.", Fqdn("example.com."))
	assert.Equal(t, ".", Fqdn(""))
	assert.Equal(t, ".", Fqdn("."))
}

func Test_CanonicalName(t *testing.T) {
	assert.Equal(t, "example.com.", CanonicalName("EXAMPLE.Com"))
	assert.Equal(t, CanonicalName("Host.Example.ORG."), CanonicalName("host.example.org"))
}

func Test_NameLen(t *testing.T) {
	n, err := NameLen("example.com.")
	require.NoError(t, err)
	assert.Equal(t, 13, n)

	n, err = NameLen(".")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// a 64-octet label is out
	_, err = NameLen(strings.Repeat("a", 64) + ".com.")
	assert.ErrorIs(t, err, ErrName)

	// total length over 255 is out
	long := strings.Repeat(strings.Repeat("x", 60)+".", 5)
	_, err = NameLen(long)
	assert.ErrorIs(t, err, ErrName)
}

func Test_UnpackNamePointer(t *testing.T) {
	// header, then "example.com." at 12, then a record name that is a
	// bare pointer back to it
	msg := make([]byte, 12)
	msg = append(msg, 7)
	msg = append(msg, "example"...)
	msg = append(msg, 3)
	msg = append(msg, "com"...)
	msg = append(msg, 0)
	ptrOff := len(msg)
	msg = append(msg, 0xc0, 12)

	name, next, err := unpackName(msg, ptrOff)
	require.NoError(t, err)
	assert.Equal(t, "example.com.", name)
	assert.Equal(t, ptrOff+2, next)
}

func Test_UnpackNamePointerLoop(t *testing.T) {
	// two pointers chasing each other must not hang
	msg := make([]byte, 12)
	msg = append(msg, 0xc0, 14, 0xc0, 12)

	_, _, err := unpackName(msg, 12)
	assert.ErrorIs(t, err, ErrBadName)
}

func Test_UnpackNameTruncated(t *testing.T) {
	msg := make([]byte, 12)
	msg = append(msg, 7)
	msg = append(msg, "exam"...)

	_, _, err := unpackName(msg, 12)
	assert.Error(t, err)
}
