package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasherSHA256(t *testing.T) {
	h, err := NewHasher("sha256:whatever")
	require.NoError(t, err)

	h.Write([]byte("payload"))
	want := sha256.Sum256([]byte("payload"))
	assert.Equal(t, "sha256:"+hex.EncodeToString(want[:]), FormatDigest("sha256:whatever", h))
}

func TestNewHasherBlake3(t *testing.T) {
	h, err := NewHasher("blake3:")
	require.NoError(t, err)

	h.Write([]byte("payload"))
	assert.Equal(t, "blake3:"+Blake3Hash([]byte("payload")), FormatDigest("blake3:", h))
}

func TestNewHasherRejectsUnknownAlgo(t *testing.T) {
	_, err := NewHasher("md5:abc")
	assert.Error(t, err)
}

func TestNewHasherRejectsMalformedDigest(t *testing.T) {
	_, err := NewHasher("no-colon")
	assert.Error(t, err)
}
