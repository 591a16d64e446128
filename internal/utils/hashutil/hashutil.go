package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"lukechampine.com/blake3"
)

// A registry digest is declared as "<algo>:<hex>". Supported algorithms are
// sha256 and blake3.
const (
	AlgoSHA256 = "sha256"
	AlgoBlake3 = "blake3"
)

func Blake3Hash(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// NewHasher returns a streaming hasher for the algorithm named in the
// declared digest string.
func NewHasher(declared string) (hash.Hash, error) {
	algo, _, ok := strings.Cut(declared, ":")
	if !ok {
		return nil, fmt.Errorf("malformed digest %q: expected <algo>:<hex>", declared)
	}

	switch algo {
	case AlgoSHA256:
		return sha256.New(), nil
	case AlgoBlake3:
		return blake3.New(32, nil), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", algo)
	}
}

// FormatDigest renders a computed hash in the same "<algo>:<hex>" form the
// registry declares, so the two compare with string equality.
func FormatDigest(declared string, h hash.Hash) string {
	algo, _, _ := strings.Cut(declared, ":")
	return algo + ":" + hex.EncodeToString(h.Sum(nil))
}
