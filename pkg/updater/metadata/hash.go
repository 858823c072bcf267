package metadata

import (
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// NewHasher returns the content hash used by package metadata.
func NewHasher() hash.Hash {
	return blake3.New()
}

// HashBytes returns the hex digest of data.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the hex digest and size of a file.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := NewHasher()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashEqual compares hex digests case-insensitively.
func HashEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}
