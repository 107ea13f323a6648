package stores

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns the BLAKE2b-256 content address of the given inputs. Each part is
// length-prefixed so that moving bytes between parts changes the result.
func Fingerprint(parts ...[]byte) string {
	h, _ := blake2b.New256(nil)
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintFiles fingerprints the contents of files in order.
func FingerprintFiles(paths ...string) (string, error) {
	parts := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		parts = append(parts, data)
	}
	return Fingerprint(parts...), nil
}
