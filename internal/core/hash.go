package core

import (
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/zeebo/blake3"
)

// Hash identifies a commit object. File contents are fingerprinted by the
// chunked sha256 hasher; commit ids never appear in blob filenames, so they
// use Blake3.
type Hash [32]byte

// String returns the hexadecimal representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 7 characters of the hash (like git).
func (h Hash) Short() string {
	return h.String()[:7]
}

// HashBytes computes the Blake3 hash of a byte slice.
func HashBytes(data []byte) Hash {
	return blake3.Sum256(data)
}

// HashReader computes the Blake3 hash of data from an io.Reader.
func HashReader(r io.Reader) (Hash, error) {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return Hash{}, err
	}

	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash, nil
}

// ParseHash parses a hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var hash Hash
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return hash, err
	}
	if len(bytes) != 32 {
		return hash, ErrInvalidHash
	}
	copy(hash[:], bytes)
	return hash, nil
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into the hash. An empty string decodes
// to the zero hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
