// Package hash computes and formats content digests.
//
// Every hash in an outpack repository is written "algorithm:hexdigest", for
// example "sha256:9f86d0...". The algorithm must match the repository's
// configured hash algorithm; the hex digest is lowercase and has exactly the
// length the algorithm produces.
package hash

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	stdhash "hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/roach88/outpack/internal/failure"
)

// Algorithm names a supported digest function.
type Algorithm string

const (
	MD5     Algorithm = "md5"
	SHA1    Algorithm = "sha1"
	SHA256  Algorithm = "sha256"
	SHA384  Algorithm = "sha384"
	SHA512  Algorithm = "sha512"
	Blake2b Algorithm = "blake2b"
	SHA3    Algorithm = "sha3"
	Blake3  Algorithm = "blake3"
)

// Default is the algorithm used when a repository does not configure one.
const Default = SHA256

// algorithms lists supported algorithms with their digest size in bytes.
var algorithms = map[Algorithm]int{
	MD5:     md5.Size,
	SHA1:    sha1.Size,
	SHA256:  sha256.Size,
	SHA384:  sha512.Size384,
	SHA512:  sha512.Size,
	Blake2b: blake2b.Size256,
	SHA3:    32,
	Blake3:  32,
}

// Algorithms returns every supported algorithm name in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{MD5, SHA1, SHA256, SHA384, SHA512, Blake2b, SHA3, Blake3}
}

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	alg := Algorithm(name)
	if _, ok := algorithms[alg]; !ok {
		return "", failure.Integrity(failure.CodeMalformedHash,
			fmt.Sprintf("unsupported hash algorithm %q", name))
	}
	return alg, nil
}

// HexLen returns the length of the algorithm's hex digest, or 0 if the
// algorithm is not supported.
func (a Algorithm) HexLen() int {
	return algorithms[a] * 2
}

// New returns a fresh streaming hasher for the algorithm.
// Panics if the algorithm is not supported; validate with ParseAlgorithm first.
func (a Algorithm) New() stdhash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	case Blake2b:
		h, err := blake2b.New256(nil)
		if err != nil {
			// Only fails for oversized keys.
			panic(err)
		}
		return h
	case SHA3:
		return sha3.New256()
	case Blake3:
		return blake3.New()
	}
	panic(fmt.Sprintf("hash: unsupported algorithm %q", string(a)))
}

// Hash is a parsed "algorithm:hex" digest.
type Hash struct {
	Algorithm Algorithm
	Hex       string
}

// String formats the hash as "algorithm:hex".
func (h Hash) String() string {
	return Format(h.Algorithm, h.Hex)
}

// IsZero reports whether h is the zero Hash.
func (h Hash) IsZero() bool {
	return h.Algorithm == "" && h.Hex == ""
}

// Format joins an algorithm and hex digest.
func Format(alg Algorithm, hexDigest string) string {
	return string(alg) + ":" + hexDigest
}

// Parse splits a hash string into algorithm and hex digest.
//
// Fails with MALFORMED_HASH if the string lacks the "algorithm:hex" shape,
// the algorithm is unknown, or the hex digest is not lowercase hex of the
// algorithm's length.
func Parse(s string) (Hash, error) {
	alg, digest, ok := strings.Cut(s, ":")
	if !ok || alg == "" || digest == "" {
		return Hash{}, malformed(s, "expected algorithm:hex")
	}

	a := Algorithm(alg)
	size, known := algorithms[a]
	if !known {
		return Hash{}, malformed(s, fmt.Sprintf("unsupported algorithm %q", alg))
	}
	if len(digest) != size*2 {
		return Hash{}, malformed(s, fmt.Sprintf("expected %d hex characters for %s, got %d", size*2, alg, len(digest)))
	}
	for i := 0; i < len(digest); i++ {
		c := digest[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return Hash{}, malformed(s, fmt.Sprintf("invalid hex character %q at offset %d", c, i))
		}
	}

	return Hash{Algorithm: a, Hex: digest}, nil
}

func malformed(s, reason string) *failure.Error {
	return failure.Integrity(failure.CodeMalformedHash, reason).WithDetail("hash", s)
}

// Sum finalises a streaming hasher created by Algorithm.New.
func Sum(h stdhash.Hash, alg Algorithm) Hash {
	return Hash{Algorithm: alg, Hex: hex.EncodeToString(h.Sum(nil))}
}

// Digest hashes content with the given algorithm.
// Deterministic and pure. Panics on an unsupported algorithm.
func Digest(content []byte, alg Algorithm) Hash {
	h := alg.New()
	h.Write(content)
	return Sum(h, alg)
}

// DigestString is Digest for string content.
func DigestString(content string, alg Algorithm) Hash {
	return Digest([]byte(content), alg)
}

// DigestReader hashes everything read from r.
func DigestReader(r io.Reader, alg Algorithm) (Hash, error) {
	h := alg.New()
	if _, err := io.Copy(h, r); err != nil {
		return Hash{}, failure.IO("hash content", err)
	}
	return Sum(h, alg), nil
}

// DigestFile hashes the file at path.
func DigestFile(path string, alg Algorithm) (Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return Hash{}, failure.IO("open file for hashing", err)
	}
	defer f.Close()
	return DigestReader(f, alg)
}

// Verify checks that content hashes to the claimed hash string, using the
// claimed hash's own algorithm.
//
// Returns MALFORMED_HASH if claimed cannot be parsed and HASH_MISMATCH if the
// content does not match.
func Verify(content []byte, claimed string) error {
	want, err := Parse(claimed)
	if err != nil {
		return err
	}
	got := Digest(content, want.Algorithm)
	if got.Hex != want.Hex {
		return Mismatch(want, got)
	}
	return nil
}

// Mismatch builds the HASH_MISMATCH error for a claimed/actual pair.
func Mismatch(claimed, actual Hash) *failure.Error {
	return failure.Integrity(failure.CodeHashMismatch, "hash does not match content").
		WithDetail("expected", claimed.String()).
		WithDetail("actual", actual.String())
}
