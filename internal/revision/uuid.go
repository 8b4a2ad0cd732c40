package revision

import (
	"math/big"

	"github.com/google/uuid"
)

// base57Alphabet omits characters that are easily confused with one
// another (0/O, 1/l/I), matching the historical shortuuid encoding
// recovered from original_source/src/backy/revision.py.
const base57Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// shortUUIDLength is the number of base57 characters needed to represent
// a 128-bit value: ceil(128 / log2(57)) = 22.
const shortUUIDLength = 22

// NewUUID returns a fresh 22-character base57-encoded unique id for a
// revision (spec.md §3).
func NewUUID() string {
	return encodeBase57(uuid.New())
}

func encodeBase57(u uuid.UUID) string {
	n := new(big.Int).SetBytes(u[:])
	base := big.NewInt(int64(len(base57Alphabet)))
	zero := big.NewInt(0)

	digits := make([]byte, 0, shortUUIDLength)
	mod := new(big.Int)
	for n.Cmp(zero) > 0 {
		n.DivMod(n, base, mod)
		digits = append(digits, base57Alphabet[mod.Int64()])
	}
	for len(digits) < shortUUIDLength {
		digits = append(digits, base57Alphabet[0])
	}
	// Reverse in place; DivMod above produces least-significant digit first.
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits[:shortUUIDLength])
}
