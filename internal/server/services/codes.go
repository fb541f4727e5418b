package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// CodeAlphabet is the set of characters a rendezvous code is drawn from.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator returns a candidate rendezvous code of the given length.
type CodeGenerator func(length int) (string, error)

// RandomCode draws length characters uniformly from CodeAlphabet.
func RandomCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)

	base := big.NewInt(int64(len(CodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("random code: %w", err)
		}
		b.WriteByte(CodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// SequenceCodes returns a generator that hands out codes in order and then
// keeps repeating the last one.
func SequenceCodes(codes ...string) CodeGenerator {
	i := 0
	return func(int) (string, error) {
		if len(codes) == 0 {
			return "", fmt.Errorf("no codes")
		}
		c := codes[min(i, len(codes)-1)]
		i++
		return c, nil
	}
}

// NormalizeCode trims and upper-cases a code typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
