package loyalty

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	digits       = "0123456789"
	suffixLength = 6
)

// CodeGenerator builds human-readable discount codes. Uniqueness is
// probabilistic; the commerce platform rejects duplicates.
type CodeGenerator struct {
	rand io.Reader
}

// NewCodeGenerator returns a generator reading from r, or crypto/rand when r is nil.
func NewCodeGenerator(r io.Reader) *CodeGenerator {
	if r == nil {
		r = rand.Reader
	}
	return &CodeGenerator{rand: r}
}

// Redemption returns PREFIX<whole amount>-XXXXXX, e.g. ALOHA3-K2Z9QD.
func (g *CodeGenerator) Redemption(prefix string, amount decimal.Decimal) (string, error) {
	suffix, err := g.random(codeAlphabet, suffixLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d-%s", prefix, amount.Floor().IntPart(), suffix), nil
}

// GiftCard returns PREFIX<first three letters of the tier>XXXXXX, e.g. GIFTARGK2Z9QD.
func (g *CodeGenerator) GiftCard(prefix, tierName string) (string, error) {
	suffix, err := g.random(codeAlphabet, suffixLength)
	if err != nil {
		return "", err
	}
	name := []rune(strings.ToUpper(lettersOnly(tierName)))
	if len(name) > 3 {
		name = name[:3]
	}
	return prefix + string(name) + suffix, nil
}

// Welcome returns PREFIX<first name letters><4 digits>, e.g. BIENVENUEMARIE4821.
func (g *CodeGenerator) Welcome(prefix, firstName string) (string, error) {
	suffix, err := g.random(digits, 4)
	if err != nil {
		return "", err
	}
	return prefix + strings.ToUpper(asciiLetters(firstName)) + suffix, nil
}

func (g *CodeGenerator) random(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(g.rand, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

func lettersOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, s)
}

func asciiLetters(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return -1
	}, s)
}
