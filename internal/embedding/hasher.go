package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const DefaultDimension = 384

// Hasher is an offline feature-hashing embedder. Each lowercase word and
// each adjacent word pair is hashed into one bucket; the vector is L2
// normalized, so every component is non-negative.
type Hasher struct {
	dim int
}

func NewHasher(dim int) *Hasher {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Hasher{dim: dim}
}

func (h *Hasher) Dimension() int {
	return h.dim
}

func (h *Hasher) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, h.dim)
	words := Tokenize(text)
	for i, w := range words {
		vec[h.bucket(w)] += 1
		if i > 0 {
			vec[h.bucket(words[i-1]+" "+w)] += 0.5
		}
	}
	return Normalize(vec), nil
}

func (h *Hasher) bucket(feature string) int {
	return int(xxhash.Sum64String(feature) % uint64(h.dim))
}

// Tokenize lowercases text and splits it on anything that is not a letter,
// digit or apostrophe.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
