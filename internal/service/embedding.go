package service

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/pageza/reelkitchen/backend/internal/models"
)

// GenerateEmbedding returns a deterministic feature-hashed bag-of-words
// embedding for a recipe. Title and tag tokens count double.
func GenerateEmbedding(r *models.Recipe) pgvector.Vector {
	vec := make([]float32, models.EmbeddingDimensions)

	add := func(text string, weight float32) {
		for _, tok := range tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			sum := h.Sum32()
			sign := float32(1)
			if sum&0x80000000 != 0 {
				sign = -1
			}
			vec[sum%uint32(models.EmbeddingDimensions)] += sign * weight
		}
	}

	add(r.Title, 2)
	add(r.Cuisine, 1)
	add(r.Category, 1)
	for _, tag := range r.Tags {
		add(tag, 2)
	}
	for _, name := range r.Ingredients.Names() {
		add(name, 1)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return pgvector.NewVector(vec)
}

// CosineSimilarity compares two embeddings; mismatched or empty vectors score 0
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "with": true, "in": true, "to": true, "for": true,
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 && !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}
