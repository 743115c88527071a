package vespa

import (
	"math"
	"strconv"
	"strings"
)

// sparseEpsilon drops near-zero cells from mixed tensors.
const sparseEpsilon = 1e-6

// FormatDense renders a vector as an indexed tensor literal: [v1,v2,...].
func FormatDense(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// FormatTokens renders per-token vectors as a mixed tensor literal
// {{token:i,x:j}:v,...}. Cells with |v| <= 1e-6 are omitted.
func FormatTokens(tokens [][]float32) string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for i, tok := range tokens {
		for j, x := range tok {
			if math.Abs(float64(x)) <= sparseEpsilon {
				continue
			}
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteString("{token:")
			b.WriteString(strconv.Itoa(i))
			b.WriteString(",x:")
			b.WriteString(strconv.Itoa(j))
			b.WriteString("}:")
			b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
		}
	}
	b.WriteByte('}')
	return b.String()
}
