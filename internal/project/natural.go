package project

import "strings"

// NaturalLess compares two strings using natural numeric ordering, ignoring
// case: "A2" < "A10", "w1" < "W2" < "w10".
func NaturalLess(a, b string) bool {
	chunksA := splitNatural(a)
	chunksB := splitNatural(b)
	for i := 0; i < len(chunksA) && i < len(chunksB); i++ {
		ca, cb := chunksA[i], chunksB[i]
		if isNumeric(ca) && isNumeric(cb) {
			if c := compareDigits(ca, cb); c != 0 {
				return c < 0
			}
			continue
		}
		if c := strings.Compare(strings.ToUpper(ca), strings.ToUpper(cb)); c != 0 {
			return c < 0
		}
	}
	if len(chunksA) != len(chunksB) {
		return len(chunksA) < len(chunksB)
	}
	return a < b
}

// compareDigits compares decimal strings of any length by value.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func splitNatural(s string) []string {
	var chunks []string
	var current strings.Builder
	wasDigit := false
	for i, r := range s {
		digit := r >= '0' && r <= '9'
		if i > 0 && digit != wasDigit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteRune(r)
		wasDigit = digit
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
