// Package textutil holds string helpers shared by the library automation.
package textutil

import (
	"strings"
	"unicode"
)

// CompareTwoStrings returns the Sørensen–Dice coefficient of the character bigrams of a and b,
// ignoring whitespace. Identical strings score 1; strings shorter than two runes score 0.
func CompareTwoStrings(a, b string) float64 {
	ra := []rune(stripSpace(a))
	rb := []rune(stripSpace(b))

	if string(ra) == string(rb) {
		return 1
	}

	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	bigrams := make(map[[2]rune]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		bigrams[[2]rune{ra[i], ra[i+1]}]++
	}

	intersection := 0

	for i := 0; i < len(rb)-1; i++ {
		bg := [2]rune{rb[i], rb[i+1]}
		if bigrams[bg] > 0 {
			bigrams[bg]--
			intersection++
		}
	}

	return 2 * float64(intersection) / float64(len(ra)+len(rb)-2)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}

		return r
	}, s)
}
