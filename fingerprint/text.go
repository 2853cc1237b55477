// Package fingerprint computes 64-bit similarity hashes of captured
// evidence: screenshots (difference hash), page structure and page text
// (SimHash). Two fingerprints are compared by Hamming distance.
package fingerprint

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// TextDistance is the distance at or below which two page-text
// fingerprints count as the same content.
const TextDistance = 3

// Text computes a SimHash of whitespace-separated tokens.
func Text(text string) uint64 {
	return simhash(strings.Fields(text))
}

// PageText fingerprints the visible text of an HTML document. Script,
// style and template content is skipped.
func PageText(doc string) uint64 {
	return Text(visibleText(doc))
}

func visibleText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.StartTagToken:
			if hiddenText(z) {
				skip++
			}
		case html.EndTagToken:
			if hiddenText(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func hiddenText(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

func simhash(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := range 64 {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i, v := range vector {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether a and b are at most threshold bits apart.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}
