package fingerprint

import (
	"strings"

	"golang.org/x/net/html"
)

// DOM fingerprints the element structure of a document: tag names in
// document order, shingled in threes. Text and attributes are ignored, so
// two renders of the same page template hash close together even when
// their content differs.
func DOM(doc string) uint64 {
	tags := tagNames(doc)
	if shingles := shingle(tags, 3); len(shingles) > 0 {
		return simhash(shingles)
	}
	return simhash(tags)
}

func tagNames(doc string) []string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

func shingle(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], "_"))
	}
	return out
}
