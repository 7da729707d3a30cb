// Package tagging derives topical tags from message text and records them,
// together with their co-occurrence edges, in the store.
package tagging

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Extraction defaults.
const (
	DefaultMinLength = 3
	DefaultMaxTags   = 5
)

var (
	hashtagRe = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	// Capitalised or CamelCase words, and snake_case identifiers.
	keywordRe = regexp.MustCompile(`\b([A-Z][a-z]+(?:[A-Z][a-z]+)*|[a-z]+(?:_[a-z]+)+)\b`)
)

// stopwords are English and Russian function words that never become tags.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true, "that": true,
	"are": true, "you": true, "not": true, "but": true, "was": true, "have": true,
	"has": true, "had": true, "will": true, "would": true, "can": true, "could": true,
	"what": true, "which": true, "how": true, "when": true, "where": true, "why": true,
	"who": true, "whom": true, "its": true, "our": true, "their": true, "your": true,
	"from": true, "into": true, "about": true, "there": true, "they": true, "them": true,
	"then": true, "than": true, "been": true, "were": true, "also": true, "just": true,
	"это": true, "что": true, "как": true, "для": true, "при": true, "над": true,
	"под": true, "из": true, "от": true, "до": true, "не": true, "на": true,
	"за": true, "к": true, "по": true, "со": true, "во": true, "или": true,
	"так": true, "все": true, "уже": true, "если": true, "они": true, "она": true,
}

// Extractor pulls a bounded, ordered set of tags out of free text. It is
// stateless and safe for concurrent use.
type Extractor struct {
	MinLength int
	MaxTags   int
}

// NewExtractor returns an Extractor. Non-positive arguments select the defaults.
func NewExtractor(minLength, maxTags int) *Extractor {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if maxTags <= 0 {
		maxTags = DefaultMaxTags
	}
	return &Extractor{MinLength: minLength, MaxTags: maxTags}
}

// Extract returns up to MaxTags lower-cased tags in discovery order:
// hashtags first, then keyword-shaped tokens, then remaining significant words.
func (e *Extractor) Extract(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	seen := make(map[string]bool)
	var tags []string
	add := func(tag string) {
		if seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	for _, m := range hashtagRe.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(m[1])
		if e.longEnough(tag) {
			add(tag)
		}
	}

	for _, m := range keywordRe.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(m[1])
		if e.longEnough(tag) && !stopwords[tag] {
			add(tag)
		}
	}

	for _, field := range strings.Fields(text) {
		tag := strings.ToLower(strings.Map(keepWordRune, field))
		if e.longEnough(tag) && !stopwords[tag] {
			add(tag)
		}
	}

	if len(tags) > e.MaxTags {
		tags = tags[:e.MaxTags]
	}
	return tags
}

func (e *Extractor) longEnough(tag string) bool {
	return utf8.RuneCountInString(tag) >= e.MinLength
}

func keepWordRune(r rune) rune {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
		return r
	}
	return -1
}
