package memory

import (
	"regexp"
	"sort"
	"strings"
)

const minKeywordLength = 3

var wordPattern = regexp.MustCompile(`[a-zàèéìòóù]+`)

// stopWords covers the function words of both supported play languages.
var stopWords = map[string]struct{}{
	// Italian
	"il": {}, "lo": {}, "la": {}, "i": {}, "gli": {}, "le": {},
	"un": {}, "uno": {}, "una": {},
	"di": {}, "del": {}, "della": {}, "dei": {}, "delle": {},
	"a": {}, "al": {}, "alla": {}, "ai": {}, "alle": {},
	"da": {}, "dal": {}, "dalla": {}, "dai": {}, "dalle": {},
	"in": {}, "nel": {}, "nella": {}, "nei": {}, "nelle": {},
	"con": {}, "su": {}, "per": {}, "tra": {}, "fra": {},
	"è": {}, "sono": {}, "era": {}, "erano": {},
	"ho": {}, "hai": {}, "ha": {}, "abbiamo": {}, "avete": {}, "hanno": {},
	// English
	"the": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "must": {}, "can": {},
	"this": {}, "that": {}, "these": {}, "those": {},
	"you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {},
	"me": {}, "him": {}, "her": {}, "us": {}, "them": {},
	"my": {}, "your": {}, "his": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "about": {},
}

// extractKeywords lowercases text and returns its significant words.
// Stop words and words shorter than three characters are dropped.
func extractKeywords(text string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len([]rune(word)) < minKeywordLength {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		keywords[word] = struct{}{}
	}
	return keywords
}

// keywordSimilarity is the Jaccard index of the keyword sets of two
// texts. Either text having no keywords scores 0.
func keywordSimilarity(a, b string) float64 {
	ka := extractKeywords(a)
	kb := extractKeywords(b)
	if len(ka) == 0 || len(kb) == 0 {
		return 0
	}
	intersection := 0
	for w := range ka {
		if _, ok := kb[w]; ok {
			intersection++
		}
	}
	union := len(ka) + len(kb) - intersection
	return float64(intersection) / float64(union)
}

func sortedKeywords(set map[string]struct{}) []string {
	words := make([]string, 0, len(set))
	for w := range set {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}
