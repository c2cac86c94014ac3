package analyze

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/auditkit/site-auditor/pkg/models"
)

var (
	sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)`)
	wordToken   = regexp.MustCompile(`[A-Za-z][A-Za-z'-]*`)
	vowelGroups = regexp.MustCompile(`[aeiouy]+`)
)

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "best": true, "superior": true,
	"quality": true, "reliable": true, "durable": true, "innovative": true,
}

var negativeWords = map[string]bool{
	"bad": true, "poor": true, "worst": true, "inferior": true, "cheap": true,
	"unreliable": true, "break": true, "problem": true, "issue": true,
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"but": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true, "or": true,
	"our": true, "so": true, "that": true, "the": true, "their": true, "this": true,
	"to": true, "was": true, "were": true, "will": true, "with": true, "you": true, "your": true,
}

const maxKeyPhrases = 5

// AnalyzeText scores prose. It returns nil for blank text.
func AnalyzeText(text string, tokens *TokenCounter) *models.TextAnalysis {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	wordCount := len(strings.Fields(text))
	sentences := countSentences(text)
	words := wordToken.FindAllString(text, -1)

	syllables := 0
	pos, neg := 0, 0
	for _, w := range words {
		lw := strings.ToLower(w)
		syllables += countSyllables(lw)
		if positiveWords[lw] {
			pos++
		}
		if negativeWords[lw] {
			neg++
		}
	}

	ta := &models.TextAnalysis{
		WordCount:         wordCount,
		SentenceCount:     sentences,
		AvgSentenceLength: round2(float64(wordCount) / float64(max(1, sentences))),
		TokenCount:        tokens.Count(text),
		KeyPhrases:        keyPhrases(words),
	}

	if n := len(words); n > 0 {
		wps := float64(n) / float64(max(1, sentences))
		spw := float64(syllables) / float64(n)
		ta.ReadingEase = round2(206.835 - 1.015*wps - 84.6*spw)
		ta.GradeLevel = round2(0.39*wps + 11.8*spw - 15.59)
	}
	ta.Readability = ReadabilityLabel(ta.ReadingEase)

	ta.SentimentScore = round2(float64(pos-neg) / float64(max(1, wordCount)) * 100)
	ta.Sentiment = SentimentLabel(ta.SentimentScore)
	return ta
}

// ReadabilityLabel interprets a Flesch reading ease score.
func ReadabilityLabel(score float64) string {
	switch {
	case score >= 90:
		return "Very Easy - 5th grade level"
	case score >= 80:
		return "Easy - 6th grade level"
	case score >= 70:
		return "Fairly Easy - 7th grade level"
	case score >= 60:
		return "Standard - 8th-9th grade level"
	case score >= 50:
		return "Fairly Difficult - 10th-12th grade level"
	case score >= 30:
		return "Difficult - College level"
	default:
		return "Very Difficult - College graduate level"
	}
}

// SentimentLabel interprets a sentiment score (net sentiment words per 100 words).
func SentimentLabel(score float64) string {
	switch {
	case score > 5:
		return "Very Positive"
	case score > 2:
		return "Positive"
	case score > -2:
		return "Neutral"
	case score > -5:
		return "Negative"
	default:
		return "Very Negative"
	}
}

func countSentences(text string) int {
	n := 0
	for _, part := range sentenceEnd.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return max(n, 1)
}

// countSyllables approximates syllables by vowel groups, dropping a silent
// trailing "e".
func countSyllables(word string) int {
	n := len(vowelGroups.FindAllString(word, -1))
	if n > 1 && strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") {
		n--
	}
	return max(n, 1)
}

// keyPhrases returns the most frequent two-word phrases made of non-stop
// words, most frequent first and earliest first on ties.
func keyPhrases(words []string) []string {
	type phrase struct {
		text  string
		count int
		first int
	}
	index := make(map[string]*phrase)
	var order []*phrase
	for i := 0; i+1 < len(words); i++ {
		a, b := strings.ToLower(words[i]), strings.ToLower(words[i+1])
		if stopWords[a] || stopWords[b] {
			continue
		}
		key := a + " " + b
		if p, ok := index[key]; ok {
			p.count++
			continue
		}
		p := &phrase{text: key, count: 1, first: i}
		index[key] = p
		order = append(order, p)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})
	var out []string
	for _, p := range order {
		if len(out) == maxKeyPhrases {
			break
		}
		out = append(out, p.text)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
