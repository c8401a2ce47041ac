package filter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"webharvest/pkg/config"
	"webharvest/pkg/models"
)

// RepetitionFilter applies the Gopher repetition heuristics to an extracted
// document: fractions of duplicated lines and paragraphs (by element and by
// character mass), the character share of the single most common n-gram for
// small n, and the character share covered by any duplicated n-gram for
// larger n. Exceeding any threshold rejects the document; the first
// exceeded check names the rejection reason.
//
// Each document is judged against itself only, so verdicts do not depend on
// what else is being processed or in what order.
type RepetitionFilter struct {
	dupLineFrac     float64
	dupParaFrac     float64
	dupLineCharFrac float64
	dupParaCharFrac float64
	topNGramFracs   []float64 // Thresholds for n = 2, 3, ...
	dupNGramFracs   []float64 // Thresholds for n = 5, 6, ...
}

// Default thresholds from the Gopher paper.
const (
	DefaultDupLineFrac     = 0.30
	DefaultDupParaFrac     = 0.30
	DefaultDupLineCharFrac = 0.20
	DefaultDupParaCharFrac = 0.20
)

var (
	defaultTopNGramFracs = []float64{0.20, 0.18, 0.16}             // 2-, 3-, 4-grams
	defaultDupNGramFracs = []float64{0.15, 0.14, 0.13, 0.12, 0.11, 0.10} // 5- through 10-grams
)

// NewRepetitionFilter returns a filter with the default thresholds.
func NewRepetitionFilter() *RepetitionFilter {
	return &RepetitionFilter{
		dupLineFrac:     DefaultDupLineFrac,
		dupParaFrac:     DefaultDupParaFrac,
		dupLineCharFrac: DefaultDupLineCharFrac,
		dupParaCharFrac: DefaultDupParaCharFrac,
		topNGramFracs:   defaultTopNGramFracs,
		dupNGramFracs:   defaultDupNGramFracs,
	}
}

// FromConfig overlays configured thresholds on the defaults. A nil config
// section means all defaults; a zero threshold disables that check.
func FromConfig(t *config.RepetitionThresholds) *RepetitionFilter {
	f := NewRepetitionFilter()
	if t == nil {
		return f
	}
	if t.DupLineFrac != nil {
		f.dupLineFrac = *t.DupLineFrac
	}
	if t.DupParaFrac != nil {
		f.dupParaFrac = *t.DupParaFrac
	}
	if t.DupLineCharFrac != nil {
		f.dupLineCharFrac = *t.DupLineCharFrac
	}
	if t.DupParaCharFrac != nil {
		f.dupParaCharFrac = *t.DupParaCharFrac
	}
	if len(t.TopNGramFracs) > 0 {
		f.topNGramFracs = t.TopNGramFracs
	}
	if len(t.DupNGramFracs) > 0 {
		f.dupNGramFracs = t.DupNGramFracs
	}
	return f
}

// Check judges one document. Empty or whitespace-only text is indeterminate
// and fails closed to rejection.
func (f *RepetitionFilter) Check(doc *models.ExtractedDocument) models.FilterVerdict {
	verdict := models.FilterVerdict{DocumentID: doc.ID, Decision: models.DecisionAccepted}
	text := doc.Text
	if strings.TrimSpace(text) == "" {
		verdict.Decision = models.DecisionRejected
		verdict.Reason = "indeterminate_empty_text"
		return verdict
	}
	textChars := float64(utf8.RuneCountInString(text))

	paragraphs := splitNonEmpty(text, "\n\n")
	if reason := f.checkDuplicates(paragraphs, textChars, f.dupParaFrac, f.dupParaCharFrac, "dup_para_frac", "dup_para_char_frac"); reason != "" {
		verdict.Decision = models.DecisionRejected
		verdict.Reason = reason
		return verdict
	}

	lines := splitNonEmpty(text, "\n")
	if reason := f.checkDuplicates(lines, textChars, f.dupLineFrac, f.dupLineCharFrac, "dup_line_frac", "dup_line_char_frac"); reason != "" {
		verdict.Decision = models.DecisionRejected
		verdict.Reason = reason
		return verdict
	}

	words := strings.Fields(text)

	for i, frac := range f.topNGramFracs {
		n := i + 2
		if frac <= 0 {
			continue
		}
		if topNGramCharFrac(words, n, textChars) > frac {
			verdict.Decision = models.DecisionRejected
			verdict.Reason = fmt.Sprintf("top_%d_gram", n)
			return verdict
		}
	}

	for i, frac := range f.dupNGramFracs {
		n := i + 5
		if frac <= 0 {
			continue
		}
		if float64(duplicateNGramChars(words, n))/textChars > frac {
			verdict.Decision = models.DecisionRejected
			verdict.Reason = fmt.Sprintf("duplicated_%d_n_grams", n)
			return verdict
		}
	}

	return verdict
}

func (f *RepetitionFilter) checkDuplicates(elements []string, textChars, elemFrac, charFrac float64, elemReason, charReason string) string {
	if len(elements) == 0 {
		return ""
	}
	dupElems, dupChars := findDuplicates(elements)
	if elemFrac > 0 && float64(dupElems)/float64(len(elements)) > elemFrac {
		return elemReason
	}
	if charFrac > 0 && float64(dupChars)/textChars > charFrac {
		return charReason
	}
	return ""
}

// findDuplicates counts repeat occurrences of elements (every occurrence
// after the first) and the character mass of those repeats.
func findDuplicates(elements []string) (dupElems, dupChars int) {
	seen := make(map[string]struct{}, len(elements))
	for _, el := range elements {
		if _, ok := seen[el]; ok {
			dupElems++
			dupChars += utf8.RuneCountInString(el)
			continue
		}
		seen[el] = struct{}{}
	}
	return dupElems, dupChars
}

// topNGramCharFrac is the character share of the most frequent word n-gram.
// An n-gram that occurs only once contributes nothing.
func topNGramCharFrac(words []string, n int, textChars float64) float64 {
	if len(words) < n || textChars == 0 {
		return 0
	}
	counts := make(map[string]int, len(words))
	var topGram string
	topCount := 0
	for i := 0; i+n <= len(words); i++ {
		gram := strings.Join(words[i:i+n], " ")
		counts[gram]++
		if counts[gram] > topCount {
			topCount = counts[gram]
			topGram = gram
		}
	}
	if topCount <= 1 {
		return 0
	}
	return float64(topCount*utf8.RuneCountInString(topGram)) / textChars
}

// duplicateNGramChars walks the word sequence and counts the characters
// covered by n-grams already seen earlier in the document. A repeated
// n-gram advances the cursor past itself so overlapping repeats are not
// double-counted.
func duplicateNGramChars(words []string, n int) int {
	if len(words) < n {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	repeated := 0
	idx := 0
	for idx <= len(words)-n {
		gram := strings.Join(words[idx:idx+n], "")
		if _, ok := seen[gram]; ok {
			repeated += utf8.RuneCountInString(gram)
			idx += n
			continue
		}
		seen[gram] = struct{}{}
		idx++
	}
	return repeated
}

func splitNonEmpty(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

