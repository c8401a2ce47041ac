package filter

import (
	"strings"
	"testing"

	"webharvest/pkg/config"
	"webharvest/pkg/models"
)

func doc(text string) *models.ExtractedDocument {
	return &models.ExtractedDocument{ID: "doc-1", URL: "https://example.com/p", Text: text}
}

func TestCheckAcceptsVariedText(t *testing.T) {
	text := strings.Join([]string{
		"Crawl frontiers grow quickly on well-linked sites, so the visited set matters.",
		"Politeness delays keep a sequential crawler from overwhelming a single host.",
		"Archive segments rotate on size so no single file becomes unwieldy to ship.",
		"Extraction favours precision, dropping chrome rather than risking noise.",
	}, "\n\n")

	v := NewRepetitionFilter().Check(doc(text))
	if v.Decision != models.DecisionAccepted {
		t.Fatalf("decision = %s (reason %q), want accepted", v.Decision, v.Reason)
	}
	if v.DocumentID != "doc-1" {
		t.Errorf("verdict document ID = %q", v.DocumentID)
	}
}

func TestCheckRejectsDuplicateParagraphs(t *testing.T) {
	para := "This exact paragraph shows up repeatedly across the whole page."
	text := strings.Join([]string{
		para,
		"One genuinely distinct paragraph sits in the middle of it all.",
		para,
		para,
	}, "\n\n")

	v := NewRepetitionFilter().Check(doc(text))
	if v.Decision != models.DecisionRejected {
		t.Fatal("want rejection")
	}
	if v.Reason != "dup_para_frac" {
		t.Errorf("reason = %q, want dup_para_frac", v.Reason)
	}
}

func TestCheckRejectsDuplicateLines(t *testing.T) {
	lines := []string{"A heading that appears once at the very top of the page"}
	for i := 0; i < 5; i++ {
		lines = append(lines, "buy now")
	}
	lines = append(lines, "A closing line that is also unique within this page")

	v := NewRepetitionFilter().Check(doc(strings.Join(lines, "\n")))
	if v.Decision != models.DecisionRejected {
		t.Fatal("want rejection")
	}
	if v.Reason != "dup_line_frac" {
		t.Errorf("reason = %q, want dup_line_frac", v.Reason)
	}
}

func TestCheckRejectsDuplicateLineCharMass(t *testing.T) {
	long := "An unusually long boilerplate disclaimer repeated verbatim twice here"
	lines := []string{long, long}
	for _, w := range []string{"one", "two", "three", "four", "five", "six", "seven", "eight"} {
		lines = append(lines, w)
	}

	v := NewRepetitionFilter().Check(doc(strings.Join(lines, "\n")))
	if v.Decision != models.DecisionRejected {
		t.Fatal("want rejection")
	}
	if v.Reason != "dup_line_char_frac" {
		t.Errorf("reason = %q, want dup_line_char_frac", v.Reason)
	}
}

func TestCheckRejectsDominantBigram(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("foo bar ", 20))

	v := NewRepetitionFilter().Check(doc(text))
	if v.Decision != models.DecisionRejected {
		t.Fatal("want rejection")
	}
	if v.Reason != "top_2_gram" {
		t.Errorf("reason = %q, want top_2_gram", v.Reason)
	}
}

func TestCheckRejectsDuplicatedNGrams(t *testing.T) {
	// Disable the top-n-gram checks so the duplicated-n-gram pass is what
	// gets exercised.
	f := FromConfig(&config.RepetitionThresholds{
		TopNGramFracs: []float64{0, 0, 0},
	})
	text := "alpha beta gamma delta epsilon one two three four five six seven eight nine ten alpha beta gamma delta epsilon"

	v := f.Check(doc(text))
	if v.Decision != models.DecisionRejected {
		t.Fatal("want rejection")
	}
	if v.Reason != "duplicated_5_n_grams" {
		t.Errorf("reason = %q, want duplicated_5_n_grams", v.Reason)
	}
}

func TestCheckEmptyTextFailsClosed(t *testing.T) {
	for _, text := range []string{"", "   \n\n\t  "} {
		v := NewRepetitionFilter().Check(doc(text))
		if v.Decision != models.DecisionRejected {
			t.Errorf("empty text %q not rejected", text)
		}
		if v.Reason != "indeterminate_empty_text" {
			t.Errorf("reason = %q", v.Reason)
		}
	}
}

func TestFromConfigZeroDisablesCheck(t *testing.T) {
	zero := 0.0
	f := FromConfig(&config.RepetitionThresholds{DupParaFrac: &zero, DupParaCharFrac: &zero})

	para := "the same paragraph again and again and nothing else on the page"
	text := strings.Join([]string{para, para, para}, "\n\n")

	v := f.Check(doc(text))
	// With the paragraph checks off, the identical lines trip instead.
	if v.Reason == "dup_para_frac" || v.Reason == "dup_para_char_frac" {
		t.Errorf("disabled check still fired: %q", v.Reason)
	}
}

func TestFindDuplicates(t *testing.T) {
	tests := []struct {
		name      string
		elements  []string
		wantElems int
		wantChars int
	}{
		{"no dups", []string{"a", "b", "c"}, 0, 0},
		{"one repeated twice more", []string{"aa", "b", "aa", "aa"}, 2, 4},
		{"two distinct dups", []string{"xy", "zw", "xy", "zw"}, 2, 4},
		{"empty", nil, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			elems, chars := findDuplicates(tc.elements)
			if elems != tc.wantElems || chars != tc.wantChars {
				t.Errorf("findDuplicates = (%d, %d), want (%d, %d)", elems, chars, tc.wantElems, tc.wantChars)
			}
		})
	}
}

func TestDuplicateNGramChars(t *testing.T) {
	words := strings.Fields("alpha beta gamma delta epsilon filler alpha beta gamma delta epsilon")
	// The second occurrence covers the joined phrase once.
	want := len("alphabetagammadeltaepsilon")
	if got := duplicateNGramChars(words, 5); got != want {
		t.Errorf("duplicateNGramChars = %d, want %d", got, want)
	}

	if got := duplicateNGramChars(strings.Fields("a b c"), 5); got != 0 {
		t.Errorf("short input: got %d, want 0", got)
	}
}

func TestTopNGramCharFrac(t *testing.T) {
	text := "foo bar foo bar foo bar"
	words := strings.Fields(text)
	// "foo bar" occurs three times; 3 * 7 chars over 23 text chars.
	got := topNGramCharFrac(words, 2, float64(len(text)))
	want := 21.0 / 23.0
	if got < want-1e-9 || got > want+1e-9 {
		t.Errorf("topNGramCharFrac = %f, want %f", got, want)
	}

	// A gram that never repeats contributes nothing.
	if got := topNGramCharFrac(strings.Fields("a b c d"), 2, 7); got != 0 {
		t.Errorf("unique grams: got %f, want 0", got)
	}
}
