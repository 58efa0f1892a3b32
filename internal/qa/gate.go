package qa

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/translator"
)

// Thresholds tune the quality rules. Zero values fall back to defaults at
// evaluation time so a partially configured struct stays usable.
type Thresholds struct {
	// MaxHanRatio is the ceiling on Han characters in the translated text;
	// above it the translation leaked untranslated source script.
	MaxHanRatio float64
	// MaxCJKPunctRatio is the ceiling on CJK punctuation marks.
	MaxCJKPunctRatio float64
	// MinAbstractRunes is the minimum length of the translated abstract;
	// shorter output usually means truncation or a degenerate reply.
	MinAbstractRunes int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxHanRatio:      0.05,
		MaxCJKPunctRatio: 0.02,
		MinAbstractRunes: 80,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.MaxHanRatio <= 0 {
		t.MaxHanRatio = d.MaxHanRatio
	}
	if t.MaxCJKPunctRatio <= 0 {
		t.MaxCJKPunctRatio = d.MaxCJKPunctRatio
	}
	if t.MinAbstractRunes <= 0 {
		t.MinAbstractRunes = d.MinAbstractRunes
	}
	return t
}

// Verdict is the gate's decision. A flagged verdict carries every reason that
// triggered, not just the first.
type Verdict struct {
	Pass    bool
	Reasons []string
}

func (v Verdict) Summary() string {
	return strings.Join(v.Reasons, "; ")
}

const cjkPunctuation = "，。、；：！？（）《》【】「」『』" + "“”‘’" + "…—·"

// Evaluate applies the quality rules to a translated paper. It is a pure
// function: the same document always yields the same verdict.
func Evaluate(doc *translator.TranslatedPaper, t Thresholds) Verdict {
	t = t.withDefaults()
	reasons := make([]string, 0)

	text := doc.Title + "\n" + doc.Abstract
	total, han, punct := 0, 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.Is(unicode.Han, r) {
			han++
		}
		if strings.ContainsRune(cjkPunctuation, r) {
			punct++
		}
	}

	if total > 0 {
		if ratio := float64(han) / float64(total); ratio > t.MaxHanRatio {
			reasons = append(reasons, fmt.Sprintf("han character ratio %.3f exceeds %.3f", ratio, t.MaxHanRatio))
		}
		if ratio := float64(punct) / float64(total); ratio > t.MaxCJKPunctRatio {
			reasons = append(reasons, fmt.Sprintf("cjk punctuation ratio %.3f exceeds %.3f", ratio, t.MaxCJKPunctRatio))
		}
	}

	if n := utf8.RuneCountInString(doc.Abstract); n < t.MinAbstractRunes {
		reasons = append(reasons, fmt.Sprintf("translated abstract has %d runes, minimum is %d", n, t.MinAbstractRunes))
	}

	if info := whatlanggo.Detect(doc.Abstract); info.IsReliable() && info.Lang.Iso6391() == "zh" {
		reasons = append(reasons, "abstract language detected as Chinese")
	}

	return Verdict{Pass: len(reasons) == 0, Reasons: reasons}
}
