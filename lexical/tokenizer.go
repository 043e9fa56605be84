package lexical

import (
	"strings"
	"unicode"
)

// Tokenizer turns text into index terms. Implementations must be safe
// for concurrent use.
//
// Tokenization quality is domain-specific, so the tokenizer is injected
// at construction time rather than hard-coded. The engine only
// guarantees that the index is recomputed whenever source text changes.
type Tokenizer interface {
	Tokenize(text string) []string
	Name() string
}

// Whitespace is the default tokenizer: lowercase and split on Unicode
// whitespace. Adequate for languages with whitespace word boundaries.
type Whitespace struct{}

// Tokenize splits text on whitespace after lowercasing.
func (Whitespace) Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Name returns the unique name of the tokenizer ("whitespace").
func (Whitespace) Name() string { return "whitespace" }

// Bigram is a segmentation strategy for scripts without whitespace
// word boundaries (CJK and similar). Runs of Han/Hiragana/Katakana/
// Hangul are emitted as overlapping character bigrams; everything else
// falls back to whitespace tokenization.
type Bigram struct{}

// Name returns the unique name of the tokenizer ("bigram").
func (Bigram) Name() string { return "bigram" }

// Tokenize segments text into bigrams for unspaced scripts and
// whitespace tokens for the rest.
func (Bigram) Tokenize(text string) []string {
	var tokens []string
	var latin []rune
	var cjk []rune

	flushLatin := func() {
		if len(latin) > 0 {
			tokens = append(tokens, strings.Fields(strings.ToLower(string(latin)))...)
			latin = latin[:0]
		}
	}
	flushCJK := func() {
		if len(cjk) == 1 {
			tokens = append(tokens, string(cjk))
		}
		for i := 0; i+1 < len(cjk); i++ {
			tokens = append(tokens, string(cjk[i:i+2]))
		}
		cjk = cjk[:0]
	}

	for _, r := range text {
		if isUnspaced(r) {
			flushLatin()
			cjk = append(cjk, r)
		} else {
			flushCJK()
			latin = append(latin, r)
		}
	}
	flushLatin()
	flushCJK()

	return tokens
}

func isUnspaced(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
