package tokenizer

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var ErrNoTokens = errors.New("sentence has no tokens")

var frenchStopWords = []string{
	"a", "au", "aux", "avec", "c", "ce", "ces", "d", "dans", "de", "des", "du",
	"elle", "en", "et", "eux", "il", "j", "je", "l", "la", "le", "les", "leur",
	"lui", "m", "ma", "mais", "me", "mes", "moi", "mon", "n", "ne", "nos",
	"notre", "nous", "on", "ou", "par", "pas", "pour", "qu", "que", "qui", "s",
	"sa", "se", "ses", "son", "sur", "t", "ta", "te", "tes", "toi", "ton", "tu",
	"un", "une", "vos", "votre", "vous", "y", "à", "est", "sont",
}

type Tokenizer struct {
	lang      language.Tag
	stopWords map[string]struct{}
}

// New returns a tokenizer lowercasing with the rules of lang and dropping
// stopWords.
func New(lang language.Tag, stopWords []string) *Tokenizer {
	t := &Tokenizer{lang: lang, stopWords: make(map[string]struct{}, len(stopWords))}

	for _, w := range stopWords {
		t.stopWords[w] = struct{}{}
	}

	return t
}

func NewFrench() *Tokenizer {
	return New(language.French, frenchStopWords)
}

// Tokens normalises text and splits it into words. A leading '#' is kept so
// hashtags stay distinguishable from plain words.
func (t *Tokenizer) Tokens(text string) ([]string, error) {
	// Casers are stateful, one per call.
	lowered := cases.Lower(t.lang).String(norm.NFKC.String(text))

	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '#'
	})

	tokens := make([]string, 0, len(fields))

	for _, field := range fields {
		token := strings.ReplaceAll(field, "#", "")

		if token == "" {
			continue
		}

		if strings.HasPrefix(field, "#") {
			token = "#" + token
		} else if _, ok := t.stopWords[token]; ok {
			continue
		}

		tokens = append(tokens, token)
	}

	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}

	return tokens, nil
}

// Tokenize returns the tokens of text joined by single spaces.
func (t *Tokenizer) Tokenize(text string) (string, error) {
	tokens, err := t.Tokens(text)

	if err != nil {
		return "", err
	}

	return strings.Join(tokens, " "), nil
}
