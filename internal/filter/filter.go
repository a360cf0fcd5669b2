package filter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const mask = '*'

// WordFilter redacts whole words found in a denylist. Matching is
// case-insensitive and never fires inside a longer word.
type WordFilter struct {
	banned map[string]struct{}
	logger zerolog.Logger
}

// New builds a filter over words. Entries are lower-cased and deduplicated;
// entries that are not a single word can never match and are skipped.
func New(words []string, logger *zerolog.Logger) *WordFilter {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	f := &WordFilter{
		banned: make(map[string]struct{}, len(words)),
		logger: l.With().Str("component", "filter").Logger(),
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if !isSingleWord(w) {
			f.logger.Warn().Str("entry", w).Msg("banned entry is not a single word, skipping")
			continue
		}
		f.banned[w] = struct{}{}
	}
	return f
}

// NewDefault builds a filter over DefaultBannedWords plus extra.
func NewDefault(extra []string, logger *zerolog.Logger) *WordFilter {
	words := make([]string, 0, len(DefaultBannedWords)+len(extra))
	words = append(words, DefaultBannedWords...)
	words = append(words, extra...)
	return New(words, logger)
}

// Size is the number of distinct banned words.
func (f *WordFilter) Size() int {
	return len(f.banned)
}

// Filter replaces every banned word with a run of '*' of the same length.
// If anything goes wrong the input is returned untouched.
func (f *WordFilter) Filter(text string) (out string) {
	if text == "" {
		return text
	}
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().Interface("panic", r).Msg("filtering failed, passing text through")
			out = text
		}
	}()

	var (
		b       strings.Builder
		changed bool
	)
	b.Grow(len(text))
	forEachToken(text, func(token string, word bool) bool {
		if word && f.isBanned(token) {
			b.WriteString(strings.Repeat(string(mask), utf8.RuneCountInString(token)))
			changed = true
		} else {
			b.WriteString(token)
		}
		return true
	})
	if !changed {
		return text
	}
	return b.String()
}

// IsProfane reports whether text contains at least one banned word.
func (f *WordFilter) IsProfane(text string) (profane bool) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().Interface("panic", r).Msg("profanity check failed")
			profane = false
		}
	}()

	forEachToken(text, func(token string, word bool) bool {
		if word && f.isBanned(token) {
			profane = true
			return false
		}
		return true
	})
	return profane
}

func (f *WordFilter) isBanned(word string) bool {
	_, ok := f.banned[strings.ToLower(word)]
	return ok
}

// forEachToken splits text into maximal runs of word and non-word
// characters and hands them to fn in order. fn returns false to stop.
func forEachToken(text string, fn func(token string, word bool) bool) {
	start := 0
	inWord := false
	for i, r := range text {
		w := isWordRune(r)
		if i == 0 {
			inWord = w
			continue
		}
		if w != inWord {
			if !fn(text[start:i], inWord) {
				return
			}
			start = i
			inWord = w
		}
	}
	if start < len(text) {
		fn(text[start:], inWord)
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.Is(unicode.Mn, r)
}

func isSingleWord(s string) bool {
	for _, r := range s {
		if !isWordRune(r) {
			return false
		}
	}
	return true
}
