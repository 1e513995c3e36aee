// Package segment extracts tags from product text by part-of-speech segmentation with
// vocabulary-driven fallbacks.
package segment

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultMaxTags caps the number of tags ExtractTags returns.
const DefaultMaxTags = 10

// DefaultAllowedPOS are nouns, proper nouns, verbs, adjectives, measure words, and English words.
var DefaultAllowedPOS = []string{"n", "nr", "ns", "nt", "nw", "nz", "v", "vn", "a", "ad", "an", "q", "eng"}

// Vocabulary reports membership in the embedding vocabulary.
type Vocabulary interface {
	Contains(word string) bool
}

// Segmenter turns free text into tags. It is immutable after construction and safe for
// concurrent use.
type Segmenter struct {
	tokenizer    POSTokenizer
	vocab        Vocabulary
	requireVocab bool
	stopwords    map[string]struct{}
	allowedPOS   map[string]struct{}
	maxTags      int
	logger       *zap.Logger // optional; when set, logs debug events
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithVocabulary enables whole-phrase matching and the substring and single-character
// fallbacks. When require is true, segmented tokens must also be in the vocabulary.
func WithVocabulary(v Vocabulary, require bool) Option {
	return func(s *Segmenter) {
		s.vocab = v
		s.requireVocab = require
	}
}

// WithStopwords replaces the default stopword list.
func WithStopwords(words []string) Option {
	return func(s *Segmenter) { s.stopwords = toSet(words) }
}

// WithAllowedPOS replaces the default part-of-speech allow list.
func WithAllowedPOS(tags []string) Option {
	return func(s *Segmenter) {
		if len(tags) > 0 {
			s.allowedPOS = toSet(tags)
		}
	}
}

// WithMaxTags sets the tag cap for ExtractTags.
func WithMaxTags(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.maxTags = n
		}
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Segmenter) { s.logger = l }
}

// NewSegmenter returns a segmenter over tokenizer. A nil tokenizer uses the built-in dictionary.
func NewSegmenter(tokenizer POSTokenizer, opts ...Option) *Segmenter {
	if tokenizer == nil {
		tokenizer = NewDictTokenizer(DefaultDictionary())
	}
	s := &Segmenter{
		tokenizer:  tokenizer,
		stopwords:  toSet(DefaultStopwords),
		allowedPOS: toSet(DefaultAllowedPOS),
		maxTags:    DefaultMaxTags,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExtractTags returns up to the configured number of distinct tags in discovery order.
// Empty input yields no tags.
func (s *Segmenter) ExtractTags(text string) []string {
	words := s.Segment(text)
	tags := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		tags = append(tags, w)
		if len(tags) == s.maxTags {
			break
		}
	}
	return tags
}

// Segment returns the meaningful words of text in order, duplicates included. Stages run in
// priority order and each runs only when the previous produced nothing: whole-phrase
// vocabulary match, filtered part-of-speech segmentation, vocabulary substrings of two or
// more characters, single vocabulary characters.
func (s *Segmenter) Segment(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.vocab != nil && s.vocab.Contains(text) {
		s.debug("whole phrase match", text, nil)
		return []string{text}
	}

	var words []string
	for _, tok := range s.tokenizer.Cut(text) {
		if !s.meaningful(tok) {
			continue
		}
		if s.vocab != nil && s.requireVocab && !s.vocab.Contains(tok.Text) {
			continue
		}
		words = append(words, tok.Text)
	}
	if len(words) > 0 || s.vocab == nil {
		s.debug("pos segmentation", text, words)
		return words
	}

	words = s.substringFallback(text)
	if len(words) > 0 {
		s.debug("substring fallback", text, words)
		return words
	}
	words = s.singleCharFallback(text)
	s.debug("single character fallback", text, words)
	return words
}

func (s *Segmenter) meaningful(tok Token) bool {
	if _, stop := s.stopwords[tok.Text]; stop {
		return false
	}
	if utf8.RuneCountInString(tok.Text) <= 1 {
		return false
	}
	if isNumeric(tok.Text) {
		return false
	}
	_, ok := s.allowedPOS[tok.POS]
	return ok
}

// substringFallback takes, for every start position, the shortest vocabulary word of at
// least two characters beginning there.
func (s *Segmenter) substringFallback(text string) []string {
	runes := []rune(text)
	var words []string
	for i := range runes {
		for j := i + 2; j <= len(runes); j++ {
			if sub := string(runes[i:j]); s.vocab.Contains(sub) {
				words = append(words, sub)
				break
			}
		}
	}
	return words
}

func (s *Segmenter) singleCharFallback(text string) []string {
	var words []string
	for _, r := range text {
		if c := string(r); s.vocab.Contains(c) {
			words = append(words, c)
		}
	}
	return words
}

func (s *Segmenter) debug(stage, text string, words []string) {
	if s.logger != nil {
		s.logger.Debug("segmented", zap.String("stage", stage), zap.String("text", text), zap.Strings("words", words))
	}
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
