package segment

import (
	"math"
	"unicode"
)

// Token is a segmented word with its part-of-speech tag.
type Token struct {
	Text string
	POS  string
}

// POSTokenizer splits text into part-of-speech tagged tokens.
type POSTokenizer interface {
	Cut(text string) []Token
}

// DictTokenizer segments Han text by maximum-probability path over a word DAG built from a
// Dictionary. ASCII letter and digit runs become single tokens tagged "eng" or "m" unless
// the dictionary knows them. Other characters separate tokens and are dropped.
type DictTokenizer struct {
	dict *Dictionary
}

// NewDictTokenizer returns a tokenizer over dict.
func NewDictTokenizer(dict *Dictionary) *DictTokenizer {
	if dict == nil {
		dict = NewDictionary()
	}
	return &DictTokenizer{dict: dict}
}

// Cut segments text into tagged tokens in input order.
func (t *DictTokenizer) Cut(text string) []Token {
	runes := []rune(text)
	var tokens []Token
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case isHan(r):
			j := i
			for j < len(runes) && isHan(runes[j]) {
				j++
			}
			tokens = append(tokens, t.cutHan(runes[i:j])...)
			i = j
		case isASCIIAlnum(r):
			j := i
			for j < len(runes) && isASCIIAlnum(runes[j]) {
				j++
			}
			tokens = append(tokens, t.alnumToken(string(runes[i:j])))
			i = j
		default:
			i++
		}
	}
	return tokens
}

func (t *DictTokenizer) alnumToken(word string) Token {
	if e, ok := t.dict.Lookup(word); ok {
		return Token{Text: word, POS: e.POS}
	}
	if isNumeric(word) {
		return Token{Text: word, POS: "m"}
	}
	return Token{Text: word, POS: "eng"}
}

// cutHan picks, for each start position, the word ending that maximizes the total log
// probability of the remaining sentence. Equal scores prefer the longer word.
func (t *DictTokenizer) cutHan(runes []rune) []Token {
	n := len(runes)
	maxLen := t.dict.maxLen
	if maxLen < 1 {
		maxLen = 1
	}
	best := make([]float64, n+1)
	next := make([]int, n)
	for k := n - 1; k >= 0; k-- {
		bestScore := math.Inf(-1)
		bestEnd := k
		for j := k; j < n && j-k < maxLen; j++ {
			if j > k && !t.dict.Contains(string(runes[k:j+1])) {
				continue
			}
			score := t.dict.logProb(string(runes[k:j+1])) + best[j+1]
			if score > bestScore || (score == bestScore && j > bestEnd) {
				bestScore = score
				bestEnd = j
			}
		}
		best[k] = bestScore
		next[k] = bestEnd
	}

	tokens := make([]Token, 0, n)
	for k := 0; k < n; {
		end := next[k]
		word := string(runes[k : end+1])
		pos := "x"
		if e, ok := t.dict.Lookup(word); ok {
			pos = e.POS
		}
		tokens = append(tokens, Token{Text: word, POS: pos})
		k = end + 1
	}
	return tokens
}

func isHan(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

func isASCIIAlnum(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
