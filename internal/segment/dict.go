package segment

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

//go:embed dict.txt
var defaultDict string

// Entry is a dictionary word with its corpus frequency and part-of-speech tag.
type Entry struct {
	Freq float64
	POS  string
}

// Dictionary is a frequency and part-of-speech word list. It is built once and then read-only.
type Dictionary struct {
	entries map[string]Entry
	total   float64
	maxLen  int
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{entries: make(map[string]Entry)}
}

// DefaultDictionary returns the built-in product-domain dictionary.
func DefaultDictionary() *Dictionary {
	d, err := ReadDictionary(strings.NewReader(defaultDict))
	if err != nil {
		panic(fmt.Sprintf("segment: built-in dictionary is invalid: %v", err))
	}
	return d
}

// LoadDictionary reads a dictionary file. See ReadDictionary.
func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer f.Close()
	return ReadDictionary(f)
}

// ReadDictionary parses "word [freq [pos]]" lines. Missing frequency defaults to 1 and
// missing part of speech to "x".
func ReadDictionary(r io.Reader) (*Dictionary, error) {
	d := NewDictionary()
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		freq := 1.0
		pos := "x"
		if len(fields) > 1 {
			f, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse frequency: %w", lineNo, err)
			}
			freq = f
		}
		if len(fields) > 2 {
			pos = fields[2]
		}
		d.Add(fields[0], freq, pos)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dictionary: %w", err)
	}
	return d, nil
}

// Add inserts or replaces a word. Use only while building the dictionary.
func (d *Dictionary) Add(word string, freq float64, pos string) {
	if word == "" {
		return
	}
	if freq <= 0 {
		freq = 1
	}
	if old, ok := d.entries[word]; ok {
		d.total -= old.Freq
	}
	d.entries[word] = Entry{Freq: freq, POS: pos}
	d.total += freq
	if n := utf8.RuneCountInString(word); n > d.maxLen {
		d.maxLen = n
	}
}

// Lookup returns the entry for word.
func (d *Dictionary) Lookup(word string) (Entry, bool) {
	e, ok := d.entries[word]
	return e, ok
}

// Contains reports whether word is in the dictionary.
func (d *Dictionary) Contains(word string) bool {
	_, ok := d.entries[word]
	return ok
}

// Words returns all words in sorted order.
func (d *Dictionary) Words() []string {
	words := make([]string, 0, len(d.entries))
	for w := range d.entries {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// Len returns the number of words.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// logProb returns log(freq/total) for word, treating unknown words as frequency 1.
func (d *Dictionary) logProb(word string) float64 {
	total := d.total
	if total <= 0 {
		total = 1
	}
	freq := 1.0
	if e, ok := d.entries[word]; ok {
		freq = e.Freq
	}
	return math.Log(freq) - math.Log(total)
}
