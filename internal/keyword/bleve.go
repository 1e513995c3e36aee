package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const (
	exactBoost     = 3.0
	substringBoost = 1.0
	// query tags longer than this are not expanded into their substrings
	maxExpandRunes = 8
)

type productDoc struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// BleveIndex implements TagIndex using Bleve. Tags are indexed as untokenized keywords so a
// term query is an exact tag match.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an in-memory
// index. If you change the index mapping in code, remove the index directory to rebuild it.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("tags", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("product", docMapping)
	im.DefaultType = "product"
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexProduct indexes (or reindexes) a product's title and tags.
func (b *BleveIndex) IndexProduct(ctx context.Context, id int64, title string, tags []string) error {
	return b.index.Index(strconv.FormatInt(id, 10), productDoc{Title: title, Tags: tags})
}

// Search returns products having any tag equal to, containing, or contained in one of tags.
// Exact matches score higher. Tags shorter than two characters only match exactly.
func (b *BleveIndex) Search(ctx context.Context, tags []string, limit int) ([]*KeywordResult, error) {
	q := buildTagQuery(tags)
	if q == nil || limit <= 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.SortBy([]string{"-_score", "_id"})
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, &KeywordResult{ID: id, Score: hit.Score})
	}
	return out, nil
}

// buildTagQuery ORs, for each tag, an exact term query, a wildcard query for indexed tags
// containing it, and term queries for each of its own substrings.
func buildTagQuery(tags []string) blevequery.Query {
	var queries []blevequery.Query
	seen := make(map[string]struct{})
	addTerm := func(term string, boost float64) {
		key := term + "|" + strconv.FormatFloat(boost, 'f', -1, 64)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		tq := bleve.NewTermQuery(term)
		tq.SetField("tags")
		tq.SetBoost(boost)
		queries = append(queries, tq)
	}

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		addTerm(tag, exactBoost)

		n := utf8.RuneCountInString(tag)
		if n < 2 || strings.ContainsAny(tag, "*?") {
			continue
		}
		wq := bleve.NewWildcardQuery("*" + tag + "*")
		wq.SetField("tags")
		wq.SetBoost(substringBoost)
		queries = append(queries, wq)

		if n > maxExpandRunes {
			continue
		}
		runes := []rune(tag)
		for i := 0; i < n; i++ {
			for j := i + 2; j <= n; j++ {
				if j-i == n {
					continue
				}
				addTerm(string(runes[i:j]), substringBoost)
			}
		}
	}
	if len(queries) == 0 {
		return nil
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a product from the index.
func (b *BleveIndex) Delete(ctx context.Context, id int64) error {
	return b.index.Delete(strconv.FormatInt(id, 10))
}

// DocCount returns the total number of products in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
