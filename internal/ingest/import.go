package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/models"
)

// ImportReport counts the outcome of an import. Skipped covers unparsable records and ids
// that already exist.
type ImportReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

var (
	lineIDRe       = regexp.MustCompile(`^(\d+)`)
	lineURLRe      = regexp.MustCompile(`https?://\S+`)
	lineCategoryRe = regexp.MustCompile(`(\d+)-(\d+)`)
)

// maxLineSize bounds a single raw product line.
const maxLineSize = 1 << 20

// ImportFile adds every product in path. Files ending in .xlsx are read as a sheet with a
// header row; anything else is read as raw product lines (see ParseLine).
func (i *Ingester) ImportFile(ctx context.Context, path string) (*ImportReport, error) {
	var (
		inputs []models.ProductInput
		bad    int
		err    error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		inputs, bad, err = readSheet(path)
	} else {
		inputs, bad, err = readLines(path)
	}
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Skipped: bad}
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if in.ID != 0 {
			exists, err := i.exists(ctx, in.ID)
			if err != nil {
				return report, err
			}
			if exists {
				report.Skipped++
				continue
			}
		}
		if _, err := i.AddProduct(ctx, in); err != nil {
			report.Failed++
			if i.logger != nil {
				i.logger.Warn("failed to import product", zap.Int64("id", in.ID), zap.String("title", in.Title), zap.Error(err))
			}
			continue
		}
		report.Imported++
	}
	if i.logger != nil {
		i.logger.Info("import finished",
			zap.String("path", path),
			zap.Int("imported", report.Imported),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

func (i *Ingester) exists(ctx context.Context, id int64) (bool, error) {
	_, err := i.storage.GetProduct(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to look up product %d: %w", id, err)
}

// ParseLine parses a raw product line: a leading numeric id immediately followed by the
// title, then an http(s) image url, then the category as "N-M" where N is the category id.
// The url and category are optional. ok is false when the line has no id or no title.
func ParseLine(line string) (in models.ProductInput, ok bool) {
	line = strings.TrimSpace(line)
	m := lineIDRe.FindString(line)
	if m == "" {
		return in, false
	}
	id, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return in, false
	}
	in.ID = id
	rest := line[len(m):]

	title, tail := rest, ""
	if loc := lineURLRe.FindStringIndex(rest); loc != nil {
		title, tail = rest[:loc[0]], rest[loc[1]:]
		in.ImageURL = rest[loc[0]:loc[1]]
	} else if loc := lineCategoryRe.FindStringIndex(rest); loc != nil {
		title, tail = rest[:loc[0]], rest[loc[0]:]
	}
	if c := lineCategoryRe.FindStringSubmatch(tail); c != nil {
		if cid, err := strconv.ParseInt(c[1], 10, 64); err == nil {
			in.CategoryID = &cid
		}
	}

	in.Title = NormalizeTitle(title)
	return in, in.Title != ""
}

func readLines(path string) ([]models.ProductInput, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	var (
		inputs []models.ProductInput
		bad    int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		in, ok := ParseLine(line)
		if !ok {
			bad++
			continue
		}
		inputs = append(inputs, in)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read import file: %w", err)
	}
	return inputs, bad, nil
}

// sheetColumns are the recognized header names of a product sheet.
var sheetColumns = []string{"id", "title", "image_url", "category_id", "price", "description", "keywords"}

// readSheet reads the first sheet of an .xlsx workbook. The first row is the header; a
// title column is required and unknown columns are ignored.
func readSheet(path string) ([]models.ProductInput, int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, 0, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	col := make(map[string]int, len(sheetColumns))
	for j, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = j
	}
	if _, ok := col["title"]; !ok {
		return nil, 0, fmt.Errorf("sheet %q has no title column", sheets[0])
	}
	cell := func(row []string, name string) string {
		j, ok := col[name]
		if !ok || j >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[j])
	}

	var (
		inputs []models.ProductInput
		bad    int
	)
	for _, row := range rows[1:] {
		in, ok := sheetRow(func(name string) string { return cell(row, name) })
		if !ok {
			bad++
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, bad, nil
}

func sheetRow(cell func(string) string) (in models.ProductInput, ok bool) {
	in.Title = NormalizeTitle(cell("title"))
	if in.Title == "" {
		return in, false
	}
	if v := cell("id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return in, false
		}
		in.ID = id
	}
	if v := cell("category_id"); v != "" {
		cid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return in, false
		}
		in.CategoryID = &cid
	}
	if v := cell("price"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, false
		}
		in.Price = price
	}
	in.ImageURL = cell("image_url")
	in.Description = cell("description")
	in.Keywords = splitKeywords(cell("keywords"))
	return in, true
}

// splitKeywords splits a keywords cell on the list separators used in product sheets.
func splitKeywords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ',', '，', '、', '|':
			return true
		}
		return false
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
