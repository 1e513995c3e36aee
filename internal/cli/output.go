// Package cli formats command results for the Osusume CLI.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/hyperjump/osusume/internal/ingest"
	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// titleWidth is the number of characters of a product title shown in text output.
const titleWidth = 40

// ParseOutputFormat validates a --format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteResult writes a recommendation result.
func WriteResult(w io.Writer, res *models.Result, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	cached := ""
	if res.Cached {
		cached = ", cached"
	}
	fmt.Fprintf(w, "\n%d recommendations (%s, confidence %s%s)\n\n", res.Total, res.Provenance, res.Confidence, cached)
	for i, it := range res.Items {
		category := "-"
		if it.CategoryID != nil {
			category = fmt.Sprintf("%d", *it.CategoryID)
		}
		fmt.Fprintf(w, "%3d. [%d] %-*s  similarity %.4f  category %s\n",
			i+1, it.ProductID, titleWidth, utils.Truncate(it.Title, titleWidth), it.Similarity, category)
	}
	return nil
}

// WriteBatch writes batch results in request order.
func WriteBatch(w io.Writer, ids []int64, out *models.BatchResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, out)
	}
	for _, id := range ids {
		res, ok := out.Results[id]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "\n=== product %d ===", id)
		if msg, failed := out.Errors[id]; failed {
			fmt.Fprintf(w, "\nerror: %s\n", msg)
			continue
		}
		if err := WriteResult(w, res, OutputText); err != nil {
			return err
		}
	}
	return nil
}

// WriteTags writes extracted tags, one line in text format.
func WriteTags(w io.Writer, text string, tags []string, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, map[string]interface{}{"text": text, "tags": tags, "count": len(tags)})
	}
	fmt.Fprintf(w, "%s\n", strings.Join(tags, " "))
	return nil
}

// WriteClassification writes a classification with its tags.
func WriteClassification(w io.Writer, tags []string, c models.Classification, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, map[string]interface{}{"tags": tags, "classification": c})
	}
	fmt.Fprintf(w, "tags: %s\n", strings.Join(tags, " "))
	if c.CategoryID == nil {
		fmt.Fprintf(w, "category: unclassified (best score %.2f)\n", c.Score)
		return nil
	}
	fmt.Fprintf(w, "category: %d %s (score %.2f)\n", *c.CategoryID, c.Name, c.Score)
	return nil
}

// WritePrecompute writes a precompute report under a label such as "tags".
func WritePrecompute(w io.Writer, label string, r *models.PrecomputeReport, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, map[string]interface{}{label: r})
	}
	fmt.Fprintf(w, "%s: %d computed, %d failed, %d skipped\n", label, r.Success, r.Failed, r.Skipped)
	return nil
}

// WriteStats writes the stats report.
func WriteStats(w io.Writer, s *models.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, s)
	}
	fmt.Fprintf(w, "Products:      %d (%d with vectors, coverage %.2f%%)\n",
		s.TotalProducts, s.ProductsWithVectors, s.VectorCoverage*100)
	fmt.Fprintf(w, "Tags:          %d total, %d unique (%d with vectors, coverage %.2f%%)\n",
		s.TotalTags, s.UniqueTags, s.TagVectorsCount, s.TagVectorCoverage*100)
	fmt.Fprintf(w, "Categories:    %d\n", s.TotalCategories)
	fmt.Fprintf(w, "Users:         %d (%d with vectors)\n", s.TotalUsers, s.UsersWithVectors)
	fmt.Fprintf(w, "Interactions:  %d\n", s.TotalInteractions)
	fmt.Fprintf(w, "Vector index:  %s, %d vectors\n", s.VectorIndexType, s.VectorIndexSize)
	fmt.Fprintf(w, "Cache:         %d/%d entries, %d hits, %d misses, %d evictions\n",
		s.Cache.Size, s.Cache.MaxSize, s.Cache.Hits, s.Cache.Misses, s.Cache.Evictions)
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk usage:    %s\n", formatBytes(*s.DiskUsageBytes))
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// WriteCategories writes the category table, one category per line in text format.
func WriteCategories(w io.Writer, cats []models.Category, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, map[string]interface{}{"categories": cats})
	}
	for _, c := range cats {
		fmt.Fprintf(w, "%4d  %-12s %s\n", c.ID, c.Name, strings.Join(c.Keywords, ","))
	}
	return nil
}

// WriteProfile writes the outcome of a user profile refresh.
func WriteProfile(w io.Writer, u *models.ProfileUpdate, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, u)
	}
	if !u.Updated {
		fmt.Fprintf(w, "user %d: profile unchanged (%d interactions)\n", u.UserID, u.InteractionCount)
		return nil
	}
	fmt.Fprintf(w, "user %d: profile updated from %d interactions\n", u.UserID, u.InteractionCount)
	return nil
}

// WriteImport writes an import report for path.
func WriteImport(w io.Writer, path string, r *ingest.ImportReport, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, map[string]interface{}{"path": path, "report": r})
	}
	fmt.Fprintf(w, "%s: %d imported, %d skipped, %d failed\n", path, r.Imported, r.Skipped, r.Failed)
	return nil
}
