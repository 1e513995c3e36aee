package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/hyperjump/osusume/internal/ingest"
	"github.com/hyperjump/osusume/internal/models"
)

func int64p(v int64) *int64 { return &v }

func sampleResult() *models.Result {
	return &models.Result{
		Items: []models.Recommendation{
			{ProductID: 2, Title: "跑步鞋", CategoryID: int64p(3), Similarity: 0.8},
			{ProductID: 9, Title: "一个非常非常长的商品标题用于测试截断效果是否正确处理中文字符并且不会切断任何一个字节", Similarity: 0.5},
		},
		Total:       2,
		Provenance:  models.ProvenancePrecomputed,
		Confidence:  "high",
		Cached:      true,
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{" json ", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, sampleResult(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.Result
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Total != 2 || decoded.Provenance != models.ProvenancePrecomputed || decoded.Items[0].ProductID != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteResult_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, sampleResult(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"2 recommendations (precomputed, confidence high, cached)", "[2] 跑步鞋", "similarity 0.8000", "category 3", "category -", "..."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\ufffd") {
		t.Errorf("truncation split a character:\n%s", out)
	}
}

func TestWriteBatch_Text(t *testing.T) {
	out := &models.BatchResult{
		Results: map[int64]*models.Result{1: sampleResult(), 999: {Items: []models.Recommendation{}}},
		Errors:  map[int64]string{999: "product 999: not found"},
	}
	var buf bytes.Buffer
	if err := WriteBatch(&buf, []int64{999, 1}, out, OutputText); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	if i, j := strings.Index(s, "product 999"), strings.Index(s, "product 1 "); i < 0 || j < 0 || i > j {
		t.Errorf("batch not in request order:\n%s", s)
	}
	if !strings.Contains(s, "error: product 999: not found") {
		t.Errorf("missing error line:\n%s", s)
	}
}

func TestWriteTagsAndClassification(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTags(&buf, "透气运动鞋跑步", []string{"运动鞋", "跑步"}, OutputText); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "运动鞋 跑步\n" {
		t.Errorf("tags text = %q", buf.String())
	}

	tests := []struct {
		name string
		c    models.Classification
		want string
	}{
		{"classified", models.Classification{CategoryID: int64p(3), Name: "运动鞋", Score: 12}, "category: 3 运动鞋 (score 12.00)"},
		{"unclassified", models.Classification{Score: 0.25}, "category: unclassified (best score 0.25)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteClassification(&buf, []string{"运动鞋"}, tt.c, OutputText); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q missing %q", buf.String(), tt.want)
			}
		})
	}
}

func TestWriteStats_Text(t *testing.T) {
	disk := int64(3 * 1024 * 1024)
	s := &models.Stats{
		TotalProducts:       7,
		ProductsWithVectors: 3,
		VectorCoverage:      0.4286,
		VectorIndexType:     "memory",
		VectorIndexSize:     3,
		DiskUsageBytes:      &disk,
	}
	var buf bytes.Buffer
	if err := WriteStats(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Products:      7 (3 with vectors, coverage 42.86%)", "Vector index:  memory, 3 vectors", "Disk usage:    3.0 MiB"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestWriteImport(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteImport(&buf, "products.txt", &ingest.ImportReport{Imported: 2, Skipped: 1}, OutputText); err != nil {
		t.Fatal(err)
	}
	if want := "products.txt: 2 imported, 1 skipped, 0 failed\n"; buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWritePrecompute(t *testing.T) {
	var buf bytes.Buffer
	r := &models.PrecomputeReport{Success: 4, Failed: 2, Skipped: 1}
	if err := WritePrecompute(&buf, "products", r, OutputText); err != nil {
		t.Fatal(err)
	}
	if want := "products: 4 computed, 2 failed, 1 skipped\n"; buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
	buf.Reset()
	if err := WritePrecompute(&buf, "tags", r, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]models.PrecomputeReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["tags"] != *r {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteCategoriesAndProfile(t *testing.T) {
	var buf bytes.Buffer
	cats := []models.Category{{ID: 3, Name: "运动鞋", Keywords: []string{"运动鞋", "跑步"}}}
	if err := WriteCategories(&buf, cats, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "运动鞋,跑步") {
		t.Errorf("categories text = %q", buf.String())
	}

	tests := []struct {
		name string
		u    models.ProfileUpdate
		want string
	}{
		{"updated", models.ProfileUpdate{UserID: 7, Updated: true, InteractionCount: 3}, "user 7: profile updated from 3 interactions\n"},
		{"unchanged", models.ProfileUpdate{UserID: 8}, "user 8: profile unchanged (0 interactions)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteProfile(&buf, &tt.u, OutputText); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
