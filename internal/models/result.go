package models

import "time"

// Provenance identifies which fallback stage produced a result.
type Provenance string

const (
	ProvenancePrecomputed Provenance = "precomputed"
	ProvenanceAggregated  Provenance = "aggregated"
	ProvenanceKeyword     Provenance = "keyword"
	ProvenanceGeneric     Provenance = "generic"
)

// Confidence returns the coarse confidence label for the stage.
func (p Provenance) Confidence() string {
	switch p {
	case ProvenancePrecomputed, ProvenanceAggregated:
		return "high"
	case ProvenanceKeyword:
		return "medium"
	default:
		return "low"
	}
}

// Recommendation is a single ranked product.
type Recommendation struct {
	ProductID  int64   `json:"product_id"`
	Title      string  `json:"product_name,omitempty"`
	CategoryID *int64  `json:"category_id,omitempty"`
	ImageURL   string  `json:"image_url,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Similarity float64 `json:"similarity"`
}

// Result is the payload of a recommendation request. Items, Provenance and Confidence are
// reproducible for the same data; Cached and GeneratedAt describe this response only.
type Result struct {
	Items       []Recommendation `json:"recommendations"`
	Total       int              `json:"total"`
	Provenance  Provenance       `json:"provenance"`
	Confidence  string           `json:"confidence"`
	Cached      bool             `json:"cached"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// BatchResult maps each requested product id to its result. Ids that failed map to an
// empty result and carry a message in Errors.
type BatchResult struct {
	Results map[int64]*Result `json:"results"`
	Errors  map[int64]string  `json:"errors,omitempty"`
}

// ProfileUpdate reports the outcome of recomputing a user profile vector.
type ProfileUpdate struct {
	UserID           int64      `json:"user_id"`
	Updated          bool       `json:"updated"`
	InteractionCount int64      `json:"interaction_count"`
	VectorUpdatedAt  *time.Time `json:"vector_updated_at,omitempty"`
}

// Classification is the outcome of category classification.
type Classification struct {
	CategoryID *int64  `json:"category_id"`
	Name       string  `json:"category_name,omitempty"`
	Score      float64 `json:"score"`
}

// PrecomputeReport counts precompute outcomes.
type PrecomputeReport struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// CacheStats is a snapshot of recommendation cache counters.
type CacheStats struct {
	Size      int    `json:"size"`
	MaxSize   int    `json:"max_size"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Stats summarizes corpus coverage and engine state.
type Stats struct {
	TotalProducts       int64      `json:"total_products"`
	ProductsWithVectors int64      `json:"products_with_vectors"`
	VectorCoverage      float64    `json:"vector_coverage"`
	TotalTags           int64      `json:"total_tags"`
	UniqueTags          int64      `json:"unique_tags"`
	TagVectorsCount     int64      `json:"tag_vectors_count"`
	TagVectorCoverage   float64    `json:"tag_vector_coverage"`
	TotalCategories     int        `json:"total_categories"`
	TotalUsers          int64      `json:"total_users"`
	UsersWithVectors    int64      `json:"users_with_vectors"`
	TotalInteractions   int64      `json:"total_interactions"`
	VectorIndexSize     int        `json:"vector_index_size"`
	VectorIndexType     string     `json:"vector_index_type"`
	Cache               CacheStats `json:"cache"`
	DiskUsageBytes      *int64     `json:"disk_usage_bytes,omitempty"`
}
