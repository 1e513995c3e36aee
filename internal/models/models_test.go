package models

import "testing"

func TestInteractionKind_Valid(t *testing.T) {
	tests := []struct {
		kind InteractionKind
		want bool
	}{
		{InteractionView, true},
		{InteractionClick, true},
		{InteractionFavorite, true},
		{InteractionPurchase, true},
		{InteractionDislike, true},
		{"share", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProvenance_Confidence(t *testing.T) {
	tests := []struct {
		p    Provenance
		want string
	}{
		{ProvenancePrecomputed, "high"},
		{ProvenanceAggregated, "high"},
		{ProvenanceKeyword, "medium"},
		{ProvenanceGeneric, "low"},
	}
	for _, tt := range tests {
		if got := tt.p.Confidence(); got != tt.want {
			t.Errorf("%s.Confidence() = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestTag_EffectiveWeight(t *testing.T) {
	if w := NewTag("跑步").EffectiveWeight(); w != 1.0 {
		t.Errorf("default weight = %v, want 1", w)
	}
	if w := (Tag{Text: "x", Weight: -2}).EffectiveWeight(); w != 0 {
		t.Errorf("negative weight should clamp to 0, got %v", w)
	}
	if got := TagTexts([]Tag{NewTag("a"), NewTag("b")}); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("TagTexts = %v", got)
	}
}
