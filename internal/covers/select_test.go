package covers

import (
	"testing"

	"gamehub/internal/providers"
)

func cand(id int64, score int, unsafe bool) providers.CoverCandidate {
	return providers.CoverCandidate{ID: id, Score: score, Flags: providers.SafetyFlags{Humor: unsafe}}
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name         string
		cands        []providers.CoverCandidate
		exclude      map[int64]bool
		wantID       int64
		wantFallback bool
		wantOK       bool
	}{
		{"highest safe score", []providers.CoverCandidate{cand(1, 5, false), cand(2, 9, false), cand(3, 7, false)}, nil, 2, false, true},
		{"unsafe skipped even when higher", []providers.CoverCandidate{cand(1, 50, true), cand(2, 3, false)}, nil, 2, false, true},
		{"ties keep provider order", []providers.CoverCandidate{cand(4, 5, false), cand(5, 5, false)}, nil, 4, false, true},
		{"excluded never returned", []providers.CoverCandidate{cand(1, 9, false), cand(2, 1, false)}, map[int64]bool{1: true}, 2, false, true},
		{"falls back to unsafe when no safe remain", []providers.CoverCandidate{cand(1, 9, false), cand(2, 4, true), cand(3, 6, true)}, map[int64]bool{1: true}, 3, true, true},
		{"all excluded", []providers.CoverCandidate{cand(1, 9, false), cand(2, 4, true)}, map[int64]bool{1: true, 2: true}, 0, false, false},
		{"empty", nil, nil, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fallback, ok := SelectBest(tt.cands, tt.exclude)
			if ok != tt.wantOK || fallback != tt.wantFallback {
				t.Fatalf("SelectBest() ok = %v fallback = %v, want %v %v", ok, fallback, tt.wantOK, tt.wantFallback)
			}
			if ok && got.ID != tt.wantID {
				t.Errorf("SelectBest() = %d, want %d", got.ID, tt.wantID)
			}
		})
	}
}

func TestSelectBest_DoesNotReorderInput(t *testing.T) {
	in := []providers.CoverCandidate{cand(1, 1, false), cand(2, 9, false)}
	SelectBest(in, nil)
	if in[0].ID != 1 || in[1].ID != 2 {
		t.Errorf("input reordered: %+v", in)
	}
}
