package search

import (
	"math"
	"sort"
)

// RRFFusion combines a lexical and a vector ranking with Reciprocal Rank
// Fusion.
//
// Algorithm: score(d) = Σ weight_i / (k + rank_i)
//
// Where:
//   - k = smoothing constant (default: 60)
//   - rank_i = 1-based position of d in list i, only for the first Window
//     entries; a document absent from a list gets nothing from it
//   - weight_i = weight of retriever i (default: 1)
type RRFFusion struct {
	K             int
	Window        int
	LexicalWeight float64
	VectorWeight  float64
}

// NewRRFFusion creates a fusion from spec, defaulting unset fields.
func NewRRFFusion(spec FusionSpec) *RRFFusion {
	spec = normalizeFusion(spec)
	return &RRFFusion{
		K:             spec.RankConstant,
		Window:        spec.WindowSize,
		LexicalWeight: spec.LexicalWeight,
		VectorWeight:  spec.VectorWeight,
	}
}

// Spec returns the parameters as a FusionSpec.
func (f *RRFFusion) Spec() FusionSpec {
	return FusionSpec{
		RankConstant:  f.K,
		WindowSize:    f.Window,
		LexicalWeight: f.LexicalWeight,
		VectorWeight:  f.VectorWeight,
	}
}

// Fuse merges two rankings. Input order is the rank order. The output is
// sorted by fused score (desc), then lexical raw score (desc, absent last),
// then ID (asc), so equal inputs always give the same ordering.
func (f *RRFFusion) Fuse(lexical, vector []Hit) []Hit {
	if len(lexical) == 0 && len(vector) == 0 {
		return []Hit{}
	}

	byID := make(map[string]*Hit, len(lexical)+len(vector))
	order := make([]string, 0, len(lexical)+len(vector))
	get := func(h Hit) *Hit {
		if existing, ok := byID[h.ID]; ok {
			return existing
		}
		fused := &Hit{ID: h.ID, Trial: h.Trial}
		byID[h.ID] = fused
		order = append(order, h.ID)
		return fused
	}

	for i, h := range lexical {
		if i >= f.Window {
			break
		}
		fused := get(h)
		if fused.LexicalRank != 0 {
			continue
		}
		fused.LexicalRank = i + 1
		fused.LexicalScore = h.Score
	}
	for i, h := range vector {
		if i >= f.Window {
			break
		}
		fused := get(h)
		if fused.VectorRank != 0 {
			continue
		}
		fused.VectorRank = i + 1
		fused.VectorScore = h.Score
	}

	out := make([]Hit, 0, len(order))
	for _, id := range order {
		h := byID[id]
		h.Score = f.contribution(f.LexicalWeight, h.LexicalRank) + f.contribution(f.VectorWeight, h.VectorRank)
		out = append(out, *h)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		la, lb := lexicalKey(a), lexicalKey(b)
		if la != lb {
			return la > lb
		}
		return a.ID < b.ID
	})
	return out
}

func (f *RRFFusion) contribution(weight float64, rank int) float64 {
	if rank == 0 {
		return 0
	}
	return weight / float64(f.K+rank)
}

func lexicalKey(h Hit) float64 {
	if h.LexicalRank == 0 {
		return math.Inf(-1)
	}
	return h.LexicalScore
}

// Page returns the slice [from, from+size) of hits, clamped to bounds.
func Page(hits []Hit, from, size int) []Hit {
	if from >= len(hits) || size <= 0 {
		return []Hit{}
	}
	end := min(from+size, len(hits))
	return hits[max(from, 0):end]
}
