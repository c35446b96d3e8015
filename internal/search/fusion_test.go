package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRRFFusion_Basic(t *testing.T) {
	// Given: lexical [A, B, C] and vector [C, A, D]
	lexical := hitsWithIDs("A", "B", "C")
	vector := hitsWithIDs("C", "A", "D")
	f := NewRRFFusion(DefaultFusion())

	// When: fusing
	fused := f.Fuse(lexical, vector)

	// Then: A (ranks 1,2) beats C (ranks 3,1), then single-list docs
	require.Len(t, fused, 4)
	assert.Equal(t, []string{"A", "C", "B", "D"}, ids(fused))
	assert.InDelta(t, 1.0/61+1.0/62, fused[0].Score, 1e-12)
	assert.Equal(t, 1, fused[0].LexicalRank)
	assert.Equal(t, 2, fused[0].VectorRank)
	assert.Equal(t, 0, fused[2].VectorRank, "B is lexical only")
	assert.InDelta(t, 1.0/62, fused[2].Score, 1e-12)
}

func TestRRFFusion_EmptyInputs(t *testing.T) {
	f := NewRRFFusion(DefaultFusion())

	fused := f.Fuse(nil, nil)

	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}

func TestRRFFusion_TieBreakByLexicalScoreThenID(t *testing.T) {
	f := NewRRFFusion(DefaultFusion())

	t.Run("lexical presence beats absence", func(t *testing.T) {
		// Given: X first in lexical only, Y first in vector only
		fused := f.Fuse([]Hit{{ID: "Y2", Score: 0.1}}, []Hit{{ID: "A1", Score: 0.9}})

		// Then: equal fused scores, the lexical hit wins
		require.Len(t, fused, 2)
		assert.Equal(t, fused[0].Score, fused[1].Score)
		assert.Equal(t, []string{"Y2", "A1"}, ids(fused))
	})

	t.Run("equal lexical scores fall back to ID", func(t *testing.T) {
		// Given: P and Q swap ranks across lists with equal raw scores
		lexical := []Hit{{ID: "Q", Score: 1}, {ID: "P", Score: 1}}
		vector := []Hit{{ID: "P", Score: 0.5}, {ID: "Q", Score: 0.5}}

		fused := f.Fuse(lexical, vector)

		assert.Equal(t, []string{"P", "Q"}, ids(fused))
	})

	t.Run("higher lexical score wins a tie", func(t *testing.T) {
		lexical := []Hit{{ID: "A", Score: 1}, {ID: "B", Score: 3}}
		vector := []Hit{{ID: "B", Score: 0.5}, {ID: "A", Score: 0.5}}

		fused := f.Fuse(lexical, vector)

		assert.Equal(t, []string{"B", "A"}, ids(fused))
	})
}

func TestRRFFusion_Window(t *testing.T) {
	// Given: a window of 2
	f := NewRRFFusion(FusionSpec{RankConstant: 60, WindowSize: 2})

	// When: lists are longer than the window
	fused := f.Fuse(hitsWithIDs("A", "B", "C"), hitsWithIDs("D", "E", "C"))

	// Then: entries past the window contribute nothing
	assert.NotContains(t, ids(fused), "C")
	assert.Len(t, fused, 4)
}

func TestRRFFusion_Weights(t *testing.T) {
	// Given: the vector retriever weighted twice as heavily
	f := NewRRFFusion(FusionSpec{LexicalWeight: 1, VectorWeight: 2})

	fused := f.Fuse(hitsWithIDs("L"), hitsWithIDs("V"))

	assert.Equal(t, []string{"V", "L"}, ids(fused))
	assert.InDelta(t, 2.0/61, fused[0].Score, 1e-12)
	assert.True(t, f.Spec().Weighted())
}

func TestRRFFusion_Deterministic(t *testing.T) {
	f := NewRRFFusion(DefaultFusion())
	lexical := hitsWithIDs("a", "b", "c", "d", "e", "f")
	vector := hitsWithIDs("f", "e", "d", "c", "b", "a")

	first := ids(f.Fuse(lexical, vector))
	for range 20 {
		assert.Equal(t, first, ids(f.Fuse(lexical, vector)))
	}
}

func TestRRFFusion_DuplicateIDKeepsFirstRank(t *testing.T) {
	f := NewRRFFusion(DefaultFusion())

	fused := f.Fuse([]Hit{{ID: "A", Score: 2}, {ID: "A", Score: 1}}, nil)

	require.Len(t, fused, 1)
	assert.Equal(t, 1, fused[0].LexicalRank)
	assert.Equal(t, 2.0, fused[0].LexicalScore)
}

func TestPage(t *testing.T) {
	hits := hitsWithIDs("a", "b", "c", "d", "e")

	assert.Equal(t, []string{"a", "b"}, ids(Page(hits, 0, 2)))
	assert.Equal(t, []string{"e"}, ids(Page(hits, 4, 2)))
	assert.Empty(t, Page(hits, 5, 2))
	assert.Empty(t, Page(hits, 0, 0))
}
