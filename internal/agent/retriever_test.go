package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/liberhq/liber/internal/catalog"
	catalogmock "github.com/liberhq/liber/internal/catalog/mock"
	"github.com/liberhq/liber/internal/metering"
)

// stubEmbedder is a scriptable QueryEmbedder.
type stubEmbedder struct {
	vec   []float32
	err   error
	texts []string
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, text string, _ *metering.Collector) ([]float32, error) {
	e.texts = append(e.texts, text)
	return e.vec, e.err
}

func testProfile() *TasteProfile {
	return &TasteProfile{
		PreferredGenres:  []string{"science fiction"},
		PreferredThemes:  []string{"ecology"},
		PreferredAuthors: []string{"Frank Herbert"},
		Summary:          "Loves sprawling speculative worlds.",
	}
}

func retrieverFixtures() (*catalogmock.Store, *catalogmock.Index) {
	store := &catalogmock.Store{Books: map[int64]catalog.Book{
		1: {ID: 1, Title: "Dune"},
		2: {ID: 2, Title: "Hyperion"},
		3: {ID: 3, Title: "Foundation"},
	}}
	index := &catalogmock.Index{Neighbors: []catalog.Neighbor{
		{BookID: 1, Distance: 0.1},
		{BookID: 2, Distance: 0.2},
		{BookID: 3, Distance: 0.3},
	}}
	return store, index
}

func TestRetrieve_ScoresByDistance(t *testing.T) {
	store, index := retrieverFixtures()
	r := NewRetriever(&stubEmbedder{vec: []float32{1, 2, 3}}, store, index)
	meter := metering.NewCollector("test")

	candidates, err := r.Retrieve(context.Background(), testProfile(), 3, nil, meter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(candidates))
	}
	if candidates[0].Book.Title != "Dune" {
		t.Errorf("first candidate = %q, want nearest neighbor first", candidates[0].Book.Title)
	}
	if got := candidates[0].Score; got != 0.9 {
		t.Errorf("Score = %v, want 1 - distance = 0.9", got)
	}
	if _, ok := meter.Summarize().Latencies["candidate_retriever"]; !ok {
		t.Error("retrieval stage latency not recorded")
	}
}

func TestRetrieve_ExcludesFavorites(t *testing.T) {
	store, index := retrieverFixtures()
	r := NewRetriever(&stubEmbedder{vec: []float32{1, 2, 3}}, store, index)

	candidates, err := r.Retrieve(context.Background(), testProfile(), 2, []string{"  DUNE "}, metering.NewCollector("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	for _, c := range candidates {
		if c.Book.Title == "Dune" {
			t.Error("excluded favorite appeared in candidates")
		}
	}
}

func TestRetrieve_OverFetchesForExclusions(t *testing.T) {
	store, index := retrieverFixtures()
	r := NewRetriever(&stubEmbedder{vec: []float32{1, 2, 3}}, store, index)

	if _, err := r.Retrieve(context.Background(), testProfile(), 5, []string{"a", "b"}, metering.NewCollector("test")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(index.NearestCalls) != 1 || index.NearestCalls[0] != 7 {
		t.Errorf("Nearest k = %v, want [7] (topN + exclusions)", index.NearestCalls)
	}
}

func TestRetrieve_StopsAtTopN(t *testing.T) {
	store, index := retrieverFixtures()
	r := NewRetriever(&stubEmbedder{vec: []float32{1, 2, 3}}, store, index)

	candidates, err := r.Retrieve(context.Background(), testProfile(), 1, nil, metering.NewCollector("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 {
		t.Errorf("got %d candidates, want 1", len(candidates))
	}
}

func TestRetrieve_SkipsUnloadableBooks(t *testing.T) {
	store, index := retrieverFixtures()
	delete(store.Books, 1) // the nearest neighbor no longer exists
	r := NewRetriever(&stubEmbedder{vec: []float32{1, 2, 3}}, store, index)

	candidates, err := r.Retrieve(context.Background(), testProfile(), 3, nil, metering.NewCollector("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2 with the missing book skipped", len(candidates))
	}
}

func TestRetrieve_EmbedErrorPropagates(t *testing.T) {
	store, index := retrieverFixtures()
	r := NewRetriever(&stubEmbedder{err: errors.New("provider down")}, store, index)

	if _, err := r.Retrieve(context.Background(), testProfile(), 3, nil, metering.NewCollector("test")); err == nil {
		t.Fatal("expected error when embedding fails")
	}
}

func TestRetrieve_IndexErrorPropagates(t *testing.T) {
	store, index := retrieverFixtures()
	index.NearestErr = errors.New("index down")
	r := NewRetriever(&stubEmbedder{vec: []float32{1, 2, 3}}, store, index)

	if _, err := r.Retrieve(context.Background(), testProfile(), 3, nil, metering.NewCollector("test")); err == nil {
		t.Fatal("expected error when the index fails")
	}
}

func TestProfileText(t *testing.T) {
	got := ProfileText(testProfile())
	want := "Genres: science fiction. Themes: ecology. Authors: Frank Herbert. Loves sprawling speculative worlds."
	if got != want {
		t.Errorf("ProfileText = %q, want %q", got, want)
	}
}
