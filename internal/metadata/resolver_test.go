package metadata

import (
	"context"
	"errors"
	"testing"
)

// fakeSource is a scriptable Source for resolver tests.
type fakeSource struct {
	name    string
	records []ExternalRecord
	err     error
	calls   int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(_ context.Context, _ string, _ int) ([]ExternalRecord, error) {
	f.calls++
	return f.records, f.err
}

func TestResolver_PrimaryServes(t *testing.T) {
	primary := &fakeSource{name: "primary", records: []ExternalRecord{{Title: "Dune"}}}
	fallback := &fakeSource{name: "fallback", records: []ExternalRecord{{Title: "Wrong"}}}
	r := NewResolver(primary, fallback)

	records := r.Search(context.Background(), "dune", 5)
	if len(records) != 1 || records[0].Title != "Dune" {
		t.Fatalf("records = %v, want primary's result", records)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times, want 0", fallback.calls)
	}
}

func TestResolver_FallsBackOnError(t *testing.T) {
	primary := &fakeSource{name: "primary", err: errors.New("boom")}
	fallback := &fakeSource{name: "fallback", records: []ExternalRecord{{Title: "Dune"}}}
	r := NewResolver(primary, fallback)

	records := r.Search(context.Background(), "dune", 5)
	if len(records) != 1 || records[0].Title != "Dune" {
		t.Fatalf("records = %v, want fallback's result", records)
	}
}

func TestResolver_FallsBackOnEmptyResults(t *testing.T) {
	primary := &fakeSource{name: "primary"}
	fallback := &fakeSource{name: "fallback", records: []ExternalRecord{{Title: "Dune"}}}
	r := NewResolver(primary, fallback)

	records := r.Search(context.Background(), "dune", 5)
	if len(records) != 1 || records[0].Title != "Dune" {
		t.Fatalf("records = %v, want fallback's result after empty primary", records)
	}
	if primary.calls != 1 {
		t.Errorf("primary called %d times, want 1", primary.calls)
	}
}

func TestResolver_AllSourcesFail(t *testing.T) {
	primary := &fakeSource{name: "primary", err: errors.New("boom")}
	fallback := &fakeSource{name: "fallback", err: errors.New("also boom")}
	r := NewResolver(primary, fallback)

	records := r.Search(context.Background(), "dune", 5)
	if records != nil {
		t.Fatalf("records = %v, want nil when everything fails", records)
	}
}

func TestResolver_Resolve(t *testing.T) {
	primary := &fakeSource{name: "primary", records: []ExternalRecord{
		{Title: "Dune"},
		{Title: "Dune Messiah"},
	}}
	r := NewResolver(primary)

	rec := r.Resolve(context.Background(), "dune")
	if rec == nil || rec.Title != "Dune" {
		t.Fatalf("rec = %v, want first record", rec)
	}
}

func TestResolver_ResolveNothingFound(t *testing.T) {
	r := NewResolver(&fakeSource{name: "primary"})

	if rec := r.Resolve(context.Background(), "no such book"); rec != nil {
		t.Fatalf("rec = %v, want nil", rec)
	}
}
