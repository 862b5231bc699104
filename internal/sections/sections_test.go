package sections

import "testing"

const doc = `intro text

## Context

Why we are doing this.

### Details

The fine print.

## Plan

1. step one
2. step two

### Risks

Watch out.

## Done

`

func TestList(t *testing.T) {
	headers := List(doc)
	want := []Header{
		{Title: "Context", Level: 2, Line: 3},
		{Title: "Details", Level: 3, Line: 7},
		{Title: "Plan", Level: 2, Line: 11},
		{Title: "Risks", Level: 3, Line: 16},
		{Title: "Done", Level: 2, Line: 20},
	}
	if len(headers) != len(want) {
		t.Fatalf("got %d headers: %+v", len(headers), headers)
	}
	for i, h := range headers {
		if h != want[i] {
			t.Errorf("header %d = %+v, want %+v", i, h, want[i])
		}
	}
}

func TestExtractWithoutSubsections(t *testing.T) {
	body, ok := Extract(doc, "Context", false)
	if !ok {
		t.Fatal("section not found")
	}
	if body != "Why we are doing this." {
		t.Errorf("body = %q", body)
	}
}

func TestExtractWithSubsections(t *testing.T) {
	body, ok := Extract(doc, "Plan", true)
	if !ok {
		t.Fatal("section not found")
	}
	want := "1. step one\n2. step two\n\n### Risks\n\nWatch out."
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestExtractCaseInsensitiveFirstMatch(t *testing.T) {
	if _, ok := Extract(doc, "cOnTeXt", false); !ok {
		t.Error("title match should be case-insensitive")
	}

	dup := "## Same\n\nfirst\n\n## Same\n\nsecond\n"
	body, ok := Extract(dup, "Same", false)
	if !ok || body != "first" {
		t.Errorf("Extract = %q, %v; want first match", body, ok)
	}
}

func TestExtractMissing(t *testing.T) {
	if _, ok := Extract(doc, "Nope", false); ok {
		t.Error("missing section should report not found")
	}
}

func TestExtractLastSection(t *testing.T) {
	body, ok := Extract(doc, "Done", true)
	if !ok {
		t.Fatal("section not found")
	}
	if body != "" {
		t.Errorf("trailing empty section body = %q", body)
	}
}
