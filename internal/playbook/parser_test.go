package playbook

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"hone/internal/types"
)

const samplePlaybook = `---
sections:
    - id: build/test/patterns
      weight: 1
version: "1.0"
---

# Playbook

Advice distilled from past sessions.

## Build Test Patterns

- [Bullet #b1, helpful:3, harmful:1] Run the full test suite before committing
  <!-- deltaId=d-100, sourceId=bd-7, createdAt=2026-01-15T10:00:00Z, hash=build/test/patterns::run the full test suite before committing -->
- [Bullet #b2, helpful:1, harmful:0, Aggregated from 3 instances] Pin dependency versions

## Typescript Patterns

[Bullet #b3, helpful:0, harmful:0] Prefer explicit return types
`

func TestParseSample(t *testing.T) {
	doc, err := Parse(samplePlaybook)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if doc.Manifest == nil {
		t.Fatal("manifest not parsed")
	}
	if doc.Manifest.Version != "1.0" {
		t.Errorf("version = %q", doc.Manifest.Version)
	}
	if len(doc.Manifest.Sections) != 1 || doc.Manifest.Sections[0].ID != "build/test/patterns" {
		t.Errorf("sections = %+v", doc.Manifest.Sections)
	}

	if len(doc.Bullets) != 3 {
		t.Fatalf("len(bullets) = %d, want 3", len(doc.Bullets))
	}

	b1 := doc.Bullets[0]
	if b1.ID != "b1" || b1.Section != "build/test/patterns" || b1.Helpful != 3 || b1.Harmful != 1 {
		t.Errorf("b1 = %+v", b1)
	}
	if b1.Provenance == nil {
		t.Fatal("b1 provenance missing")
	}
	if b1.Provenance.DeltaID != "d-100" || b1.Provenance.SourceID != "bd-7" {
		t.Errorf("b1 provenance = %+v", b1.Provenance)
	}
	want := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	if !b1.Provenance.CreatedAt.Equal(want) {
		t.Errorf("b1 createdAt = %v", b1.Provenance.CreatedAt)
	}

	b2 := doc.Bullets[1]
	if b2.AggregatedFrom != 3 {
		t.Errorf("b2 aggregatedFrom = %d, want 3", b2.AggregatedFrom)
	}

	// Dashless form parses too, and picks up its enclosing section.
	b3 := doc.Bullets[2]
	if b3.ID != "b3" || b3.Section != "typescript/patterns" {
		t.Errorf("b3 = %+v", b3)
	}

	if doc.Skipped != 0 {
		t.Errorf("skipped = %d, want 0", doc.Skipped)
	}
	for _, b := range doc.Bullets {
		if b.Hash != types.BulletHash(b.Section, b.Content) {
			t.Errorf("bullet %s hash not computed", b.ID)
		}
	}
}

func TestParseCountsMalformedBulletLines(t *testing.T) {
	content := `## Section One

- [Bullet #ok, helpful:1, harmful:0] Fine
- [Bullet #broken, helpful:one] Missing harmful counter
plain prose stays prose
`
	doc, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Bullets) != 1 {
		t.Errorf("len(bullets) = %d, want 1", len(doc.Bullets))
	}
	if doc.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", doc.Skipped)
	}
}

func TestParseMalformedFrontMatterIsFatal(t *testing.T) {
	_, err := Parse("---\nversion: [unclosed\n---\n")
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !errors.Is(err, types.ErrParse) {
		t.Errorf("error kind = %v, want ErrParse", err)
	}
}

func TestSectionIDAndHeading(t *testing.T) {
	tests := []struct {
		heading string
		id      string
	}{
		{"Build Test Patterns", "build/test/patterns"},
		{"Typescript  Patterns", "typescript/patterns"},
		{"API-design", "api-design"},
		{"Patterns", "patterns"},
	}
	for _, tt := range tests {
		if got := SectionID(tt.heading); got != tt.id {
			t.Errorf("SectionID(%q) = %q, want %q", tt.heading, got, tt.id)
		}
	}

	// Heading rendering inverts the id mapping.
	for _, id := range []string{"build/test/patterns", "api-design", "patterns"} {
		if got := SectionID(SectionHeading(id)); got != id {
			t.Errorf("SectionID(SectionHeading(%q)) = %q", id, got)
		}
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	created := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	bullets := []types.Bullet{
		{
			ID: "a1", Section: "typescript/patterns",
			Content: "Prefer explicit return types on exported functions",
			Helpful: 2, Harmful: 0,
			Provenance: &types.Provenance{DeltaID: "d-1", SourceID: "bd-3", CreatedAt: created},
		},
		{
			ID: "a2", Section: "build/test/patterns",
			Content: "Always validate input before processing",
			Helpful: 5, Harmful: 1,
		},
		{
			ID: "a3", Section: "build/test/patterns",
			Content: "Run vitest with --run in CI", Helpful: 5, Harmful: 0,
			AggregatedFrom: 2,
		},
	}
	for i := range bullets {
		bullets[i].ComputeHash()
	}

	m := &Manifest{
		Version: "1.0",
		Sections: []ManifestSection{
			{ID: "typescript/patterns", Weight: 2},
			{ID: "build/test/patterns", Weight: 1},
		},
	}

	content, err := Render(m, bullets)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	doc, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Canonical order: section asc, helpful desc, content asc.
	wantOrder := []string{"a2", "a3", "a1"}
	for i, id := range wantOrder {
		if doc.Bullets[i].ID != id {
			t.Fatalf("order[%d] = %s, want %s", i, doc.Bullets[i].ID, id)
		}
	}

	sorted := make([]types.Bullet, len(bullets))
	copy(sorted, bullets)
	SortBullets(sorted)
	if diff := cmp.Diff(sorted, doc.Bullets); diff != "" {
		t.Errorf("round-trip mismatch (-in +out):\n%s", diff)
	}

	// Manifest sections come back sorted by id.
	if doc.Manifest.Sections[0].ID != "build/test/patterns" {
		t.Errorf("manifest sections not sorted: %+v", doc.Manifest.Sections)
	}
}

func TestRenderDeterminism(t *testing.T) {
	bullets := []types.Bullet{
		{ID: "x", Section: "patterns", Content: "Keep functions small", Helpful: 1},
		{ID: "y", Section: "patterns", Content: "Avoid global state", Helpful: 1},
	}
	a, err := Render(nil, bullets)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := Render(nil, bullets)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if a != b {
		t.Error("successive renders differ")
	}
}

func TestFindInsertPosition(t *testing.T) {
	doc, err := Parse(samplePlaybook)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	pos, ok := doc.FindInsertPosition("build/test/patterns")
	if !ok {
		t.Fatal("section should exist")
	}
	if !strings.Contains(doc.Lines[pos-1], "#b2") {
		t.Errorf("insert position %d not after last bullet: %q", pos, doc.Lines[pos-1])
	}

	// After a bullet with a trailing provenance comment, the position lands
	// after the comment.
	doc2, _ := Parse("## Patterns\n\n- [Bullet #p1, helpful:0, harmful:0] Something useful\n  <!-- deltaId=d, sourceId=s, createdAt=2026-01-01T00:00:00Z, hash=patterns::something useful -->\n")
	pos2, ok := doc2.FindInsertPosition("patterns")
	if !ok || !strings.Contains(doc2.Lines[pos2-1], "deltaId") {
		t.Errorf("pos2 = %d, ok = %v", pos2, ok)
	}

	if _, ok := doc.FindInsertPosition("no/such/section"); ok {
		t.Error("absent section should report ok=false")
	}
}

func TestParseEmpty(t *testing.T) {
	doc, err := Parse("")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Bullets) != 0 || doc.Manifest != nil {
		t.Errorf("empty content should parse to empty doc: %+v", doc)
	}
}
