package playbook

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"hone/internal/types"
)

// SortBullets orders bullets canonically: section ascending, helpful
// descending, content ascending. This is both the presentation order and the
// in-file order; hash uniqueness makes further tie-breaks unnecessary.
func SortBullets(bullets []types.Bullet) {
	sort.SliceStable(bullets, func(i, j int) bool {
		a, b := bullets[i], bullets[j]
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		if a.Helpful != b.Helpful {
			return a.Helpful > b.Helpful
		}
		return a.Content < b.Content
	})
}

// RenderBulletLine serializes one bullet line.
func RenderBulletLine(b types.Bullet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- [Bullet #%s, helpful:%d, harmful:%d", b.ID, b.Helpful, b.Harmful)
	if b.AggregatedFrom > 1 {
		fmt.Fprintf(&sb, ", Aggregated from %d instances", b.AggregatedFrom)
	}
	sb.WriteString("] ")
	sb.WriteString(b.Content)
	return sb.String()
}

// RenderProvenanceLine serializes the provenance comment that follows a
// bullet line.
func RenderProvenanceLine(b types.Bullet) string {
	hash := b.Hash
	if hash == "" {
		hash = types.BulletHash(b.Section, b.Content)
	}
	return fmt.Sprintf("  <!-- deltaId=%s, sourceId=%s, createdAt=%s, hash=%s -->",
		b.Provenance.DeltaID,
		b.Provenance.SourceID,
		b.Provenance.CreatedAt.UTC().Format(time.RFC3339),
		hash)
}

// Render serializes a full playbook: optional front-matter, then bullets
// grouped by section (alphabetical) under prose headings, sorted canonically
// within each section. Output depends only on the inputs, so re-rendering the
// same state yields identical bytes.
func Render(m *Manifest, bullets []types.Bullet) (string, error) {
	sorted := make([]types.Bullet, len(bullets))
	copy(sorted, bullets)
	SortBullets(sorted)

	var sb strings.Builder

	if m != nil {
		data, err := m.Marshal()
		if err != nil {
			return "", err
		}
		sb.WriteString("---\n")
		sb.Write(data)
		sb.WriteString("---\n")
	}

	lastSection := "\x00"
	for _, b := range sorted {
		if b.Section != lastSection {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString("## ")
			sb.WriteString(SectionHeading(b.Section))
			sb.WriteString("\n\n")
			lastSection = b.Section
		}
		sb.WriteString(RenderBulletLine(b))
		sb.WriteString("\n")
		if b.Provenance != nil {
			sb.WriteString(RenderProvenanceLine(b))
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}
