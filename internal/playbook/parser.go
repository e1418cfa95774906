// Package playbook implements the knowledge store: parsing, serializing, and
// narrowly editing the markdown playbook that holds the bullet corpus.
package playbook

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"hone/internal/types"
)

// Bullet lines look like:
//
//	- [Bullet #b1, helpful:3, harmful:0] Always validate input
//	- [Bullet #b2, helpful:5, harmful:1, Aggregated from 3 instances] Pin versions
//
// The leading list dash is optional on parse; serialization always emits it.
var bulletRe = regexp.MustCompile(`^\s*(?:-\s+)?\[Bullet #([^,\]]+), helpful:(\d+), harmful:(\d+)(?:, ([^\]]+))?\] (.+)$`)

// almostBulletRe flags lines that were meant to be bullets but fail the
// format; these are counted as skipped, not treated as prose silently.
var almostBulletRe = regexp.MustCompile(`^\s*(?:-\s+)?\[Bullet `)

var aggregatedRe = regexp.MustCompile(`^Aggregated from (\d+) instances$`)

// Provenance rides on the line after its bullet:
//
//	<!-- deltaId=..., sourceId=..., createdAt=..., hash=... -->
var provRe = regexp.MustCompile(`^\s*<!--\s*deltaId=([^,]*), sourceId=([^,]*), createdAt=([^,]*), hash=(.*?)\s*-->\s*$`)

var headingRe = regexp.MustCompile(`^(#{2,3})\s+(.+?)\s*$`)

// SectionID derives section identity from a heading's prose: lowercased,
// whitespace runs become slashes. "Build Test Patterns" -> "build/test/patterns".
func SectionID(heading string) string {
	return strings.ToLower(strings.Join(strings.Fields(heading), "/"))
}

// SectionHeading is the inverse presentation: "build/test/patterns" ->
// "Build Test Patterns".
func SectionHeading(sectionID string) string {
	parts := strings.Split(sectionID, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// Document is one parsed playbook. Lines holds the body verbatim so narrow
// edits (counter updates, archival excision) can rewrite single lines while
// preserving all surrounding prose.
type Document struct {
	Manifest    *Manifest
	FrontMatter []string // raw front-matter lines including both fences
	Lines       []string // body lines, front-matter excluded
	Bullets     []types.Bullet
	Skipped     int // bullet-like lines that failed to parse

	bulletLine map[string]int // bullet id -> index into Lines
	provLine   map[string]int // bullet id -> provenance comment line index
	sectionEnd map[string]int // section id -> last bullet/comment line index
}

// Parse parses playbook content. Bullet-like lines that fail the format are
// counted in Skipped; arbitrary prose is preserved untouched. Only malformed
// front-matter is an error.
func Parse(content string) (*Document, error) {
	doc := &Document{
		bulletLine: make(map[string]int),
		provLine:   make(map[string]int),
		sectionEnd: make(map[string]int),
	}

	lines := strings.Split(content, "\n")

	// Front-matter: a leading --- fence closed by another --- line.
	body := lines
	if len(lines) > 0 && strings.TrimRight(lines[0], " \t") == "---" {
		for i := 1; i < len(lines); i++ {
			if strings.TrimRight(lines[i], " \t") == "---" {
				m, err := ParseManifest([]byte(strings.Join(lines[1:i], "\n")))
				if err != nil {
					return nil, err
				}
				doc.Manifest = m
				doc.FrontMatter = lines[:i+1]
				body = lines[i+1:]
				break
			}
		}
	}
	doc.Lines = body

	section := ""
	var lastBullet *types.Bullet
	for i, line := range body {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			section = SectionID(m[2])
			if _, seen := doc.sectionEnd[section]; !seen {
				doc.sectionEnd[section] = i
			}
			lastBullet = nil
			continue
		}

		if m := bulletRe.FindStringSubmatch(line); m != nil {
			helpful, _ := strconv.Atoi(m[2])
			harmful, _ := strconv.Atoi(m[3])
			b := types.Bullet{
				ID:      strings.TrimSpace(m[1]),
				Section: section,
				Content: m[5],
				Helpful: helpful,
				Harmful: harmful,
			}
			if extra := m[4]; extra != "" {
				am := aggregatedRe.FindStringSubmatch(strings.TrimSpace(extra))
				if am == nil {
					doc.Skipped++
					continue
				}
				b.AggregatedFrom, _ = strconv.Atoi(am[1])
			}
			b.ComputeHash()

			doc.Bullets = append(doc.Bullets, b)
			lastBullet = &doc.Bullets[len(doc.Bullets)-1]
			if _, dup := doc.bulletLine[b.ID]; !dup {
				doc.bulletLine[b.ID] = i
			}
			doc.sectionEnd[section] = i
			continue
		}

		if m := provRe.FindStringSubmatch(line); m != nil {
			if lastBullet != nil {
				p := &types.Provenance{
					DeltaID:  strings.TrimSpace(m[1]),
					SourceID: strings.TrimSpace(m[2]),
				}
				if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(m[3])); err == nil {
					p.CreatedAt = ts
				}
				lastBullet.Provenance = p
				if _, dup := doc.provLine[lastBullet.ID]; !dup {
					doc.provLine[lastBullet.ID] = i
				}
				doc.sectionEnd[section] = i
				lastBullet = nil
			}
			continue
		}

		if almostBulletRe.MatchString(line) {
			doc.Skipped++
		}
		if strings.TrimSpace(line) != "" {
			lastBullet = nil
		}
	}

	return doc, nil
}

// FindInsertPosition returns the body line index just after the last bullet
// (or provenance comment) of the section. The second return is false when the
// section is absent; the operation is then skipped by callers.
func (d *Document) FindInsertPosition(section string) (int, bool) {
	idx, ok := d.sectionEnd[section]
	if !ok {
		return 0, false
	}
	return idx + 1, true
}

// LineFor returns the body line index of a bullet by id.
func (d *Document) LineFor(id string) (int, bool) {
	idx, ok := d.bulletLine[id]
	return idx, ok
}

// ProvLineFor returns the body line index of a bullet's provenance comment.
func (d *Document) ProvLineFor(id string) (int, bool) {
	idx, ok := d.provLine[id]
	return idx, ok
}

// BulletByID returns the first bullet with the given id.
func (d *Document) BulletByID(id string) (types.Bullet, bool) {
	for _, b := range d.Bullets {
		if b.ID == id {
			return b, true
		}
	}
	return types.Bullet{}, false
}

// Content reassembles the document verbatim (front-matter plus body).
func (d *Document) Content() string {
	if len(d.FrontMatter) == 0 {
		return strings.Join(d.Lines, "\n")
	}
	all := make([]string, 0, len(d.FrontMatter)+len(d.Lines))
	all = append(all, d.FrontMatter...)
	all = append(all, d.Lines...)
	return strings.Join(all, "\n")
}
