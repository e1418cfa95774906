package playbook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"hone/internal/fsutil"
	"hone/internal/logging"
	"hone/internal/types"
)

// CounterDelta is one bullet's pending helpful/harmful increments.
type CounterDelta struct {
	Helpful int
	Harmful int
}

// Store owns the playbook file and the bullet archive file. It is the only
// writer of both; every mutation is a guarded atomic rewrite.
type Store struct {
	path string
	root string
	mu   sync.Mutex
}

// NewStore returns a store for the playbook at path. The knowledge root
// defaults to the playbook's directory when root is empty.
func NewStore(path, root string) *Store {
	if root == "" {
		root = filepath.Dir(path)
	}
	abs, err := filepath.Abs(root)
	if err == nil {
		root = abs
	}
	return &Store{path: path, root: root}
}

// Path returns the playbook path.
func (s *Store) Path() string {
	return s.path
}

// Root returns the knowledge root all writes must stay under.
func (s *Store) Root() string {
	return s.root
}

// Guard rejects any write whose resolved path is not under the knowledge
// root. Failure is a hard error.
func (s *Store) Guard(p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return types.Scopef("cannot resolve %s: %v", p, err)
	}
	abs = filepath.Clean(abs)
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return types.Scopef("%s is outside knowledge root %s", abs, s.root)
	}
	return nil
}

// Exists reports whether the playbook file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Raw returns the playbook file content. Missing file reads as empty.
func (s *Store) Raw() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read playbook: %w", err)
	}
	return string(data), nil
}

// Load parses the playbook. A missing file yields an empty document.
func (s *Store) Load() (*Document, error) {
	content, err := s.Raw()
	if err != nil {
		return nil, err
	}
	doc, err := Parse(content)
	if err != nil {
		return nil, err
	}
	if doc.Skipped > 0 {
		logging.PlaybookWarn("parse skipped %d malformed bullet lines in %s", doc.Skipped, s.path)
	}
	return doc, nil
}

// LoadBullets returns the ordered bullet list, each tagged with its section.
func (s *Store) LoadBullets() ([]types.Bullet, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	return doc.Bullets, nil
}

// WriteRaw replaces the playbook content wholesale.
func (s *Store) WriteRaw(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRawLocked(content)
}

func (s *Store) writeRawLocked(content string) error {
	if err := s.Guard(s.path); err != nil {
		return err
	}
	return fsutil.WriteAtomic(s.path, []byte(content), 0644)
}

// WriteBullets serializes bullets grouped by section under the given
// manifest and replaces the playbook.
func (s *Store) WriteBullets(m *Manifest, bullets []types.Bullet) error {
	timer := logging.StartTimer(logging.CategoryPlaybook, fmt.Sprintf("write %d bullets", len(bullets)))
	defer timer.Stop()

	content, err := Render(m, bullets)
	if err != nil {
		return err
	}
	return s.WriteRaw(content)
}

// IncrementCounters applies helpful/harmful increments to bullet lines in
// place, preserving all other text. Bullets missing from the playbook are
// no-ops. Returns how many bullets were updated.
func (s *Store) IncrementCounters(incs map[string]CounterDelta) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryPlaybook, fmt.Sprintf("increment counters for %d bullets", len(incs)))
	defer timer.Stop()

	doc, err := s.Load()
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(incs))
	for id := range incs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	applied := 0
	for _, id := range ids {
		inc := incs[id]
		if inc.Helpful == 0 && inc.Harmful == 0 {
			continue
		}
		idx, ok := doc.LineFor(id)
		if !ok {
			logging.PlaybookDebug("counter update for absent bullet %s skipped", id)
			continue
		}
		line, ok := spliceCounters(doc.Lines[idx], inc)
		if !ok {
			continue
		}
		doc.Lines[idx] = line
		applied++
	}

	if applied == 0 {
		return 0, nil
	}
	if err := s.writeRawLocked(doc.Content()); err != nil {
		return 0, err
	}
	logging.Playbook("incremented counters on %d bullets", applied)
	return applied, nil
}

// spliceCounters rewrites only the helpful/harmful numbers inside one bullet
// line. Increments are additive and never drive a counter below zero.
func spliceCounters(line string, inc CounterDelta) (string, bool) {
	loc := bulletRe.FindStringSubmatchIndex(line)
	if loc == nil {
		return line, false
	}
	helpful, _ := strconv.Atoi(line[loc[4]:loc[5]])
	harmful, _ := strconv.Atoi(line[loc[6]:loc[7]])
	helpful += inc.Helpful
	harmful += inc.Harmful
	if helpful < 0 {
		helpful = 0
	}
	if harmful < 0 {
		harmful = 0
	}
	return line[:loc[4]] + strconv.Itoa(helpful) + line[loc[5]:loc[6]] + strconv.Itoa(harmful) + line[loc[7]:], true
}

// FindInsertPosition returns the body line index after the last bullet (or
// provenance comment) of the section. ok is false when the section is absent.
func (s *Store) FindInsertPosition(section string) (int, bool, error) {
	doc, err := s.Load()
	if err != nil {
		return 0, false, err
	}
	idx, ok := doc.FindInsertPosition(section)
	return idx, ok, nil
}

// RemoveBullets excises the given bullets (and their provenance comments)
// from the playbook, preserving everything else. Returns how many were
// removed.
func (s *Store) RemoveBullets(ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeBulletsLocked(ids)
}

func (s *Store) removeBulletsLocked(ids []string) (int, error) {
	doc, err := s.Load()
	if err != nil {
		return 0, err
	}

	drop := make(map[int]bool)
	removed := 0
	for _, id := range ids {
		idx, ok := doc.LineFor(id)
		if !ok {
			continue
		}
		drop[idx] = true
		if pidx, ok := doc.ProvLineFor(id); ok {
			drop[pidx] = true
		}
		removed++
	}
	if removed == 0 {
		return 0, nil
	}

	kept := make([]string, 0, len(doc.Lines))
	for i, line := range doc.Lines {
		if drop[i] {
			continue
		}
		kept = append(kept, line)
	}
	doc.Lines = kept

	if err := s.writeRawLocked(doc.Content()); err != nil {
		return 0, err
	}
	return removed, nil
}

// RewriteBullets replaces and removes bullet lines in one atomic write.
// Replaced bullets are re-rendered in canonical form on their original line;
// removed bullets lose their provenance comment too. Ids absent from the
// playbook are no-ops. Returns how many lines changed.
func (s *Store) RewriteBullets(replace map[string]types.Bullet, remove []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Load()
	if err != nil {
		return 0, err
	}

	drop := make(map[int]bool)
	changed := 0
	for _, id := range remove {
		idx, ok := doc.LineFor(id)
		if !ok {
			continue
		}
		drop[idx] = true
		if pidx, ok := doc.ProvLineFor(id); ok {
			drop[pidx] = true
		}
		changed++
	}

	ids := make([]string, 0, len(replace))
	for id := range replace {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		idx, ok := doc.LineFor(id)
		if !ok || drop[idx] {
			continue
		}
		doc.Lines[idx] = RenderBulletLine(replace[id])
		changed++
	}

	if changed == 0 {
		return 0, nil
	}

	kept := make([]string, 0, len(doc.Lines))
	for i, line := range doc.Lines {
		if drop[i] {
			continue
		}
		kept = append(kept, line)
	}
	doc.Lines = kept

	if err := s.writeRawLocked(doc.Content()); err != nil {
		return 0, err
	}
	return changed, nil
}

// ArchiveBullets moves the given bullets to the archive file with a date
// stamp, preserving text and counters verbatim. Idempotent: a bullet already
// archived is not appended again, and a bullet already gone from the playbook
// is not an error. The archive append happens before the playbook excision so
// a crash between the two never loses a bullet.
func (s *Store) ArchiveBullets(archivePath string, ids []string, date time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryPlaybook, fmt.Sprintf("archive %d bullets", len(ids)))
	defer timer.Stop()

	if err := s.Guard(archivePath); err != nil {
		return 0, err
	}

	doc, err := s.Load()
	if err != nil {
		return 0, err
	}

	existing, err := os.ReadFile(archivePath)
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to read archive: %w", err)
	}
	archiveContent := string(existing)

	var toRemove []string
	archived := 0
	for _, id := range ids {
		b, ok := doc.BulletByID(id)
		if !ok {
			continue
		}
		toRemove = append(toRemove, id)
		if strings.Contains(archiveContent, "[Bullet #"+id+",") {
			continue
		}
		line := RenderBulletLine(b) + fmt.Sprintf(" <!-- archived %s -->", date.Format("2006-01-02"))
		if err := fsutil.AppendLine(archivePath, []byte(line)); err != nil {
			return archived, err
		}
		archiveContent += line + "\n"
		archived++
	}

	if len(toRemove) > 0 {
		if _, err := s.removeBulletsLocked(toRemove); err != nil {
			return archived, err
		}
	}
	if archived > 0 {
		logging.Playbook("archived %d bullets to %s", archived, archivePath)
	}
	return archived, nil
}
