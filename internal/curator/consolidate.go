package curator

import (
	"hone/internal/logging"
	"hone/internal/types"
)

// Consolidate rescans the playbook and merges bullets whose normalized
// content matches, across sections. The winner is the copy with the highest
// helpful counter (ties prefer the lowest harmful); it absorbs every loser's
// counters and carries an aggregation count. Returns how many bullets were
// folded away.
func (c *Curator) Consolidate() (int, error) {
	bullets, err := c.store.LoadBullets()
	if err != nil {
		return 0, err
	}

	groups := make(map[string][]types.Bullet)
	order := make([]string, 0)
	for _, b := range bullets {
		key := types.Normalize(b.Content)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], b)
	}

	replace := make(map[string]types.Bullet)
	var remove []string
	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}

		winner := group[0]
		for _, b := range group[1:] {
			if b.Helpful > winner.Helpful ||
				(b.Helpful == winner.Helpful && b.Harmful < winner.Harmful) {
				winner = b
			}
		}

		merged := winner
		merged.Helpful = 0
		merged.Harmful = 0
		merged.AggregatedFrom = 0
		for _, b := range group {
			merged.Helpful += b.Helpful
			merged.Harmful += b.Harmful
			merged.AggregatedFrom += instanceCount(b)
			if b.ID != winner.ID {
				remove = append(remove, b.ID)
			}
		}
		replace[winner.ID] = merged

		logging.Curate("consolidating %d bullets into %s (%q)", len(group), winner.ID, key)
	}

	if len(remove) == 0 {
		return 0, nil
	}
	if _, err := c.store.RewriteBullets(replace, remove); err != nil {
		return 0, err
	}
	return len(remove), nil
}

// instanceCount is how many original bullets a bullet stands for.
func instanceCount(b types.Bullet) int {
	if b.AggregatedFrom > 1 {
		return b.AggregatedFrom
	}
	return 1
}
