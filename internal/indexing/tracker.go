// Package indexing implements IndexingCoordinator (spec §4.7): a
// single-flight background indexing job with change tracking and an
// end-of-session auto full-vs-incremental HNSW rebuild decision.
package indexing

import "sync"

// ChangeTracker records, per collection, which point ids were added,
// updated, or deleted during one indexing session (spec §3). Created at
// session start, consulted at end, then discarded.
type ChangeTracker struct {
	mu          sync.Mutex
	collections map[string]*collectionChanges
}

type collectionChanges struct {
	added   map[string]struct{}
	updated map[string]struct{}
	deleted map[string]struct{}
}

func newCollectionChanges() *collectionChanges {
	return &collectionChanges{
		added:   make(map[string]struct{}),
		updated: make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}
}

// NewChangeTracker returns an empty tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{collections: make(map[string]*collectionChanges)}
}

func (t *ChangeTracker) entry(collection string) *collectionChanges {
	c, ok := t.collections[collection]
	if !ok {
		c = newCollectionChanges()
		t.collections[collection] = c
	}

	return c
}

// UpsertPoint records pointID as added or updated, based on whether it
// already existed in the ID index before this session touched it.
func (t *ChangeTracker) UpsertPoint(collection, pointID string, existedBefore bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.entry(collection)

	delete(c.deleted, pointID)

	if existedBefore {
		c.updated[pointID] = struct{}{}
	} else {
		c.added[pointID] = struct{}{}
	}
}

// DeletePoint records pointID as deleted.
func (t *ChangeTracker) DeletePoint(collection, pointID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.entry(collection)

	delete(c.added, pointID)
	delete(c.updated, pointID)
	c.deleted[pointID] = struct{}{}
}

// Changes returns the added/updated/deleted point ids for collection.
func (t *ChangeTracker) Changes(collection string) (added, updated, deleted []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.collections[collection]
	if !ok {
		return nil, nil, nil
	}

	return keys(c.added), keys(c.updated), keys(c.deleted)
}

// HasChanges reports whether collection saw any mutation this session.
func (t *ChangeTracker) HasChanges(collection string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.collections[collection]

	return ok && (len(c.added) > 0 || len(c.updated) > 0 || len(c.deleted) > 0)
}

func keys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}

	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}
