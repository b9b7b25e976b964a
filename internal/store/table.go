package store

import (
	"sort"
)

// Document is a schemaless row. Field values survive a trip through JSON,
// so numeric fields read back from disk arrive as float64.
type Document map[string]any

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Table is a named collection of documents with store-assigned integer
// identities. Identity is separate from any domain key the documents carry.
//
// Tables are not safe for concurrent use on their own; handles are only
// reachable through Store.WithLock, which serializes all access.
type Table struct {
	store  *Store
	name   string
	docs   map[int]Document
	order  []int
	nextID int
}

func newTable(s *Store, name string) *Table {
	return &Table{
		store:  s,
		name:   name,
		docs:   make(map[int]Document),
		nextID: 1,
	}
}

// Insert adds a document and returns its assigned identity.
func (t *Table) Insert(doc Document) int {
	id := t.nextID
	t.nextID++
	t.docs[id] = doc.Clone()
	t.order = append(t.order, id)
	t.store.dirty = true
	return id
}

// Get returns the first document matching pred, in insertion order.
func (t *Table) Get(pred func(Document) bool) (Document, bool) {
	for _, id := range t.order {
		if pred(t.docs[id]) {
			return t.docs[id].Clone(), true
		}
	}
	return nil, false
}

// GetByID returns the document with the given store-assigned identity.
func (t *Table) GetByID(id int) (Document, bool) {
	doc, ok := t.docs[id]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// Update merges fields into every document matching pred and returns the
// number of documents touched.
func (t *Table) Update(fields Document, pred func(Document) bool) int {
	n := 0
	for _, id := range t.order {
		doc := t.docs[id]
		if !pred(doc) {
			continue
		}
		for k, v := range fields {
			doc[k] = v
		}
		n++
	}
	if n > 0 {
		t.store.dirty = true
	}
	return n
}

// All returns every document in insertion order.
func (t *Table) All() []Document {
	out := make([]Document, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.docs[id].Clone())
	}
	return out
}

// Len returns the number of documents in the table.
func (t *Table) Len() int {
	return len(t.order)
}

// Truncate removes all documents. Identities are not reused.
func (t *Table) Truncate() {
	t.docs = make(map[int]Document)
	t.order = nil
	t.store.dirty = true
}

// load replaces the table contents from a disk snapshot keyed by identity.
func (t *Table) load(rows map[int]Document) {
	t.docs = rows
	t.order = t.order[:0]
	maxID := 0
	for id := range rows {
		t.order = append(t.order, id)
		if id > maxID {
			maxID = id
		}
	}
	sort.Ints(t.order)
	t.nextID = maxID + 1
}
