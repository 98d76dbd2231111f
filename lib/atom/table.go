// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package atom implements the process-wide atom registry: a bijection
// between names and 32-bit ids, seeded with the core protocol's
// predefined atoms.
//
// A Table is shared by every client connection. Entries are created on
// first intern and never removed.
package atom

import "sync"

// ID identifies an interned name.
type ID uint32

// None is the null atom. It names nothing and is never allocated.
const None ID = 0

// FirstDynamic is the id given to the first name interned at runtime.
// Every id below it is predefined.
const FirstDynamic ID = ID(len(predefined)) + 1

// Entry is one interned atom.
type Entry struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Table is a concurrency-safe atom registry. The zero value is not
// usable; create one with NewTable.
type Table struct {
	mu sync.RWMutex
	// names is indexed by id. names[0] is the empty placeholder for
	// None, so len(names) is always the next id to allocate.
	names  []string
	byName map[string]ID
}

// NewTable returns a table holding only the predefined atoms.
func NewTable() *Table {
	table := &Table{
		names:  make([]string, 1, len(predefined)+64),
		byName: make(map[string]ID, len(predefined)+64),
	}
	for _, name := range predefined {
		table.byName[name] = ID(len(table.names))
		table.names = append(table.names, name)
	}
	return table
}

// Intern returns the id for name, allocating the next unused id if the
// name is not yet known. The empty name is a valid atom name.
func (t *Table) Intern(name string) ID {
	id, _ := t.InternCreated(name)
	return id
}

// InternCreated is Intern that also reports whether this call
// allocated the id.
func (t *Table) InternCreated(name string) (ID, bool) {
	t.mu.RLock()
	id, ok := t.byName[name]
	t.mu.RUnlock()
	if ok {
		return id, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Another connection may have interned the name between the two
	// critical sections.
	if id, ok := t.byName[name]; ok {
		return id, false
	}
	id = ID(len(t.names))
	t.names = append(t.names, name)
	t.byName[name] = id
	return id, true
}

// Lookup returns the id for name without creating an entry.
func (t *Table) Lookup(name string) (ID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[name]
	return id, ok
}

// Name returns the name that produced id.
func (t *Table) Name(id ID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id == None || uint64(id) >= uint64(len(t.names)) {
		return "", false
	}
	return t.names[id], true
}

// Len returns the number of atoms in the table, predefined included.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names) - 1
}

// Entries returns every atom in id order, predefined included.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make([]Entry, 0, len(t.names)-1)
	for i := 1; i < len(t.names); i++ {
		entries = append(entries, Entry{ID: ID(i), Name: t.names[i]})
	}
	return entries
}

// Dynamic returns the atoms interned at runtime, in allocation order.
func (t *Table) Dynamic() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make([]Entry, 0, len(t.names)-int(FirstDynamic))
	for i := int(FirstDynamic); i < len(t.names); i++ {
		entries = append(entries, Entry{ID: ID(i), Name: t.names[i]})
	}
	return entries
}

// IsPredefined reports whether id is one of the core protocol's
// built-in atoms.
func IsPredefined(id ID) bool {
	return id != None && id < FirstDynamic
}
