// Package inmemdb implements the repositories in memory. It backs the tests and the API when run without a database.
package inmemdb

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/course"
	"github.com/trezcool/scholar/core/registration"
	"github.com/trezcool/scholar/core/session"
	"github.com/trezcool/scholar/core/user"
)

type (
	row[T any] struct {
		seq int // insertion order
		obj T
	}

	gradeKey struct {
		assignmentID string
		studentID    string
	}

	DB struct {
		mu   sync.RWMutex
		txMu sync.Mutex
		seq  int

		users         map[string]row[user.User]
		sessions      map[string]row[session.Session]
		courses       map[string]row[course.Course]
		assignments   map[string]row[course.Assignment]
		grades        map[gradeKey]row[course.Grade]
		registrations map[string]row[registration.Request]
	}
)

func New() *DB {
	return &DB{
		users:         make(map[string]row[user.User]),
		sessions:      make(map[string]row[session.Session]),
		courses:       make(map[string]row[course.Course]),
		assignments:   make(map[string]row[course.Assignment]),
		grades:        make(map[gradeKey]row[course.Grade]),
		registrations: make(map[string]row[registration.Request]),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	fresh := New()

	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = fresh.users
	db.sessions = fresh.sessions
	db.courses = fresh.courses
	db.assignments = fresh.assignments
	db.grades = fresh.grades
	db.registrations = fresh.registrations
}

// RunInTx runs fn and, when it fails, puts every table back the way it was before.
// Transactions run one at a time; writes made outside of them meanwhile are lost on rollback.
func (db *DB) RunInTx(_ context.Context, fn core.TxFunc) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	if err := fn(nil); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// snapshot copies the tables. Stored objects are replaced, never mutated, so a shallow copy is enough.
func (db *DB) snapshot() *DB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return &DB{
		seq:           db.seq,
		users:         maps.Clone(db.users),
		sessions:      maps.Clone(db.sessions),
		courses:       maps.Clone(db.courses),
		assignments:   maps.Clone(db.assignments),
		grades:        maps.Clone(db.grades),
		registrations: maps.Clone(db.registrations),
	}
}

func (db *DB) restore(snap *DB) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.seq = snap.seq
	db.users = snap.users
	db.sessions = snap.sessions
	db.courses = snap.courses
	db.assignments = snap.assignments
	db.grades = snap.grades
	db.registrations = snap.registrations
}

// nextSeq must be called with the write lock held.
func (db *DB) nextSeq() int {
	db.seq++
	return db.seq
}

// values returns the table's objects in insertion order.
func values[K comparable, T any](table map[K]row[T]) []T {
	rows := make([]row[T], 0, len(table))
	for _, r := range table {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	objs := make([]T, 0, len(rows))
	for _, r := range rows {
		objs = append(objs, r.obj)
	}
	return objs
}

type compareFunc[T any] func(a, b T) int

// orderBy stable-sorts objs by the orderings it knows of, falling back to `fallback` when none apply.
func orderBy[T any](objs []T, ordering []core.DBOrdering, cmps map[string]compareFunc[T], fallback []core.DBOrdering) {
	applicable := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if _, ok := cmps[ord.Field]; ok {
			applicable = append(applicable, ord)
		}
	}
	if len(applicable) == 0 {
		applicable = fallback
	}
	if len(applicable) == 0 {
		return
	}

	sort.SliceStable(objs, func(i, j int) bool {
		for _, ord := range applicable {
			c := cmps[ord.Field](objs[i], objs[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func cmpString(a, b string) int { return strings.Compare(a, b) }

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpTime(a, b time.Time) int { return a.Compare(b) }

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
