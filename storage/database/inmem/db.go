// Package inmemdb is a process-local store. Writes made inside RunInTx are staged in a journal
// and validated against the record versions when the unit of work commits.
package inmemdb

import (
	"context"
	"sync"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
)

type (
	DB struct {
		mutex sync.RWMutex

		revisions   map[string]revision.Record
		progress    map[progress.Key]progress.Entry
		courses     map[string]course.Course
		topics      map[string]course.Topic
		enrollments map[string]map[string]bool // courseID -> studentID
	}

	txKey struct{}

	// journal holds the writes of one unit of work. expected keeps the version each record had
	// when the unit of work first wrote it.
	journal struct {
		revisions   map[string]revision.Record
		revExpected map[string]int64
		progress    map[progress.Key]progress.Entry
		prgExpected map[progress.Key]int64
	}
)

var _ core.TxRunner = (*DB)(nil)

func NewDB() *DB {
	return &DB{
		revisions:   make(map[string]revision.Record),
		progress:    make(map[progress.Key]progress.Entry),
		courses:     make(map[string]course.Course),
		topics:      make(map[string]course.Topic),
		enrollments: make(map[string]map[string]bool),
	}
}

func journalFrom(ctx context.Context) *journal {
	j, _ := ctx.Value(txKey{}).(*journal)
	return j
}

// RunInTx joins the unit of work already carried by ctx, or starts one and commits it when fn succeeds.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if journalFrom(ctx) != nil {
		return fn(ctx)
	}
	j := &journal{
		revisions:   make(map[string]revision.Record),
		revExpected: make(map[string]int64),
		progress:    make(map[progress.Key]progress.Entry),
		prgExpected: make(map[progress.Key]int64),
	}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		return err
	}
	return db.commit(j)
}

// commit applies every staged write, or none if any record moved on since it was read.
func (db *DB) commit(j *journal) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for id, want := range j.revExpected {
		if cur, ok := db.revisions[id]; !ok || cur.Version != want {
			return core.ErrVersionMismatch
		}
	}
	for key, want := range j.prgExpected {
		if db.progress[key].Version != want { // absent entries have version 0
			return core.ErrVersionMismatch
		}
	}
	for id, rec := range j.revisions {
		db.revisions[id] = rec
	}
	for key, e := range j.progress {
		db.progress[key] = e
	}
	return nil
}
