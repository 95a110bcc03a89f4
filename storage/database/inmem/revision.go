package inmemdb

import (
	"context"
	"sort"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
)

type revisionRepository struct {
	db *DB
}

func NewRevisionRepository(db *DB) revision.Repository {
	return &revisionRepository{db: db}
}

func (repo *revisionRepository) Create(_ context.Context, recs ...revision.Record) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	pairs := make(map[[2]string]bool, len(repo.db.revisions)+len(recs))
	for _, rec := range repo.db.revisions {
		pairs[[2]string{rec.StudentID, rec.TopicID}] = true
	}
	for _, rec := range recs {
		pair := [2]string{rec.StudentID, rec.TopicID}
		if pairs[pair] {
			return revision.ErrDuplicate
		}
		if _, ok := repo.db.revisions[rec.ID]; ok {
			return revision.ErrDuplicate
		}
		pairs[pair] = true
	}
	for _, rec := range recs {
		repo.db.revisions[rec.ID] = rec
	}
	return nil
}

func (repo *revisionRepository) Get(ctx context.Context, id string) (revision.Record, error) {
	if j := journalFrom(ctx); j != nil {
		if rec, ok := j.revisions[id]; ok {
			return rec, nil
		}
	}

	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.revisions[id]; ok {
		return rec, nil
	}
	return revision.Record{}, core.NewNotFoundError("revision")
}

func (repo *revisionRepository) Update(ctx context.Context, rec revision.Record) (revision.Record, error) {
	if j := journalFrom(ctx); j != nil {
		return repo.stage(j, rec)
	}

	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cur, ok := repo.db.revisions[rec.ID]
	if !ok {
		return revision.Record{}, core.NewNotFoundError("revision")
	}
	if cur.Version != rec.Version {
		return revision.Record{}, core.ErrVersionMismatch
	}
	rec.Version++
	repo.db.revisions[rec.ID] = rec
	return rec, nil
}

func (repo *revisionRepository) stage(j *journal, rec revision.Record) (revision.Record, error) {
	if staged, ok := j.revisions[rec.ID]; ok {
		if staged.Version != rec.Version {
			return revision.Record{}, core.ErrVersionMismatch
		}
	} else {
		repo.db.mutex.RLock()
		cur, ok := repo.db.revisions[rec.ID]
		repo.db.mutex.RUnlock()
		if !ok {
			return revision.Record{}, core.NewNotFoundError("revision")
		}
		if cur.Version != rec.Version {
			return revision.Record{}, core.ErrVersionMismatch
		}
		j.revExpected[rec.ID] = rec.Version
	}
	rec.Version++
	j.revisions[rec.ID] = rec
	return rec, nil
}

func (repo *revisionRepository) Delete(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.revisions[id]; !ok {
		return core.NewNotFoundError("revision")
	}
	delete(repo.db.revisions, id)
	return nil
}

// Query reads committed records only.
func (repo *revisionRepository) Query(_ context.Context, filter revision.QueryFilter) ([]revision.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	recs := make([]revision.Record, 0)
	for _, rec := range repo.db.revisions {
		if filter.StudentID != "" && rec.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && rec.CourseID != filter.CourseID {
			continue
		}
		if filter.DueBefore != nil && rec.NextDueAt.After(*filter.DueBefore) {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].NextDueAt.Equal(recs[j].NextDueAt) {
			return recs[i].NextDueAt.Before(recs[j].NextDueAt)
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}
