package inmemdb

import (
	"context"
	"sort"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
)

type progressRepository struct {
	db *DB
}

func NewProgressRepository(db *DB) progress.Repository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) Get(ctx context.Context, studentID, topicID string) (progress.Entry, error) {
	key := progress.Key{StudentID: studentID, TopicID: topicID}
	if j := journalFrom(ctx); j != nil {
		if e, ok := j.progress[key]; ok {
			return e, nil
		}
	}

	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.progress[key]; ok {
		return e, nil
	}
	return progress.Entry{}, core.NewNotFoundError("progress")
}

func (repo *progressRepository) Save(ctx context.Context, e progress.Entry) (progress.Entry, error) {
	key := progress.Key{StudentID: e.StudentID, TopicID: e.TopicID}
	if j := journalFrom(ctx); j != nil {
		if staged, ok := j.progress[key]; ok {
			if staged.Version != e.Version {
				return progress.Entry{}, core.ErrVersionMismatch
			}
		} else {
			repo.db.mutex.RLock()
			cur := repo.db.progress[key]
			repo.db.mutex.RUnlock()
			if cur.Version != e.Version {
				return progress.Entry{}, core.ErrVersionMismatch
			}
			j.prgExpected[key] = e.Version
		}
		e.Version++
		j.progress[key] = e
		return e, nil
	}

	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.db.progress[key].Version != e.Version {
		return progress.Entry{}, core.ErrVersionMismatch
	}
	e.Version++
	repo.db.progress[key] = e
	return e, nil
}

// Query reads committed entries only.
func (repo *progressRepository) Query(_ context.Context, filter progress.QueryFilter) ([]progress.Entry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entries := make([]progress.Entry, 0)
	for _, e := range repo.db.progress {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StudentID != entries[j].StudentID {
			return entries[i].StudentID < entries[j].StudentID
		}
		return entries[i].TopicID < entries[j].TopicID
	})
	return entries, nil
}
