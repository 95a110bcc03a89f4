package revision_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
	"github.com/projectsmartedu/SmartEducation-sub001/core/user"
	inmemdb "github.com/projectsmartedu/SmartEducation-sub001/storage/database/inmem"
	testutil "github.com/projectsmartedu/SmartEducation-sub001/tests"
)

var (
	now     = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	teacher = user.Identity{ID: "t1", Roles: []string{user.RoleTeacher}}
	admin   = user.Identity{ID: "a1", Roles: []string{user.RoleAdminOwner}}
	alice   = user.Identity{ID: "s1", Roles: []string{user.RoleStudent}}
	bob     = user.Identity{ID: "s2", Roles: []string{user.RoleStudent}}
)

type fixture struct {
	db      *inmemdb.DB
	repo    revision.Repository
	prgRepo progress.Repository
	svc     *revision.Service
}

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	revision.InitValidators(validate, translator)
	return validate
}

func setup(t *testing.T, wrap ...func(revision.Repository) revision.Repository) fixture {
	revision.NowFunc = func() time.Time { return now }
	progress.NowFunc = func() time.Time { return now }
	t.Cleanup(func() {
		revision.NowFunc = func() time.Time { return time.Now().UTC() }
		progress.NowFunc = func() time.Time { return time.Now().UTC() }
	})

	conf := core.NewTestConfig()
	db := inmemdb.NewDB()
	catalog := inmemdb.NewCatalogRepository(db)
	testutil.CreateCourse(t, catalog, "c1", []testutil.TopicSeed{{ID: "t1", Weight: 1}, {ID: "t2", Weight: 2}}, "s1", "s2")
	testutil.CreateCourse(t, catalog, "c2", []testutil.TopicSeed{{ID: "t9", Weight: 1}}, "s1")

	validate := newValidator()
	repo := inmemdb.NewRevisionRepository(db)
	for _, w := range wrap {
		repo = w(repo)
	}
	prgRepo := inmemdb.NewProgressRepository(db)
	prgSvc := progress.NewService(conf, prgRepo, catalog, db, validate)
	svc := revision.NewService(conf, repo, prgSvc, catalog, db, validate)
	return fixture{db: db, repo: repo, prgRepo: prgRepo, svc: svc}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  user.Identity
		data    revision.NewRevision
		wantErr func(error) bool
		wantLen int
	}{
		{
			name:    "student cannot create",
			caller:  alice,
			data:    revision.NewRevision{StudentID: "s1", TopicID: "t1", CourseID: "c1"},
			wantErr: core.IsForbidden,
		},
		{
			name:    "missing student",
			caller:  teacher,
			data:    revision.NewRevision{TopicID: "t1", CourseID: "c1"},
			wantErr: func(err error) bool { _, ok := err.(validator.ValidationErrors); return ok },
		},
		{
			name:    "empty cohort",
			caller:  teacher,
			data:    revision.NewRevision{StudentIDs: []string{}, TopicID: "t1", CourseID: "c1"},
			wantErr: core.IsValidation,
		},
		{
			name:    "bad type",
			caller:  teacher,
			data:    revision.NewRevision{StudentID: "s1", TopicID: "t1", CourseID: "c1", Type: "essay"},
			wantErr: func(err error) bool { _, ok := err.(validator.ValidationErrors); return ok },
		},
		{
			name:    "unknown topic",
			caller:  teacher,
			data:    revision.NewRevision{StudentID: "s1", TopicID: "nope", CourseID: "c1"},
			wantErr: core.IsValidation,
		},
		{
			name:    "topic of another course",
			caller:  teacher,
			data:    revision.NewRevision{StudentID: "s1", TopicID: "t9", CourseID: "c1"},
			wantErr: core.IsValidation,
		},
		{
			name:    "single student",
			caller:  teacher,
			data:    revision.NewRevision{StudentID: " s1 ", TopicID: "t1", CourseID: "c1"},
			wantLen: 1,
		},
		{
			name:    "cohort",
			caller:  admin,
			data:    revision.NewRevision{StudentIDs: []string{"s1", "s2", "s1"}, TopicID: "t2", CourseID: "c1", Priority: revision.PriorityHigh},
			wantLen: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			recs, err := f.svc.Create(ctx, tt.caller, tt.data)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			require.Len(t, recs, tt.wantLen)
			for _, rec := range recs {
				assert.NotEmpty(t, rec.ID)
				assert.Equal(t, int64(1), rec.Version)
				assert.Equal(t, revision.StatusScheduled, rec.Status)
				assert.Equal(t, revision.TypeReview, rec.Type)
				assert.Equal(t, tt.caller.ID, rec.CreatedBy)
				assert.Equal(t, tt.caller.OwnerRole(), rec.CreatedByRole)
				assert.True(t, now.Add(24*time.Hour).Equal(rec.NextDueAt))
			}
		})
	}
}

func TestService_Create_duplicate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	recs, err := f.svc.Create(ctx, teacher, revision.NewRevision{StudentID: "s1", TopicID: "t1", CourseID: "c1"})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, teacher, revision.NewRevision{StudentID: "s1", TopicID: "t1", CourseID: "c1"})
	assert.True(t, core.IsConflict(err))

	// a cohort containing a scheduled student creates nothing
	_, err = f.svc.Create(ctx, teacher, revision.NewRevision{StudentIDs: []string{"s2", "s1"}, TopicID: "t1", CourseID: "c1"})
	assert.True(t, core.IsConflict(err))
	bobs, err := f.svc.List(ctx, "s2", revision.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, bobs)

	// deleting frees the pair
	require.NoError(t, f.svc.Delete(ctx, teacher, recs[0].ID))
	_, err = f.svc.Create(ctx, teacher, revision.NewRevision{StudentID: "s1", TopicID: "t1", CourseID: "c1"})
	assert.NoError(t, err)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	recs, err := f.svc.Create(ctx, teacher, revision.NewRevision{StudentID: "s1", TopicID: "t1", CourseID: "c1"})
	require.NoError(t, err)

	assert.True(t, core.IsForbidden(f.svc.Delete(ctx, alice, recs[0].ID)))
	assert.True(t, core.IsNotFound(f.svc.Delete(ctx, teacher, "missing")))
	require.NoError(t, f.svc.Delete(ctx, admin, recs[0].ID))
	_, err = f.svc.Get(ctx, teacher, recs[0].ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Complete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	recs, err := f.svc.Create(ctx, teacher, revision.NewRevision{StudentID: "s1", TopicID: "t1", CourseID: "c1"})
	require.NoError(t, err)
	id := recs[0].ID

	_, err = f.svc.Complete(ctx, bob, id, revision.Review{})
	assert.True(t, core.IsForbidden(err))
	_, err = f.svc.Complete(ctx, teacher, id, revision.Review{})
	assert.True(t, core.IsForbidden(err))
	_, err = f.svc.Complete(ctx, alice, "missing", revision.Review{})
	assert.True(t, core.IsNotFound(err))

	rec, err := f.svc.Complete(ctx, alice, id, revision.Review{TimeSpentMinutes: 20})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.IntervalDays)
	assert.Equal(t, 2.6, rec.EaseFactor)
	assert.Equal(t, 1, rec.Streak)
	assert.Equal(t, int64(2), rec.Version)

	entry, err := f.prgRepo.Get(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 30, entry.MasteryScore)
	assert.Equal(t, 1, entry.Attempts)
	assert.Equal(t, 20, entry.TimeSpentMinutes)
	assert.Equal(t, "c1", entry.CourseID)

	score := 95
	_, err = f.svc.Complete(ctx, alice, id, revision.Review{Score: &score})
	require.NoError(t, err)
	entry, err = f.prgRepo.Get(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 95, entry.MasteryScore)
	assert.Equal(t, progress.StateMastered, entry.State())

	bad := 101
	_, err = f.svc.Complete(ctx, alice, id, revision.Review{Score: &bad})
	assert.Error(t, err)
}

func TestService_Skip(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	recs, err := f.svc.Create(ctx, teacher, revision.NewRevision{StudentID: "s1", TopicID: "t1", CourseID: "c1"})
	require.NoError(t, err)

	rec, err := f.svc.Skip(ctx, alice, recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.IntervalDays)
	assert.Equal(t, 2.3, rec.EaseFactor)
	assert.Equal(t, 1, rec.Skips)
	assert.Equal(t, progress.OutcomeSkipped, rec.LastOutcome)

	entry, err := f.prgRepo.Get(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.MasteryScore)
	assert.Equal(t, 1, entry.Skips)
}

// racingRepo loses the first n version checks, as if another writer got there first.
type racingRepo struct {
	revision.Repository
	losses int
}

func (r *racingRepo) Update(ctx context.Context, rec revision.Record) (revision.Record, error) {
	if r.losses > 0 {
		r.losses--
		return revision.Record{}, core.ErrVersionMismatch
	}
	return r.Repository.Update(ctx, rec)
}

func TestService_Complete_retry(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		losses   int
		conflict bool
	}{
		{name: "wins after retries", losses: 2},
		{name: "gives up", losses: 100, conflict: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			racer := &racingRepo{}
			f := setup(t, func(repo revision.Repository) revision.Repository {
				racer.Repository = repo
				return racer
			})
			recs, err := f.svc.Create(ctx, teacher, revision.NewRevision{StudentID: "s1", TopicID: "t1", CourseID: "c1"})
			require.NoError(t, err)

			racer.losses = tt.losses
			rec, err := f.svc.Complete(ctx, alice, recs[0].ID, revision.Review{})
			if tt.conflict {
				assert.True(t, core.IsConflict(err))
				_, err = f.prgRepo.Get(ctx, "s1", "t1")
				assert.True(t, core.IsNotFound(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, rec.Completions)
			entry, err := f.prgRepo.Get(ctx, "s1", "t1")
			require.NoError(t, err)
			assert.Equal(t, 1, entry.Attempts)
		})
	}
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	mk := func(topic, course string, due time.Time) revision.Record {
		recs, err := f.svc.Create(ctx, teacher, revision.NewRevision{StudentID: "s1", TopicID: topic, CourseID: course, FirstDueAt: &due})
		require.NoError(t, err)
		return recs[0]
	}
	overdue := mk("t1", "c1", now.Add(-2*time.Hour))
	dueNow := mk("t2", "c1", now.Add(-10*time.Minute))
	upcoming := mk("t9", "c2", now.Add(48*time.Hour))

	tests := []struct {
		name   string
		filter revision.ListFilter
		want   []string
	}{
		{name: "all", want: []string{overdue.ID, dueNow.ID, upcoming.ID}},
		{name: "due", filter: revision.ListFilter{Status: revision.DueNow}, want: []string{overdue.ID, dueNow.ID}},
		{name: "overdue", filter: revision.ListFilter{Status: revision.DueOverdue}, want: []string{overdue.ID}},
		{name: "upcoming", filter: revision.ListFilter{Status: revision.DueUpcoming}, want: []string{upcoming.ID}},
		{name: "course", filter: revision.ListFilter{CourseID: "c2"}, want: []string{upcoming.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := f.svc.List(ctx, "s1", tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(recs))
			for _, rec := range recs {
				ids = append(ids, rec.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	_, err := f.svc.List(ctx, "s1", revision.ListFilter{Status: "later"})
	assert.Error(t, err)

	_, err = f.svc.ListForStudent(ctx, bob, "s1")
	assert.True(t, core.IsForbidden(err))
	recs, err := f.svc.ListForStudent(ctx, teacher, "s1")
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	_, err = f.svc.Get(ctx, bob, overdue.ID)
	assert.True(t, core.IsForbidden(err))
	_, err = f.svc.Get(ctx, alice, overdue.ID)
	assert.NoError(t, err)

	keys, err := f.svc.OverdueKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []progress.Key{{StudentID: "s1", TopicID: "t1"}}, keys)
}

func TestService_Stats(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	past := now.Add(-3 * time.Hour)
	recs, err := f.svc.Create(ctx, teacher, revision.NewRevision{StudentID: "s1", TopicID: "t1", CourseID: "c1", FirstDueAt: &past})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, teacher, revision.NewRevision{StudentID: "s1", TopicID: "t2", CourseID: "c1"})
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, revision.Stats{Total: 2, Due: 1, Overdue: 1, Upcoming: 1, AverageEase: 2.5}, stats)

	_, err = f.svc.Complete(ctx, alice, recs[0].ID, revision.Review{})
	require.NoError(t, err)
	_, err = f.svc.Skip(ctx, alice, recs[0].ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, alice, recs[0].ID, revision.Review{})
	require.NoError(t, err)

	stats, err = f.svc.Stats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Completions)
	assert.Equal(t, 1, stats.Skips)
	assert.Equal(t, 67, stats.CompletionRate)
	assert.Equal(t, 1, stats.BestStreak)
	assert.Equal(t, 0, stats.Due)
}
