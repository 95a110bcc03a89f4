package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
	"github.com/projectsmartedu/SmartEducation-sub001/core/user"
	inmemdb "github.com/projectsmartedu/SmartEducation-sub001/storage/database/inmem"
	testutil "github.com/projectsmartedu/SmartEducation-sub001/tests"
)

var (
	now     = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	teacher = user.Identity{ID: "t1", Roles: []string{user.RoleTeacher}}
	alice   = user.Identity{ID: "s1", Roles: []string{user.RoleStudent}}
	carol   = user.Identity{ID: "s3", Roles: []string{user.RoleStudent}}
)

func setup(t *testing.T, decayRate float64) (*progress.Service, progress.Repository) {
	progress.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { progress.NowFunc = func() time.Time { return time.Now().UTC() } })

	conf := core.NewTestConfig()
	conf.Mastery.DecayRate = decayRate

	db := inmemdb.NewDB()
	catalog := inmemdb.NewCatalogRepository(db)
	testutil.CreateCourse(t, catalog, "c1", []testutil.TopicSeed{{ID: "t1", Weight: 1}, {ID: "t2", Weight: 1}}, "s1")
	testutil.CreateCourse(t, catalog, "c2", []testutil.TopicSeed{{ID: "t3", Weight: 1}, {ID: "t4", Weight: 1}}, "s1", "s3")

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	repo := inmemdb.NewProgressRepository(db)
	return progress.NewService(conf, repo, catalog, db, validate), repo
}

func intPtr(i int) *int { return &i }

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, 0)

	tests := []struct {
		name    string
		caller  user.Identity
		topicID string
		data    progress.Update
		wantErr func(error) bool
		want    progress.Entry
	}{
		{
			name:    "teacher cannot report",
			caller:  teacher,
			topicID: "t1",
			data:    progress.Update{Score: intPtr(50)},
			wantErr: core.IsForbidden,
		},
		{
			name:    "not enrolled",
			caller:  carol,
			topicID: "t1",
			data:    progress.Update{Score: intPtr(50)},
			wantErr: core.IsForbidden,
		},
		{
			name:    "unknown topic",
			caller:  alice,
			topicID: "nope",
			data:    progress.Update{Score: intPtr(50)},
			wantErr: core.IsNotFound,
		},
		{
			name:    "empty report",
			caller:  alice,
			topicID: "t1",
			wantErr: core.IsValidation,
		},
		{
			name:    "score out of range",
			caller:  alice,
			topicID: "t1",
			data:    progress.Update{Score: intPtr(120)},
			wantErr: func(err error) bool { _, ok := err.(validator.ValidationErrors); return ok },
		},
		{
			name:    "score",
			caller:  alice,
			topicID: "t1",
			data:    progress.Update{Score: intPtr(70), TimeSpentMinutes: intPtr(15)},
			want:    progress.Entry{MasteryScore: 70, Attempts: 1, TimeSpentMinutes: 15, Version: 1},
		},
		{
			name:    "lower score keeps the best",
			caller:  alice,
			topicID: "t1",
			data:    progress.Update{Score: intPtr(40)},
			want:    progress.Entry{MasteryScore: 70, Attempts: 2, TimeSpentMinutes: 15, Version: 2},
		},
		{
			name:    "time only",
			caller:  alice,
			topicID: "t1",
			data:    progress.Update{TimeSpentMinutes: intPtr(5)},
			want:    progress.Entry{MasteryScore: 70, Attempts: 2, TimeSpentMinutes: 20, Version: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := svc.Update(ctx, tt.caller, tt.topicID, tt.data)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "s1", e.StudentID)
			assert.Equal(t, "c1", e.CourseID)
			assert.Equal(t, tt.want.MasteryScore, e.MasteryScore)
			assert.Equal(t, tt.want.Attempts, e.Attempts)
			assert.Equal(t, tt.want.TimeSpentMinutes, e.TimeSpentMinutes)
			assert.Equal(t, tt.want.Version, e.Version)
			if assert.NotNil(t, e.LastActivityAt) {
				assert.True(t, now.Equal(*e.LastActivityAt))
			}
		})
	}
}

func TestService_CheckEnrolled(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, 0)

	assert.NoError(t, svc.CheckEnrolled(ctx, "s1", "c1"))
	assert.NoError(t, svc.CheckEnrolled(ctx, "s3", "c2"))
	assert.True(t, core.IsForbidden(svc.CheckEnrolled(ctx, "s3", "c1")))
	assert.True(t, core.IsNotFound(svc.CheckEnrolled(ctx, "s1", "c9")))
}

func TestService_RecordOutcome(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t, 0)
	key := progress.Key{StudentID: "s1", TopicID: "t1"}

	e, err := svc.RecordOutcome(ctx, key, "c1", progress.OutcomeCompleted, progress.Activity{TimeSpentMinutes: 10})
	require.NoError(t, err)
	assert.Equal(t, 30, e.MasteryScore)

	e, err = svc.RecordOutcome(ctx, key, "c1", progress.OutcomeSkipped, progress.Activity{})
	require.NoError(t, err)
	assert.Equal(t, 30, e.MasteryScore)
	assert.Equal(t, 1, e.Skips)

	_, err = svc.RecordOutcome(ctx, key, "c1", progress.Outcome("lost"), progress.Activity{})
	assert.True(t, core.IsValidation(err))

	stored, err := repo.Get(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, 10, stored.TimeSpentMinutes)
}

func TestService_Decay(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		svc, _ := setup(t, 0)
		_, err := svc.Update(ctx, alice, "t1", progress.Update{Score: intPtr(80)})
		require.NoError(t, err)
		n, err := svc.Decay(ctx, []progress.Key{{StudentID: "s1", TopicID: "t1"}})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("enabled", func(t *testing.T) {
		svc, repo := setup(t, 10)
		_, err := svc.Update(ctx, alice, "t1", progress.Update{Score: intPtr(80)})
		require.NoError(t, err)
		_, err = svc.Update(ctx, alice, "t2", progress.Update{TimeSpentMinutes: intPtr(3)})
		require.NoError(t, err)

		n, err := svc.Decay(ctx, []progress.Key{
			{StudentID: "s1", TopicID: "t1"},
			{StudentID: "s1", TopicID: "t2"}, // score 0 stays
			{StudentID: "s1", TopicID: "t3"}, // no entry
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		e, err := repo.Get(ctx, "s1", "t1")
		require.NoError(t, err)
		assert.Equal(t, 72, e.MasteryScore)
	})
}

func TestService_Stats(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, 0)

	_, err := svc.Update(ctx, alice, "t1", progress.Update{Score: intPtr(90)})
	require.NoError(t, err)
	_, err = svc.Update(ctx, alice, "t3", progress.Update{Score: intPtr(50), TimeSpentMinutes: intPtr(30)})
	require.NoError(t, err)
	_, err = svc.Update(ctx, alice, "t4", progress.Update{Score: intPtr(10)})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalTopics)
	assert.Equal(t, 1, stats.Mastered)
	assert.Equal(t, 1, stats.InProgress)
	assert.Equal(t, 2, stats.NotStarted)
	assert.Equal(t, 3, stats.CompletedTopics)
	assert.Equal(t, 1, stats.WeakTopics)
	assert.Equal(t, 75, stats.CompletionRate)
	assert.Equal(t, 37.5, stats.AverageMastery)
	assert.Equal(t, 30, stats.TotalTimeSpentMinutes)
	require.Len(t, stats.CourseBreakdown, 2)
	assert.Equal(t, 45.0, stats.CourseBreakdown[0].AverageMastery)
	assert.Equal(t, 30.0, stats.CourseBreakdown[1].AverageMastery)

	entries, err := svc.List(ctx, "s1", "c2")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = svc.ListForStudent(ctx, carol, "s1")
	assert.True(t, core.IsForbidden(err))
	entries, err = svc.ListForStudent(ctx, teacher, "s1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
