package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
)

func Test_revisionApi(t *testing.T) {
	f := setup(t)
	studentToken := getToken(t, student)
	student2Token := getToken(t, student2)
	teacherToken := getToken(t, teacher)
	adminToken := getToken(t, admin)

	newRev := marchallObj(t, revision.NewRevision{StudentID: "s1", TopicID: "t1", CourseID: "c1"})

	runTests(t, f.app, []httpTest{
		{name: "Auth required", path: "/v1/revisions", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Bad token", path: "/v1/revisions", token: "nope", wantCode: http.StatusUnauthorized},
		{name: "Student required", path: "/v1/revisions", token: teacherToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "Staff required", method: http.MethodPost, path: "/v1/revisions", body: newRev, token: studentToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Missing topic", method: http.MethodPost, path: "/v1/revisions", token: teacherToken,
			body:     []byte(`{"studentId": "s1", "courseId": "c1"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"topicId": "this field is required"}`),
		},
		{
			name: "Unknown topic", method: http.MethodPost, path: "/v1/revisions", token: teacherToken,
			body:     []byte(`{"studentId": "s1", "topicId": "t9", "courseId": "c1"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"topicId": "unknown topic"}`),
		},
		{name: "Bad status filter", path: "/v1/revisions?status=later", token: studentToken, wantCode: http.StatusBadRequest},
		{name: "Empty list", path: "/v1/revisions", token: studentToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
	})

	// create
	req, rec := newAuthRequest(http.MethodPost, "/v1/revisions", teacherToken, newRev)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created []revision.Record
	decode(t, rec, &created)
	require.Len(t, created, 1)
	rev := created[0]
	assert.Equal(t, "s1", rev.StudentID)
	assert.Equal(t, "teacher", rev.CreatedByRole)
	assert.Equal(t, revision.StatusScheduled, rev.Status)

	detail := "/v1/revisions/" + rev.ID
	runTests(t, f.app, []httpTest{
		{
			name: "Duplicate", method: http.MethodPost, path: "/v1/revisions", body: newRev, token: adminToken,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: revision.ErrDuplicate.Error()}),
		},
		{name: "Owner can read", path: detail, token: studentToken, wantCode: http.StatusOK, wantData: marchallObj(t, rev)},
		{name: "Staff can read", path: detail, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, rev)},
		{name: "Others cannot read", path: detail, token: student2Token, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "Not found", path: "/v1/revisions/missing", token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "revision not found"}),
		},
		{
			name: "Others cannot complete", method: http.MethodPut, path: detail + "/complete", token: student2Token,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Bad score", method: http.MethodPut, path: detail + "/complete", token: studentToken,
			body: []byte(`{"score": 120}`), wantCode: http.StatusBadRequest,
		},
		{name: "Due list", path: "/v1/revisions?status=due", token: studentToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "Upcoming list", path: "/v1/revisions?status=upcoming&courseId=c1", token: studentToken, wantCode: http.StatusOK, wantData: marchallObj(t, created)},
		{name: "Staff list", path: "/v1/revisions/student/s1", token: teacherToken, wantCode: http.StatusOK, wantData: marchallObj(t, created)},
		{name: "Staff list (student)", path: "/v1/revisions/student/s1", token: student2Token, wantCode: http.StatusForbidden},
	})

	// complete, then skip
	req, rec = newAuthRequest(http.MethodPut, detail+"/complete", studentToken, []byte(`{"timeSpentMinutes": 25}`))
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var completed revision.Record
	decode(t, rec, &completed)
	assert.Equal(t, 3, completed.IntervalDays)
	assert.Equal(t, 2.6, completed.EaseFactor)
	assert.Equal(t, 1, completed.Streak)
	assert.Equal(t, int64(2), completed.Version)

	req, rec = newAuthRequest(http.MethodPut, detail+"/skip", studentToken)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var skipped revision.Record
	decode(t, rec, &skipped)
	assert.Equal(t, 1, skipped.IntervalDays)
	assert.Equal(t, 2.4, skipped.EaseFactor)
	assert.Equal(t, 0, skipped.Streak)

	req, rec = newAuthRequest(http.MethodGet, "/v1/revisions/stats", studentToken)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats revision.Stats
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Completions)
	assert.Equal(t, 1, stats.Skips)
	assert.Equal(t, 50, stats.CompletionRate)

	entry, err := f.progressRepo.Get(req.Context(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 25, entry.TimeSpentMinutes)
	assert.Equal(t, 1, entry.Skips)

	// delete
	runTests(t, f.app, []httpTest{
		{name: "Student cannot delete", method: http.MethodDelete, path: detail, token: studentToken, wantCode: http.StatusForbidden},
		{name: "Delete", method: http.MethodDelete, path: detail, token: teacherToken, wantCode: http.StatusNoContent},
		{name: "Gone", path: detail, token: teacherToken, wantCode: http.StatusNotFound},
		{name: "Recreate", method: http.MethodPost, path: "/v1/revisions", body: newRev, token: teacherToken, wantCode: http.StatusCreated},
	})
}

func Test_revisionApi_cohort(t *testing.T) {
	f := setup(t)
	teacherToken := getToken(t, teacher)

	body := []byte(`{"studentIds": ["s1", "s2"], "topicId": "t2", "courseId": "c1", "priority": "high", "type": "quiz"}`)
	req, rec := newAuthRequest(http.MethodPost, "/v1/revisions", teacherToken, body)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created []revision.Record
	decode(t, rec, &created)
	require.Len(t, created, 2)
	for _, rev := range created {
		assert.Equal(t, revision.PriorityHigh, rev.Priority)
		assert.Equal(t, revision.TypeQuiz, rev.Type)
	}

	runTests(t, f.app, []httpTest{
		{
			name: "Bad priority", method: http.MethodPost, path: "/v1/revisions", token: teacherToken,
			body:     []byte(`{"studentId": "s1", "topicId": "t1", "courseId": "c1", "priority": "urgent"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"priority": "must be one of low, medium, high, critical"}`),
		},
		{
			name: "Empty cohort", method: http.MethodPost, path: "/v1/revisions", token: teacherToken,
			body:     []byte(`{"studentIds": [], "topicId": "t1", "courseId": "c1"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"studentIds": "at least one student is required"}`),
		},
		{
			name: "Cohort overlaps", method: http.MethodPost, path: "/v1/revisions", token: teacherToken,
			body: []byte(`{"studentIds": ["s2"], "studentId": "s1", "topicId": "t2", "courseId": "c1"}`), wantCode: http.StatusConflict,
		},
	})
}
