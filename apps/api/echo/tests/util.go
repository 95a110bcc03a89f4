package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/projectsmartedu/SmartEducation-sub001/apps/api/echo"
	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
	"github.com/projectsmartedu/SmartEducation-sub001/core/knowledge"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
	"github.com/projectsmartedu/SmartEducation-sub001/core/user"
	"github.com/projectsmartedu/SmartEducation-sub001/services/realtime"
	inmemdb "github.com/projectsmartedu/SmartEducation-sub001/storage/database/inmem"
	"github.com/projectsmartedu/SmartEducation-sub001/tests"
)

var (
	conf = core.NewTestConfig()

	student  = user.Identity{ID: "s1", Roles: []string{user.RoleStudent}}
	student2 = user.Identity{ID: "s2", Roles: []string{user.RoleStudent}}
	teacher  = user.Identity{ID: "t1", Roles: []string{user.RoleTeacher}}
	admin    = user.Identity{ID: "a1", Roles: []string{user.RoleAdminPrincipal}}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type fixture struct {
	app          *Server
	hub          *realtime.Hub
	catalog      course.Store
	revisionSvc  *revision.Service
	progressRepo progress.Repository
}

// setup builds the API over a fresh in-memory store holding course c1 (t1, t2) with s1 and s2 enrolled.
func setup(t *testing.T) fixture {
	db := inmemdb.NewDB()
	catalog := inmemdb.NewCatalogRepository(db)
	testutil.CreateCourse(t, catalog, "c1", []testutil.TopicSeed{{ID: "t1", Weight: 1}, {ID: "t2", Weight: 1}}, "s1", "s2")
	revRepo := inmemdb.NewRevisionRepository(db)
	prgRepo := inmemdb.NewProgressRepository(db)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	revision.InitValidators(validate, translator)

	logger := testutil.NewLogger()
	prgSvc := progress.NewService(conf, prgRepo, catalog, db, validate)
	revSvc := revision.NewService(conf, revRepo, prgSvc, catalog, db, validate)
	hub := realtime.NewHub(logger)

	app := NewServer(conf, logger, validate, translator, &Deps{
		RevisionSvc: revSvc,
		ProgressSvc: prgSvc,
		Knowledge:   knowledge.NewAggregator(conf, catalog, prgRepo, revRepo),
		Hub:         hub,
	})
	return fixture{app: app, hub: hub, catalog: catalog, revisionSvc: revSvc, progressRepo: prgRepo}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, id user.Identity) string {
	token, err := GenerateToken(NewClaims(id, conf), conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, app http.Handler, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}
