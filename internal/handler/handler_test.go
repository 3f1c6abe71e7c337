package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/level-portal-api/internal/dto"
	"github.com/noah-isme/level-portal-api/internal/middleware"
	"github.com/noah-isme/level-portal-api/internal/models"
	"github.com/noah-isme/level-portal-api/internal/service"
	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
)

type responseEnvelope struct {
	Data    json.RawMessage        `json:"data"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"meta"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newContext(method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return c, rec
}

type fakeAuthSrv struct {
	session *models.Session
	err     error
	signup  dto.SignupRequest
}

func (f *fakeAuthSrv) AdminLogin(context.Context, dto.LoginRequest) (*models.Session, error) {
	return f.session, f.err
}

func (f *fakeAuthSrv) StudentLogin(context.Context, dto.LoginRequest) (*models.Session, error) {
	return f.session, f.err
}

func (f *fakeAuthSrv) Signup(_ context.Context, req dto.SignupRequest) (*models.Session, error) {
	f.signup = req
	return f.session, f.err
}

func (f *fakeAuthSrv) ExternalLogin(context.Context, dto.GoogleLoginRequest) (*models.Session, error) {
	return f.session, f.err
}

func TestAuthHandlerLoginFailure(t *testing.T) {
	h := NewAuthHandler(&fakeAuthSrv{err: appErrors.ErrInvalidCredentials})
	c, rec := newContext(http.MethodPost, "/auth/admin/login", []byte(`{"email":"a@b.c","password":"x"}`))

	h.AdminLogin(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, decode(t, rec).Error.Code)
}

func TestAuthHandlerSignupRejectsMalformedJSON(t *testing.T) {
	h := NewAuthHandler(&fakeAuthSrv{})
	c, rec := newContext(http.MethodPost, "/auth/student/signup", []byte(`{"email":`))

	h.Signup(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerSignupCreated(t *testing.T) {
	srv := &fakeAuthSrv{session: &models.Session{Token: "tok"}}
	h := NewAuthHandler(srv)
	c, rec := newContext(http.MethodPost, "/auth/student/signup", []byte(`{"name":"Ana","email":"ana@example.com","password":"secret1"}`))

	h.Signup(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ana@example.com", srv.signup.Email)
	assert.Contains(t, string(decode(t, rec).Data), `"token":"tok"`)
}

func TestAuthHandlerVerifyEchoesClaims(t *testing.T) {
	h := NewAuthHandler(&fakeAuthSrv{})
	c, rec := newContext(http.MethodGet, "/auth/verify", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s-1", Email: "s@example.com", Role: models.RoleStudent, Level: 4, AccessibleLevels: []int{6}})

	h.Verify(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		Valid bool            `json:"valid"`
		User  models.UserInfo `json:"user"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.True(t, data.Valid)
	require.NotNil(t, data.User.Level)
	assert.Equal(t, 4, *data.User.Level)
	assert.Equal(t, []int{6}, data.User.AccessibleLevels)
}

func TestAuthHandlerVerifyRequiresSession(t *testing.T) {
	h := NewAuthHandler(&fakeAuthSrv{})
	c, rec := newContext(http.MethodGet, "/auth/verify", nil)

	h.Verify(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type fakeLevelRequestSrv struct {
	created   *models.LevelRequest
	createErr error
	studentID string
	decision  dto.DecisionRequest
	decideErr error
	count     int
	hit       bool
}

func (f *fakeLevelRequestSrv) Create(_ context.Context, studentID string, _ dto.CreateLevelRequest) (*models.LevelRequest, error) {
	f.studentID = studentID
	return f.created, f.createErr
}

func (f *fakeLevelRequestSrv) Approve(_ context.Context, id string, req dto.DecisionRequest) (*models.LevelRequest, error) {
	f.decision = req
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	return &models.LevelRequest{ID: id, Status: models.LevelRequestApproved}, nil
}

func (f *fakeLevelRequestSrv) Reject(_ context.Context, id string, req dto.DecisionRequest) (*models.LevelRequest, error) {
	f.decision = req
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	return &models.LevelRequest{ID: id, Status: models.LevelRequestRejected}, nil
}

func (f *fakeLevelRequestSrv) ListAll(context.Context) ([]models.LevelRequestDetail, error) {
	return []models.LevelRequestDetail{}, nil
}

func (f *fakeLevelRequestSrv) ListPending(context.Context) ([]models.LevelRequestDetail, error) {
	return []models.LevelRequestDetail{}, nil
}

func (f *fakeLevelRequestSrv) ListMine(context.Context, string) ([]models.LevelRequest, error) {
	return []models.LevelRequest{}, nil
}

func (f *fakeLevelRequestSrv) PendingCount(context.Context) (int, bool, error) {
	return f.count, f.hit, nil
}

func TestLevelRequestHandlerCreateUsesSessionStudent(t *testing.T) {
	srv := &fakeLevelRequestSrv{created: &models.LevelRequest{ID: "r-1"}}
	h := NewLevelRequestHandler(srv)
	c, rec := newContext(http.MethodPost, "/level-requests", []byte(`{"requestedLevel":4}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s-9", Role: models.RoleStudent})

	h.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "s-9", srv.studentID)
}

func TestLevelRequestHandlerCreateMapsDuplicate(t *testing.T) {
	h := NewLevelRequestHandler(&fakeLevelRequestSrv{createErr: appErrors.Clone(appErrors.ErrDuplicatePending, "")})
	c, rec := newContext(http.MethodPost, "/level-requests", []byte(`{"requestedLevel":4}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s-9", Role: models.RoleStudent})

	h.Create(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLevelRequestHandlerApproveWithoutBody(t *testing.T) {
	srv := &fakeLevelRequestSrv{}
	h := NewLevelRequestHandler(srv)
	c, rec := newContext(http.MethodPost, "/level-requests/r-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "r-1"}}

	h.Approve(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "level request approved", decode(t, rec).Message)
	assert.Empty(t, srv.decision.AdminResponse)
}

func TestLevelRequestHandlerRejectTerminal(t *testing.T) {
	srv := &fakeLevelRequestSrv{decideErr: appErrors.Clone(appErrors.ErrConflict, "level request already decided")}
	h := NewLevelRequestHandler(srv)
	c, rec := newContext(http.MethodPost, "/level-requests/r-1/reject", []byte(`{"adminResponse":"no"}`))
	c.Params = gin.Params{{Key: "id", Value: "r-1"}}

	h.Reject(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no", srv.decision.AdminResponse)
}

func TestLevelRequestHandlerPendingCountMeta(t *testing.T) {
	h := NewLevelRequestHandler(&fakeLevelRequestSrv{count: 3, hit: true})
	c, rec := newContext(http.MethodGet, "/level-requests/pending/count", nil)

	h.PendingCount(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.JSONEq(t, `{"count":3}`, string(env.Data))
}

type fakeVideoSrv struct {
	upload    dto.UploadVideoInput
	uploaded  []byte
	lookupErr error
	mediaPath string
}

func (f *fakeVideoSrv) MaxUploadBytes() int64 { return 1 << 20 }

func (f *fakeVideoSrv) Upload(_ context.Context, in dto.UploadVideoInput) (*models.VideoAsset, error) {
	f.upload = in
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(in.Body)
	f.uploaded = buf.Bytes()
	return &models.VideoAsset{ID: "v-1", Level: in.Level, Filename: "L2_1_5.mp4"}, nil
}

func (f *fakeVideoSrv) RegisterExternalLink(context.Context, dto.ExternalLinkRequest) (*models.VideoAsset, error) {
	return &models.VideoAsset{ID: "v-2"}, nil
}

func (f *fakeVideoSrv) ListByLevel(context.Context, int) ([]models.VideoAsset, error) {
	return []models.VideoAsset{}, nil
}

func (f *fakeVideoSrv) ListAll(context.Context) ([]models.VideoAsset, error) {
	return []models.VideoAsset{}, nil
}

func (f *fakeVideoSrv) LookupBySheet(context.Context, int, int) (*models.VideoNeighbourhood, error) {
	return nil, f.lookupErr
}

func (f *fakeVideoSrv) Sync(context.Context) (*dto.SyncResult, error) {
	return &dto.SyncResult{Message: "Sync completed", Added: 1, Skipped: []string{"random.mp4"}}, nil
}

func (f *fakeVideoSrv) Delete(context.Context, string) error { return nil }

func (f *fakeVideoSrv) OpenMedia(token string) (*os.File, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired media link")
	}
	return os.Open(f.mediaPath)
}

func multipartUpload(t *testing.T, fields map[string]string, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if payload != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="video"; filename="clip.mp4"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestVideoHandlerUpload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeVideoSrv{}
	h := NewVideoHandler(srv)

	body, contentType := multipartUpload(t, map[string]string{"level": "2", "sheetStart": "1", "sheetEnd": "5"}, "video/mp4", []byte("frames"))
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/videos/upload", body)
	c.Request.Header.Set("Content-Type", contentType)

	h.Upload(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, srv.upload.Level)
	assert.Equal(t, 5, srv.upload.SheetEnd)
	assert.Equal(t, "video/mp4", srv.upload.ContentType)
	assert.Equal(t, []byte("frames"), srv.uploaded)
}

func TestVideoHandlerUploadRequiresFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewVideoHandler(&fakeVideoSrv{})

	body, contentType := multipartUpload(t, map[string]string{"level": "2", "sheetStart": "1", "sheetEnd": "5"}, "", nil)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/videos/upload", body)
	c.Request.Header.Set("Content-Type", contentType)

	h.Upload(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVideoHandlerBySheetRejectsNonNumeric(t *testing.T) {
	h := NewVideoHandler(&fakeVideoSrv{})
	c, rec := newContext(http.MethodGet, "/videos/level/2/sheet/x", nil)
	c.Params = gin.Params{{Key: "level", Value: "2"}, {Key: "sheet", Value: "x"}}

	h.BySheet(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVideoHandlerBySheetNotFound(t *testing.T) {
	h := NewVideoHandler(&fakeVideoSrv{lookupErr: appErrors.Clone(appErrors.ErrNotFound, "video not found for this sheet")})
	c, rec := newContext(http.MethodGet, "/videos/level/2/sheet/40", nil)
	c.Params = gin.Params{{Key: "level", Value: "2"}, {Key: "sheet", Value: "40"}}

	h.BySheet(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "video not found for this sheet", decode(t, rec).Error.Message)
}

func TestVideoHandlerSyncReportsSkipped(t *testing.T) {
	h := NewVideoHandler(&fakeVideoSrv{})
	c, rec := newContext(http.MethodPost, "/videos/sync", nil)

	h.Sync(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var result dto.SyncResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &result))
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, []string{"random.mp4"}, result.Skipped)
}

func TestVideoHandlerMediaStreamsRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "L1_1_2.mp4")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))
	h := NewVideoHandler(&fakeVideoSrv{mediaPath: path})

	c, rec := newContext(http.MethodGet, "/media/good", nil)
	c.Params = gin.Params{{Key: "token", Value: "good"}}
	c.Request.Header.Set("Range", "bytes=2-5")

	h.Media(c)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
}

func TestVideoHandlerMediaRejectsBadToken(t *testing.T) {
	h := NewVideoHandler(&fakeVideoSrv{})
	c, rec := newContext(http.MethodGet, "/media/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}

	h.Media(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

type fakeStudentSrv struct {
	query    dto.StudentListQuery
	stats    *models.StudentStats
	statsHit bool
	profile  string
}

func (f *fakeStudentSrv) List(_ context.Context, query dto.StudentListQuery) ([]models.Student, *models.Pagination, error) {
	f.query = query
	return []models.Student{}, &models.Pagination{Page: query.Page, PageSize: query.PageSize}, nil
}

func (f *fakeStudentSrv) Get(context.Context, string) (*models.Student, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
}

func (f *fakeStudentSrv) Profile(_ context.Context, id string) (*models.Student, error) {
	f.profile = id
	return &models.Student{ID: id}, nil
}

func (f *fakeStudentSrv) Create(context.Context, dto.CreateStudentRequest) (*models.Student, error) {
	return &models.Student{ID: "s-1"}, nil
}

func (f *fakeStudentSrv) Update(_ context.Context, id string, _ dto.UpdateStudentRequest) (*models.Student, error) {
	return &models.Student{ID: id}, nil
}

func (f *fakeStudentSrv) Delete(context.Context, string) error { return nil }

func (f *fakeStudentSrv) Stats(context.Context) (*models.StudentStats, bool, error) {
	return f.stats, f.statsHit, nil
}

func (f *fakeStudentSrv) RecordActivity(_ context.Context, id string, req dto.ActivityRequest) (*models.ActivityLogEntry, error) {
	return &models.ActivityLogEntry{StudentID: id, Sheet: req.Sheet}, nil
}

func (f *fakeStudentSrv) Activity(context.Context, string) ([]models.ActivityLogEntry, error) {
	return []models.ActivityLogEntry{}, nil
}

type fakeExporter struct {
	format string
}

func (f *fakeExporter) Roster(_ context.Context, format string) (*service.ExportResult, error) {
	f.format = format
	if format != "csv" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	return &service.ExportResult{Filename: "students-20260101.csv", ContentType: "text/csv", Body: []byte("Name\n")}, nil
}

func TestStudentHandlerListParsesQuery(t *testing.T) {
	srv := &fakeStudentSrv{}
	h := NewStudentHandler(srv, nil)
	c, rec := newContext(http.MethodGet, "/students?search=%20ana%20&level=3&page=2&pageSize=5", nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", srv.query.Search)
	require.NotNil(t, srv.query.Level)
	assert.Equal(t, 3, *srv.query.Level)
	assert.Equal(t, 2, srv.query.Page)
	assert.Equal(t, 5, srv.query.PageSize)
}

func TestStudentHandlerListRejectsBadLevel(t *testing.T) {
	h := NewStudentHandler(&fakeStudentSrv{}, nil)
	c, rec := newContext(http.MethodGet, "/students?level=two", nil)

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudentHandlerGetNotFound(t *testing.T) {
	h := NewStudentHandler(&fakeStudentSrv{}, nil)
	c, rec := newContext(http.MethodGet, "/students/nope", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStudentHandlerStatsCacheMeta(t *testing.T) {
	h := NewStudentHandler(&fakeStudentSrv{stats: &models.StudentStats{TotalStudents: 7}, statsHit: false}, nil)
	c, rec := newContext(http.MethodGet, "/students/stats", nil)

	h.Stats(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, false, env.Meta["cache_hit"])
	assert.Contains(t, string(env.Data), `"total_students":7`)
}

func TestStudentHandlerExport(t *testing.T) {
	exporter := &fakeExporter{}
	h := NewStudentHandler(&fakeStudentSrv{}, exporter)
	c, rec := newContext(http.MethodGet, "/students/export", nil)

	h.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "csv", exporter.format)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "students-20260101.csv")
}

func TestStudentHandlerProfileUsesSession(t *testing.T) {
	srv := &fakeStudentSrv{}
	h := NewStudentHandler(srv, nil)
	c, rec := newContext(http.MethodGet, "/students/profile", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s-3", Role: models.RoleStudent})

	h.Profile(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s-3", srv.profile)
}

func TestMetricsHandlerReady(t *testing.T) {
	healthy := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	h := NewMetricsHandler(nil, map[string]Pinger{"database": healthy})
	c, rec := newContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	h = NewMetricsHandler(nil, map[string]Pinger{"database": healthy, "cache": down})
	c, rec = newContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cache":"unavailable"`)
}
