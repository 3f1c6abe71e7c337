package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/level-portal-api/internal/models"
	"github.com/noah-isme/level-portal-api/internal/repository"
	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
	"github.com/noah-isme/level-portal-api/pkg/identity"
	"github.com/noah-isme/level-portal-api/pkg/storage"
)

type mockAdminRepo struct {
	admins map[string]*models.Admin
}

func (m *mockAdminRepo) FindByEmail(ctx context.Context, email string) (*models.Admin, error) {
	if a, ok := m.admins[email]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

type mockStudentRepo struct {
	mu        sync.Mutex
	students  map[string]*models.Student
	createErr error
	findErr   error // returned by FindByID and Delete when set
	linked    map[string]string
}

func newMockStudentRepo(students ...*models.Student) *mockStudentRepo {
	m := &mockStudentRepo{students: map[string]*models.Student{}, linked: map[string]string{}}
	for _, s := range students {
		m.students[s.ID] = s
	}
	return m
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if s, ok := m.students[id]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.Email == email {
			clone := *s
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByIdentitySubject(ctx context.Context, subject string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.IdentityProviderSubject != nil && *s.IdentityProviderSubject == subject {
			clone := *s
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.Email == email && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	clone := *student
	m.students[student.ID] = &clone
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *student
	m.students[student.ID] = &clone
	return nil
}

func (m *mockStudentRepo) LinkIdentity(ctx context.Context, id, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.IdentityProviderSubject = &subject
	s.AuthProvider = models.AuthProviderExternal
	m.linked[id] = subject
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return m.findErr
	}
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, id)
	return nil
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	all, _ := m.All(ctx)
	return all, len(all), nil
}

func (m *mockStudentRepo) All(ctx context.Context) ([]models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *mockStudentRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.students), nil
}

func (m *mockStudentRepo) CountByLevel(ctx context.Context) ([]models.LevelCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[int]int{}
	for _, s := range m.students {
		counts[s.Level]++
	}
	out := make([]models.LevelCount, 0, len(counts))
	for level, count := range counts {
		out = append(out, models.LevelCount{Level: level, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

// mockLevelRequestRepo mirrors the transactional decision semantics of the
// SQL repository against the shared student map.
type mockLevelRequestRepo struct {
	mu       sync.Mutex
	students *mockStudentRepo
	requests map[string]*models.LevelRequest
	order    []string
	countErr error
	counted  int
	decided  int
}

func newMockLevelRequestRepo(students *mockStudentRepo) *mockLevelRequestRepo {
	return &mockLevelRequestRepo{students: students, requests: map[string]*models.LevelRequest{}}
}

func (m *mockLevelRequestRepo) Create(ctx context.Context, req *models.LevelRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.CreatedAt = time.Now()
	clone := *req
	m.requests[req.ID] = &clone
	m.order = append(m.order, req.ID)
	return nil
}

func (m *mockLevelRequestRepo) HasPending(ctx context.Context, studentID string, level int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.StudentID == studentID && r.RequestedLevel == level && r.Status == models.LevelRequestPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockLevelRequestRepo) List(ctx context.Context, status models.LevelRequestStatus) ([]models.LevelRequestDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.LevelRequestDetail{}
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.requests[m.order[i]]
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, models.LevelRequestDetail{LevelRequest: *r})
	}
	return out, nil
}

func (m *mockLevelRequestRepo) ListByStudent(ctx context.Context, studentID string) ([]models.LevelRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.LevelRequest{}
	for i := len(m.order) - 1; i >= 0; i-- {
		if r := m.requests[m.order[i]]; r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockLevelRequestRepo) CountPending(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counted++
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, r := range m.requests {
		if r.Status == models.LevelRequestPending {
			n++
		}
	}
	return n, nil
}

func (m *mockLevelRequestRepo) Approve(ctx context.Context, id string, adminResponse *string) (*models.LevelRequest, error) {
	req, err := m.decide(id, models.LevelRequestApproved, adminResponse)
	if err != nil {
		return nil, err
	}
	m.students.mu.Lock()
	defer m.students.mu.Unlock()
	if s, ok := m.students.students[req.StudentID]; ok {
		s.Level = req.RequestedLevel
	}
	return req, nil
}

func (m *mockLevelRequestRepo) Reject(ctx context.Context, id string, adminResponse *string) (*models.LevelRequest, error) {
	return m.decide(id, models.LevelRequestRejected, adminResponse)
}

func (m *mockLevelRequestRepo) decide(id string, status models.LevelRequestStatus, adminResponse *string) (*models.LevelRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decided++
	r, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if r.Status != models.LevelRequestPending {
		return nil, repository.ErrRequestNotPending
	}
	now := time.Now()
	r.Status = status
	r.AdminResponse = adminResponse
	r.DecidedAt = &now
	clone := *r
	return &clone, nil
}

type mockVideoRepo struct {
	mu        sync.Mutex
	videos    map[string]*models.VideoAsset
	createErr error
	lookupErr error
	deleted   []string
}

func newMockVideoRepo(videos ...models.VideoAsset) *mockVideoRepo {
	m := &mockVideoRepo{videos: map[string]*models.VideoAsset{}}
	for i := range videos {
		v := videos[i]
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		m.videos[v.ID] = &v
	}
	return m
}

func (m *mockVideoRepo) sorted(level int) []models.VideoAsset {
	out := []models.VideoAsset{}
	for _, v := range m.videos {
		if level == 0 || v.Level == level {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].SheetStart < out[j].SheetStart
	})
	return out
}

func (m *mockVideoRepo) Create(ctx context.Context, video *models.VideoAsset) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if video.StorageKey != nil && m.ownerOf(*video.StorageKey) != nil {
		return repository.ErrVideoExists
	}
	if !(models.SheetRange{Level: video.Level, SheetStart: video.SheetStart, SheetEnd: video.SheetEnd}).Valid() {
		return fmt.Errorf("create video: check constraint violated for level %d", video.Level)
	}
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	clone := *video
	m.videos[video.ID] = &clone
	return nil
}

func (m *mockVideoRepo) ownerOf(key string) *models.VideoAsset {
	for _, v := range m.videos {
		if v.StorageKey != nil && *v.StorageKey == key {
			return v
		}
	}
	return nil
}

func (m *mockVideoRepo) FindByStorageKey(ctx context.Context, key string) (*models.VideoAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if v := m.ownerOf(key); v != nil {
		clone := *v
		return &clone, nil
	}
	return nil, nil
}

func (m *mockVideoRepo) FindStoredByFilename(ctx context.Context, filename string) (*models.VideoAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.videos {
		if v.StorageKey != nil && v.Filename == filename {
			clone := *v
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *mockVideoRepo) FindByID(ctx context.Context, id string) (*models.VideoAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.videos[id]; ok {
		clone := *v
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockVideoRepo) ListByLevel(ctx context.Context, level int) ([]models.VideoAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(level), nil
}

func (m *mockVideoRepo) ListAll(ctx context.Context) ([]models.VideoAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(0), nil
}

func (m *mockVideoRepo) FindBySheet(ctx context.Context, level, sheet int) (*models.VideoAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.sorted(level) {
		if v.SheetStart <= sheet && sheet <= v.SheetEnd {
			return &v, nil
		}
	}
	return nil, nil
}

func (m *mockVideoRepo) FindNext(ctx context.Context, level, sheetEnd int) (*models.VideoAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.sorted(level) {
		if v.SheetStart > sheetEnd {
			return &v, nil
		}
	}
	return nil, nil
}

func (m *mockVideoRepo) FindPrevious(ctx context.Context, level, sheetStart int) (*models.VideoAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.VideoAsset
	for _, v := range m.sorted(level) {
		v := v
		if v.SheetEnd < sheetStart && (best == nil || v.SheetEnd > best.SheetEnd) {
			best = &v
		}
	}
	return best, nil
}

func (m *mockVideoRepo) StorageKeys(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := map[string]struct{}{}
	for _, v := range m.videos {
		if v.StorageKey != nil {
			keys[*v.StorageKey] = struct{}{}
		}
	}
	return keys, nil
}

func (m *mockVideoRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.videos[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.videos, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type fakeObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	deleteErr error
	deleted   []string
}

func newFakeObjectStore(keys ...string) *fakeObjectStore {
	f := &fakeObjectStore{objects: map[string][]byte{}}
	for _, k := range keys {
		f.objects[k] = nil
	}
	return f
}

func (f *fakeObjectStore) Put(ctx context.Context, in storage.PutInput) (*storage.Object, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := "videos/" + in.Filename
	f.objects[key] = data
	return &storage.Object{Key: key, URL: "https://cdn.example.com/" + key, Filename: in.Filename, Size: int64(len(data))}, nil
}

func (f *fakeObjectStore) List(ctx context.Context) ([]storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.Object, 0, len(f.objects))
	for key := range f.objects {
		name := key
		if len(key) > len("videos/") && key[:len("videos/")] == "videos/" {
			name = key[len("videos/"):]
		}
		out = append(out, storage.Object{Key: key, URL: "https://cdn.example.com/" + key, Filename: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeVerifier struct {
	identity *identity.ExternalIdentity
	err      error
}

func (f *fakeVerifier) Verify(ctx context.Context, idToken string) (*identity.ExternalIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	clone := *f.identity
	return &clone, nil
}

type mockCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	deletes [][]string
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{entries: map[string][]byte{}}
}

func (m *mockCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *mockCacheRepo) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.deletes = append(m.deletes, keys)
	return nil
}

func (m *mockCacheRepo) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

var errBoom = errors.New("boom")

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func mustHash(password string) *string {
	hash, err := hashPassword(password, 4)
	if err != nil {
		panic(fmt.Sprintf("hash password: %v", err))
	}
	return &hash
}
