package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/cache"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/config"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/metrics"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/scheduler"
)

const testSecret = "test-secret"

type memoryStore struct {
	mu          sync.Mutex
	professors  map[int64]*domain.Professor
	courses     map[int64]*domain.Course
	rooms       map[int64]*domain.Room
	preferences map[int64]*domain.ProfessorPreference
	runs        map[string]*domain.Run
}

func newMemoryStore() *memoryStore {
	s := &memoryStore{
		professors:  make(map[int64]*domain.Professor),
		courses:     make(map[int64]*domain.Course),
		rooms:       make(map[int64]*domain.Room),
		preferences: make(map[int64]*domain.ProfessorPreference),
		runs:        make(map[string]*domain.Run),
	}

	s.professors[1] = &domain.Professor{ID: 1, Username: "zhangsan", FullName: "张三", Email: "zhangsan@example.com", Role: domain.RoleProfessor, IsActive: true}
	s.professors[2] = &domain.Professor{ID: 2, Username: "lisi", FullName: "李四", Email: "lisi@example.com", Role: domain.RoleAdmin, IsActive: true}
	s.courses[10] = &domain.Course{ID: 10, Code: "CS001", Name: "数据结构", WeeklyBlocks: 2, Enrollment: 30, IsActive: true}
	s.rooms[20] = &domain.Room{ID: 20, Code: "A101", Name: "教学楼 A101", Capacity: 40, Type: domain.RoomTypeClassroom, IsAvailable: true}
	s.preferences[1] = &domain.ProfessorPreference{
		ID:          1,
		ProfessorID: 1,
		Courses:     []domain.CoursePreference{{CourseID: 10, Level: 5}},
		IsActive:    true,
	}
	return s
}

func (s *memoryStore) GetProfessorByID(id int64) (*domain.Professor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.professors[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (s *memoryStore) GetProfessorsByIDs(ids []int64) ([]*domain.Professor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Professor, 0)
	for _, id := range ids {
		if p, ok := s.professors[id]; ok && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memoryStore) GetCoursesByIDs(ids []int64) ([]*domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Course, 0)
	for _, id := range ids {
		if c, ok := s.courses[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memoryStore) GetRoomsByIDs(ids []int64) ([]*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Room, 0)
	for _, id := range ids {
		if room, ok := s.rooms[id]; ok {
			out = append(out, room)
		}
	}
	return out, nil
}

func (s *memoryStore) GetAvailableRooms() ([]*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Room, 0)
	for _, room := range s.rooms {
		if room.IsAvailable {
			out = append(out, room)
		}
	}
	return out, nil
}

func (s *memoryStore) GetPreferenceByProfessorID(professorID int64) (*domain.ProfessorPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pref, ok := s.preferences[professorID]; ok {
		return pref, nil
	}
	return nil, sql.ErrNoRows
}

func (s *memoryStore) GetPreferencesByProfessorIDs(professorIDs []int64) ([]*domain.ProfessorPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.ProfessorPreference, 0)
	for _, id := range professorIDs {
		if pref, ok := s.preferences[id]; ok {
			out = append(out, pref)
		}
	}
	return out, nil
}

func (s *memoryStore) UpsertPreference(pref *domain.ProfessorPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pref.ID = pref.ProfessorID
	pref.IsActive = true
	s.preferences[pref.ProfessorID] = pref
	return nil
}

func (s *memoryStore) GetRunByID(id string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		copied := *run
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *memoryStore) GetRunsByRequester(professorID int64) ([]*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Run, 0)
	for _, run := range s.runs {
		if run.RequestedBy == professorID {
			copied := *run
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memoryStore) GetAllRuns(semester string) ([]*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Run, 0)
	for _, run := range s.runs {
		if semester == "" || run.Semester == semester {
			copied := *run
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memoryStore) DeleteRun(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || !run.Status.Terminal() {
		return false, nil
	}
	delete(s.runs, id)
	return true, nil
}

func (s *memoryStore) GetRunAggregate(semester string) (*domain.RunAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := &domain.RunAggregate{Semester: semester, ByStatus: make(map[domain.RunStatus]int64)}
	for _, run := range s.runs {
		agg.TotalRuns++
		agg.ByStatus[run.Status]++
	}
	return agg, nil
}

func (s *memoryStore) putRun(run *domain.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

type memoryProgress struct {
	mu       sync.Mutex
	progress map[string]*domain.RunProgress
}

func (p *memoryProgress) Load(runID string) (*domain.RunProgress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if progress, ok := p.progress[runID]; ok {
		return progress, nil
	}
	return nil, cache.ErrProgressNotFound
}

func (p *memoryProgress) Delete(runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.progress, runID)
	return nil
}

type stubExporter struct{}

func (stubExporter) Render(run *domain.Run) ([]byte, error) {
	return []byte("%PDF-1.3 " + run.ID), nil
}

type testEnv struct {
	handler  *Handler
	store    *memoryStore
	progress *memoryProgress
	registry *scheduler.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.JWT.Secret = testSecret
	cfg.Calendar.Days = []int32{1, 2, 3, 4, 5}
	cfg.Calendar.BlockMinutes = 60
	cfg.Calendar.Morning.Start = "08:00"
	cfg.Calendar.Morning.End = "12:00"

	store := newMemoryStore()
	progress := &memoryProgress{progress: make(map[string]*domain.RunProgress)}
	registry := scheduler.NewRegistry(scheduler.RegistryConfig{
		MaxConcurrentRuns: 1,
		Workers:           1,
		Logger:            zap.NewNop(),
		OnSubmit: func(_ context.Context, run domain.Run) error {
			store.putRun(&run)
			return nil
		},
		OnComplete: []scheduler.Hook{func(_ context.Context, run domain.Run) error {
			store.putRun(&run)
			return nil
		}},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = registry.Shutdown(ctx)
	})

	h, err := NewHandler(cfg, zap.NewNop(), Dependencies{
		Store:    store,
		Runner:   registry,
		Progress: progress,
		Exporter: stubExporter{},
		Metrics:  metrics.New(),
	})
	require.NoError(t, err)
	h.RegisterRoutes()

	return &testEnv{handler: h, store: store, progress: progress, registry: registry}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path string, professor *domain.Professor, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if professor != nil {
		token, err := NewToken(testSecret, professor, time.Hour)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: token})
	}

	rec := httptest.NewRecorder()
	e.handler.Mux.ServeHTTP(rec, req)

	var resp envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func (e *testEnv) professor(id int64) *domain.Professor {
	p, _ := e.store.GetProfessorByID(id)
	return p
}

func completedRun(requestedBy int64) *domain.Run {
	finished := time.Now()
	return &domain.Run{
		ID:          uuid.NewString(),
		Title:       "已完成的排班",
		Semester:    "2025.1",
		Scope:       domain.RunScopeIndividual,
		RequestedBy: requestedBy,
		Status:      domain.RunStatusCompleted,
		State:       domain.RunStateConverged,
		FinishedAt:  &finished,
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/healthz", nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.handler.Mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/healthz")
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.do(t, http.MethodGet, "/runs", nil, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "用户未登录", resp.Message)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: "not-a-token"})
	rec := httptest.NewRecorder()
	env.handler.Mux.ServeHTTP(rec, req)
	var bad envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bad))
	assert.Equal(t, "无效的令牌", bad.Message)
}

func TestTokenSignedWithOtherSecretIsRejected(t *testing.T) {
	env := newTestEnv(t)

	token, err := NewToken("other-secret", env.professor(1), time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: token})
	rec := httptest.NewRecorder()
	env.handler.Mux.ServeHTTP(rec, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "无效的令牌", resp.Message)
}

func TestCreateIndividualRunCompletes(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.do(t, http.MethodPost, "/runs/individual", env.professor(1), map[string]any{
		"title":    "个人排课",
		"semester": "2025.1",
		"parameters": map[string]any{
			"populationSize": 10,
			"generations":    10,
			"seed":           7,
		},
	})
	require.True(t, resp.Success, resp.Message)

	var submitted domain.Run
	require.NoError(t, json.Unmarshal(resp.Data, &submitted))
	assert.Equal(t, domain.RunScopeIndividual, submitted.Scope)
	assert.Equal(t, int64(1), submitted.RequestedBy)
	assert.Equal(t, []int64{10}, submitted.CourseIDs)
	assert.Equal(t, int32(10), submitted.Parameters.PopulationSize)

	task, ok := env.registry.Get(submitted.ID)
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := task.Wait(ctx)
	require.NoError(t, err)

	_, resp = env.do(t, http.MethodGet, "/runs/"+submitted.ID, env.professor(1), nil)
	require.True(t, resp.Success, resp.Message)
	var run domain.Run
	require.NoError(t, json.Unmarshal(resp.Data, &run))
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	require.Len(t, run.Schedules, 1)
	assert.Len(t, run.Schedules[0].Entries, 2)

	stored, err := env.store.GetRunByID(submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, stored.Status)

	// 运行结束后仍可以从内存中读取进度
	_, resp = env.do(t, http.MethodGet, "/runs/"+submitted.ID+"/progress", env.professor(1), nil)
	require.True(t, resp.Success, resp.Message)
}

func TestCreateIndividualRunValidation(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.do(t, http.MethodPost, "/runs/individual", env.professor(1), map[string]any{
		"title":    "个人排课",
		"semester": "2025-1",
	})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "YYYY.1")

	_, resp = env.do(t, http.MethodPost, "/runs/individual", env.professor(1), map[string]any{
		"title":      "个人排课",
		"semester":   "2025.1",
		"parameters": map[string]any{"populationSize": 5},
	})
	assert.False(t, resp.Success)

	_, resp = env.do(t, http.MethodPost, "/runs/individual", env.professor(1), map[string]any{
		"title":      "个人排课",
		"semester":   "2025.1",
		"parameters": map[string]any{"populationSize": 10, "eliteCount": 10},
	})
	assert.False(t, resp.Success)
	assert.Equal(t, "精英个体数必须小于种群大小", resp.Message)

	// 交叉概率为 0 与未设置无法区分，因此必须大于 0
	_, resp = env.do(t, http.MethodPost, "/runs/individual", env.professor(1), map[string]any{
		"title":      "个人排课",
		"semester":   "2025.1",
		"parameters": map[string]any{"crossoverRate": 0},
	})
	assert.False(t, resp.Success)

	_, resp = env.do(t, http.MethodPost, "/runs/individual", env.professor(1), map[string]any{
		"title":      "个人排课",
		"semester":   "2025.1",
		"parameters": map[string]any{"timeBudgetMillis": -2},
	})
	assert.False(t, resp.Success)
}

func TestCreateIndividualRunWithoutPreference(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.do(t, http.MethodPost, "/runs/individual", env.professor(2), map[string]any{
		"title":    "个人排课",
		"semester": "2025.1",
	})
	assert.False(t, resp.Success)
	assert.Equal(t, "相关教师尚未填写排课偏好", resp.Message)
}

func TestCreateCollectiveRunRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.do(t, http.MethodPost, "/runs/collective", env.professor(1), map[string]any{
		"title":        "全院排课",
		"semester":     "2025.1",
		"professorIDs": []int64{1},
	})
	assert.False(t, resp.Success)
	assert.Equal(t, "权限不足", resp.Message)

	_, resp = env.do(t, http.MethodPost, "/runs/collective", env.professor(2), map[string]any{
		"title":        "全院排课",
		"semester":     "2025.1",
		"professorIDs": []int64{1, 99},
	})
	assert.False(t, resp.Success)
	assert.Equal(t, "部分教师不存在或已停用", resp.Message)
}

func TestRunAccessIsLimitedToOwner(t *testing.T) {
	env := newTestEnv(t)
	run := completedRun(2)
	env.store.putRun(run)

	_, resp := env.do(t, http.MethodGet, "/runs/"+run.ID, env.professor(1), nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "权限不足", resp.Message)

	_, resp = env.do(t, http.MethodGet, "/runs/not-a-uuid", env.professor(1), nil)
	assert.Equal(t, "任务ID无效", resp.Message)

	_, resp = env.do(t, http.MethodGet, "/runs/"+uuid.NewString(), env.professor(1), nil)
	assert.Equal(t, "排班任务不存在", resp.Message)
}

func TestCancelFinishedRun(t *testing.T) {
	env := newTestEnv(t)
	run := completedRun(1)
	env.store.putRun(run)

	_, resp := env.do(t, http.MethodPost, "/runs/"+run.ID+"/cancel", env.professor(1), nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "排班任务已结束", resp.Message)
}

func TestDeleteRun(t *testing.T) {
	env := newTestEnv(t)
	run := completedRun(1)
	env.store.putRun(run)
	env.progress.progress[run.ID] = &domain.RunProgress{RunID: run.ID}

	_, resp := env.do(t, http.MethodDelete, "/runs/"+run.ID, env.professor(1), nil)
	require.True(t, resp.Success, resp.Message)

	_, err := env.store.GetRunByID(run.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Empty(t, env.progress.progress)

	running := completedRun(1)
	running.Status = domain.RunStatusRunning
	running.State = domain.RunStateEvolving
	env.store.putRun(running)
	_, resp = env.do(t, http.MethodDelete, "/runs/"+running.ID, env.professor(1), nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "排班任务仍在运行，无法删除", resp.Message)
}

func TestGetRunProgress(t *testing.T) {
	env := newTestEnv(t)
	run := completedRun(1)
	env.store.putRun(run)

	_, resp := env.do(t, http.MethodGet, "/runs/"+run.ID+"/progress", env.professor(1), nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "暂无排班进度", resp.Message)

	env.progress.progress[run.ID] = &domain.RunProgress{RunID: run.ID, Generation: 12, BestFitness: 88}
	_, resp = env.do(t, http.MethodGet, "/runs/"+run.ID+"/progress", env.professor(1), nil)
	require.True(t, resp.Success)
	var progress domain.RunProgress
	require.NoError(t, json.Unmarshal(resp.Data, &progress))
	assert.Equal(t, 12, progress.Generation)
}

func TestExportRun(t *testing.T) {
	env := newTestEnv(t)
	run := completedRun(1)
	env.store.putRun(run)

	rec, _ := env.do(t, http.MethodGet, "/runs/"+run.ID+"/export.pdf", env.professor(1), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), run.ID)

	failed := completedRun(1)
	failed.Status = domain.RunStatusFailed
	failed.State = domain.RunStateFailed
	env.store.putRun(failed)
	_, resp := env.do(t, http.MethodGet, "/runs/"+failed.ID+"/export.pdf", env.professor(1), nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "只有已完成的排班任务可以导出", resp.Message)
}

func TestGetRunsAndStats(t *testing.T) {
	env := newTestEnv(t)
	env.store.putRun(completedRun(1))
	env.store.putRun(completedRun(2))

	_, resp := env.do(t, http.MethodGet, "/runs", env.professor(1), nil)
	require.True(t, resp.Success)
	var own []domain.Run
	require.NoError(t, json.Unmarshal(resp.Data, &own))
	assert.Len(t, own, 1)

	_, resp = env.do(t, http.MethodGet, "/runs?semester=2025.1", env.professor(2), nil)
	require.True(t, resp.Success)
	var all []domain.Run
	require.NoError(t, json.Unmarshal(resp.Data, &all))
	assert.Len(t, all, 2)

	_, resp = env.do(t, http.MethodGet, "/runs/stats", env.professor(1), nil)
	assert.Equal(t, "权限不足", resp.Message)

	_, resp = env.do(t, http.MethodGet, "/runs/stats?semester=2025.1", env.professor(2), nil)
	require.True(t, resp.Success)
	var agg domain.RunAggregate
	require.NoError(t, json.Unmarshal(resp.Data, &agg))
	assert.Equal(t, int64(2), agg.TotalRuns)
}

func TestUpdateMyPreference(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.do(t, http.MethodPut, "/my-info/preference", env.professor(2), map[string]any{
		"courses": []map[string]any{{"courseID": 10, "level": 4}},
		"availability": []map[string]any{
			{"day": 1, "shift": "morning", "available": false},
		},
		"restrictions":  []map[string]any{{"type": "nao_consecutivo", "priority": 4}},
		"maxDailyHours": 4,
	})
	require.True(t, resp.Success, resp.Message)

	pref, err := env.store.GetPreferenceByProfessorID(2)
	require.NoError(t, err)
	assert.Equal(t, int32(4), pref.Courses[0].Level)

	_, resp = env.do(t, http.MethodPut, "/my-info/preference", env.professor(2), map[string]any{
		"courses": []map[string]any{{"courseID": 99, "level": 4}},
	})
	assert.False(t, resp.Success)
	assert.Equal(t, "部分课程不存在或已停用", resp.Message)

	_, resp = env.do(t, http.MethodGet, "/my-info/preference", env.professor(2), nil)
	require.True(t, resp.Success)
}
