package handler

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/cache"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/scheduler"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/utils"
)

// parametersRequest 中未设置的字段使用对应范围的默认值
type parametersRequest struct {
	PopulationSize     *int32   `json:"populationSize" validate:"omitnil,gte=10,lte=500"`
	Generations        *int32   `json:"generations" validate:"omitnil,gte=10,lte=2000"`
	MutationRate       *float64 `json:"mutationRate" validate:"omitnil,gte=0.01,lte=1"`
	CrossoverType      *int32   `json:"crossoverType" validate:"omitnil,oneof=1 2"`
	CrossoverRate      *float64 `json:"crossoverRate" validate:"omitnil,gt=0,lte=1"`
	PreferenceWeight   *float64 `json:"preferenceWeight" validate:"omitnil,gte=0,lte=1"`
	ConflictWeight     *float64 `json:"conflictWeight" validate:"omitnil,gte=0,lte=1"`
	EliteCount         *int32   `json:"eliteCount" validate:"omitnil,gte=1"`
	Selection          *string  `json:"selection" validate:"omitnil,oneof=tournament roulette"`
	TournamentSize     *int32   `json:"tournamentSize" validate:"omitnil,gte=1"`
	PlateauGenerations *int32   `json:"plateauGenerations" validate:"omitnil,gte=0"`
	TimeBudgetMillis   *int64   `json:"timeBudgetMillis" validate:"omitnil,gte=-1"` // -1 表示不限制
	Seed               *int64   `json:"seed"`
}

func (req *parametersRequest) apply(p *domain.RunParameters) {
	if req.PopulationSize != nil {
		p.PopulationSize = *req.PopulationSize
	}
	if req.Generations != nil {
		p.Generations = *req.Generations
	}
	if req.MutationRate != nil {
		p.MutationRate = *req.MutationRate
	}
	if req.CrossoverType != nil {
		p.CrossoverType = domain.CrossoverType(*req.CrossoverType)
	}
	if req.CrossoverRate != nil {
		p.CrossoverRate = *req.CrossoverRate
	}
	if req.PreferenceWeight != nil {
		p.PreferenceWeight = *req.PreferenceWeight
	}
	if req.ConflictWeight != nil {
		p.ConflictWeight = *req.ConflictWeight
	}
	if req.EliteCount != nil {
		p.EliteCount = *req.EliteCount
	}
	if req.Selection != nil {
		p.Selection = domain.SelectionMethod(*req.Selection)
	}
	if req.TournamentSize != nil {
		p.TournamentSize = *req.TournamentSize
	}
	if req.PlateauGenerations != nil {
		p.PlateauGenerations = *req.PlateauGenerations
	}
	if req.TimeBudgetMillis != nil {
		p.TimeBudgetMillis = *req.TimeBudgetMillis
	}
	if req.Seed != nil {
		p.Seed = *req.Seed
	}
}

type runRequest struct {
	Title              string               `json:"title" validate:"required,max=200"`
	Semester           string               `json:"semester" validate:"required,semester"`
	Notes              string               `json:"notes" validate:"max=1000"`
	CourseIDs          []int64              `json:"courseIDs" validate:"omitempty,dive,gt=0"`
	RoomIDs            []int64              `json:"roomIDs" validate:"omitempty,dive,gt=0"`
	Parameters         parametersRequest    `json:"parameters"`
	GlobalRestrictions []domain.Restriction `json:"globalRestrictions"`
}

func (h *Handler) CreateIndividualRun(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Professor)

	var req runRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	h.submitRun(w, r, domain.RunScopeIndividual, &req, []*domain.Professor{myInfo})
}

func (h *Handler) CreateCollectiveRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		runRequest
		ProfessorIDs []int64 `json:"professorIDs" validate:"required,min=1,dive,gt=0"`
	}
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	ids := uniqueIDs(req.ProfessorIDs)
	professors, err := h.store.GetProfessorsByIDs(ids)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if len(professors) != len(ids) {
		h.errorResponse(w, r, "部分教师不存在或已停用")
		return
	}

	h.submitRun(w, r, domain.RunScopeCollective, &req.runRequest, professors)
}

// submitRun 读取排班所需的课程、教室和偏好，然后提交给后台执行
func (h *Handler) submitRun(w http.ResponseWriter, r *http.Request, scope domain.RunScope, req *runRequest, professors []*domain.Professor) {
	params := domain.DefaultIndividualParameters()
	if scope == domain.RunScopeCollective {
		params = domain.DefaultCollectiveParameters()
	}
	req.Parameters.apply(&params)
	if err := utils.ValidateRunParameters(&params); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := utils.ValidateRestrictions(req.GlobalRestrictions); err != nil {
		h.badRequest(w, r, err)
		return
	}

	professorIDs := make([]int64, 0, len(professors))
	for _, p := range professors {
		professorIDs = append(professorIDs, p.ID)
	}

	prefs, err := h.store.GetPreferencesByProfessorIDs(professorIDs)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if len(prefs) == 0 {
		h.errorResponse(w, r, "相关教师尚未填写排课偏好")
		return
	}

	// 未指定课程时使用偏好中的全部课程
	courseIDs := uniqueIDs(req.CourseIDs)
	if len(courseIDs) == 0 {
		for _, pref := range prefs {
			for _, c := range pref.Courses {
				courseIDs = append(courseIDs, c.CourseID)
			}
		}
		courseIDs = uniqueIDs(courseIDs)
	}
	courses, err := h.store.GetCoursesByIDs(courseIDs)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if len(req.CourseIDs) > 0 && len(courses) != len(courseIDs) {
		h.errorResponse(w, r, "部分课程不存在或已停用")
		return
	}

	var rooms []*domain.Room
	if roomIDs := uniqueIDs(req.RoomIDs); len(roomIDs) > 0 {
		rooms, err = h.store.GetRoomsByIDs(roomIDs)
		if err == nil && len(rooms) != len(roomIDs) {
			h.errorResponse(w, r, "部分教室不存在")
			return
		}
	} else {
		rooms, err = h.store.GetAvailableRooms()
	}
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	run := &domain.Run{
		Title:              req.Title,
		Semester:           req.Semester,
		Scope:              scope,
		RequestedBy:        r.Context().Value(SubCtxKey).(int64),
		ProfessorIDs:       professorIDs,
		CourseIDs:          make([]int64, 0, len(courses)),
		RoomIDs:            make([]int64, 0, len(rooms)),
		Parameters:         params,
		GlobalRestrictions: req.GlobalRestrictions,
		Notes:              req.Notes,
	}
	for _, c := range courses {
		run.CourseIDs = append(run.CourseIDs, c.ID)
	}
	for _, room := range rooms {
		run.RoomIDs = append(run.RoomIDs, room.ID)
	}

	task, err := h.runner.Submit(scheduler.Request{
		Run: run,
		Input: &scheduler.Input{
			Scope:              scope,
			Calendar:           h.config.CalendarConfig(),
			Professors:         professors,
			Courses:            courses,
			Rooms:              rooms,
			Preferences:        prefs,
			GlobalRestrictions: req.GlobalRestrictions,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrConfig), errors.Is(err, scheduler.ErrInput):
			h.errorResponse(w, r, err.Error())
		case errors.Is(err, scheduler.ErrShutdown):
			h.errorResponse(w, r, "服务正在关闭，请稍后重试")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "排班任务已提交", task.Snapshot())
}

func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	var runs []*domain.Run
	var err error
	if isAdmin(r) {
		semester := r.URL.Query().Get("semester")
		if err := h.validate.Var(semester, "omitempty,semester"); err != nil {
			h.badRequest(w, r, err)
			return
		}
		runs, err = h.store.GetAllRuns(semester)
	} else {
		runs, err = h.store.GetRunsByRequester(r.Context().Value(SubCtxKey).(int64))
	}
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	// 运行中的任务以内存中的状态为准
	for i, run := range runs {
		if task, ok := h.runner.Get(run.ID); ok {
			snapshot := task.Snapshot()
			runs[i] = &snapshot
		}
	}

	h.successResponse(w, r, "获取排班任务成功", runs)
}

func (h *Handler) GetRunStats(w http.ResponseWriter, r *http.Request) {
	semester := r.URL.Query().Get("semester")
	if err := h.validate.Var(semester, "omitempty,semester"); err != nil {
		h.badRequest(w, r, err)
		return
	}

	agg, err := h.store.GetRunAggregate(semester)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取排班统计成功", agg)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.Run)
	h.successResponse(w, r, "获取排班任务成功", run)
}

func (h *Handler) GetRunProgress(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.Run)

	progress, err := h.progress.Load(run.ID)
	if err != nil {
		if !errors.Is(err, cache.ErrProgressNotFound) {
			h.logger.Warn("读取排班进度失败", zap.String("runID", run.ID), zap.Error(err))
		}
		// 当前实例正在执行该任务时直接使用内存中的进度
		if run.Progress == nil {
			h.errorResponse(w, r, "暂无排班进度")
			return
		}
		progress = run.Progress
	}

	h.successResponse(w, r, "获取排班进度成功", progress)
}

func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.Run)

	if run.Status.Terminal() {
		h.errorResponse(w, r, "排班任务已结束")
		return
	}

	if err := h.runner.Cancel(run.ID); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrRunFinished):
			h.errorResponse(w, r, "排班任务已结束")
		case errors.Is(err, scheduler.ErrRunNotFound):
			// 数据库中是 running 但不在当前实例中
			h.errorResponse(w, r, "排班任务不在当前服务实例中运行")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "已请求取消排班任务", nil)
}

func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.Run)

	if !run.Status.Terminal() {
		h.errorResponse(w, r, "排班任务仍在运行，无法删除")
		return
	}

	deleted, err := h.store.DeleteRun(run.ID)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if !deleted {
		h.errorResponse(w, r, "排班任务不存在或仍在运行")
		return
	}

	if err := h.runner.Forget(run.ID); err != nil && !errors.Is(err, scheduler.ErrRunNotFound) {
		h.logger.Warn("从内存中移除排班任务失败", zap.String("runID", run.ID), zap.Error(err))
	}
	if err := h.progress.Delete(run.ID); err != nil {
		h.logger.Warn("删除排班进度失败", zap.String("runID", run.ID), zap.Error(err))
	}

	h.successResponse(w, r, "删除排班任务成功", nil)
}

func (h *Handler) ExportRun(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.Run)

	if run.Status != domain.RunStatusCompleted {
		h.errorResponse(w, r, "只有已完成的排班任务可以导出")
		return
	}

	data, err := h.exporter.Render(run)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"timetable-%s.pdf\"", run.ID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("写入 PDF 失败", zap.String("runID", run.ID), zap.Error(err))
	}
}

func uniqueIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
