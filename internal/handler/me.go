package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/utils"
)

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.successResponse(w, r, "服务运行正常", nil)
}

func (h *Handler) GetMyInfo(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Professor)
	h.successResponse(w, r, "获取个人信息成功", myInfo)
}

func (h *Handler) GetMyPreference(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Professor)

	pref, err := h.store.GetPreferenceByProfessorID(myInfo.ID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "尚未填写排课偏好")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "获取排课偏好成功", pref)
}

func (h *Handler) UpdateMyPreference(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Professor)

	var req struct {
		Courses []struct {
			CourseID int64 `json:"courseID" validate:"required,gt=0"`
			Level    int32 `json:"level" validate:"required,gte=1,lte=5"`
		} `json:"courses" validate:"required,min=1,dive"`
		Availability  []domain.AvailabilityWindow `json:"availability"`
		Restrictions  []domain.Restriction        `json:"restrictions"`
		MaxDailyHours int32                       `json:"maxDailyHours" validate:"gte=0,lte=24"`
		Notes         string                      `json:"notes" validate:"max=1000"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	pref := &domain.ProfessorPreference{
		ProfessorID:   myInfo.ID,
		Courses:       make([]domain.CoursePreference, 0, len(req.Courses)),
		Availability:  req.Availability,
		Restrictions:  req.Restrictions,
		MaxDailyHours: req.MaxDailyHours,
		Notes:         req.Notes,
	}
	for _, c := range req.Courses {
		pref.Courses = append(pref.Courses, domain.CoursePreference{CourseID: c.CourseID, Level: c.Level})
	}

	if err := utils.ValidateCoursePreferences(pref.Courses); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := utils.ValidateAvailability(pref.Availability); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := utils.ValidateRestrictions(pref.Restrictions); err != nil {
		h.badRequest(w, r, err)
		return
	}

	// 偏好中的课程必须存在且处于启用状态
	ids := make([]int64, 0, len(pref.Courses))
	for _, c := range pref.Courses {
		ids = append(ids, c.CourseID)
	}
	courses, err := h.store.GetCoursesByIDs(ids)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if len(courses) != len(ids) {
		h.errorResponse(w, r, "部分课程不存在或已停用")
		return
	}

	if err := h.store.UpsertPreference(pref); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "更新排课偏好成功", pref)
}
