package domain

import (
	"encoding/json"
	"time"
)

type CoursePreference struct {
	CourseID int64 `json:"courseID"`
	Level    int32 `json:"level"` // 1-5，0 视为 3
}

type TimeRange struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type AvailabilityWindow struct {
	Day       Day         `json:"day"`
	Shift     Shift       `json:"shift,omitempty"` // 为空表示整天
	Ranges    []TimeRange `json:"ranges,omitempty"`
	Available bool        `json:"available"`
}

type RestrictionType string

const (
	RestrictionNoConsecutive      RestrictionType = "nao_consecutivo"
	RestrictionMinInterval        RestrictionType = "intervalo_minimo"
	RestrictionPreferredRoom      RestrictionType = "sala_preferida"
	RestrictionPreferredShift     RestrictionType = "turno_preferido"
	RestrictionLunchBreak         RestrictionType = "intervalo_almoco"
	RestrictionMaxDailyLoad       RestrictionType = "carga_maxima_diaria"
	RestrictionConsecutiveCourses RestrictionType = "disciplinas_consecutivas"
	RestrictionRoomUsage          RestrictionType = "uso_sala"
)

type Restriction struct {
	Type        RestrictionType `json:"type"`
	Description string          `json:"description"`
	Value       json.RawMessage `json:"value,omitempty"`
	Priority    int32           `json:"priority"` // 1-5
}

type ProfessorPreference struct {
	ID            int64                `json:"id"`
	ProfessorID   int64                `json:"professorID"`
	Courses       []CoursePreference   `json:"courses"`
	Availability  []AvailabilityWindow `json:"availability"`
	Restrictions  []Restriction        `json:"restrictions"`
	MaxDailyHours int32                `json:"maxDailyHours"`
	Notes         string               `json:"notes"`
	IsActive      bool                 `json:"isActive"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
	Version       int32                `json:"-"`
}
