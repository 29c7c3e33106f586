package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

var restrictionTypes = map[domain.RestrictionType]struct{}{
	domain.RestrictionNoConsecutive:      {},
	domain.RestrictionMinInterval:        {},
	domain.RestrictionPreferredRoom:      {},
	domain.RestrictionPreferredShift:     {},
	domain.RestrictionLunchBreak:         {},
	domain.RestrictionMaxDailyLoad:       {},
	domain.RestrictionConsecutiveCourses: {},
	domain.RestrictionRoomUsage:          {},
}

// ValidateRunParameters 检查无法用 struct tag 表达的参数关系
func ValidateRunParameters(p *domain.RunParameters) error {
	if p.EliteCount > 0 && p.PopulationSize > 0 && p.EliteCount >= p.PopulationSize {
		return errors.New("精英个体数必须小于种群大小")
	}
	if p.TournamentSize > 0 && p.PopulationSize > 0 && p.TournamentSize > p.PopulationSize {
		return errors.New("锦标赛规模不能大于种群大小")
	}
	if p.PreferenceWeight+p.ConflictWeight == 0 {
		return errors.New("偏好权重和冲突权重不能同时为 0")
	}
	return nil
}

func ValidateCoursePreferences(courses []domain.CoursePreference) error {
	seen := make(map[int64]struct{}, len(courses))
	for _, c := range courses {
		if c.Level < 0 || c.Level > 5 {
			return fmt.Errorf("课程 %d 的偏好等级必须在 1 到 5 之间", c.CourseID)
		}
		if _, ok := seen[c.CourseID]; ok {
			return fmt.Errorf("课程 %d 重复", c.CourseID)
		}
		seen[c.CourseID] = struct{}{}
	}
	return nil
}

func parseClock(v string) (time.Time, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return time.Parse("15:04:05", v)
	}
	return t, nil
}

func ValidateAvailability(windows []domain.AvailabilityWindow) error {
	for i, w := range windows {
		if !w.Day.Valid() {
			return fmt.Errorf("第 %d 个时间段的星期无效", i+1)
		}
		if w.Shift != "" {
			if _, ok := domain.ParseShift(string(w.Shift)); !ok {
				return fmt.Errorf("第 %d 个时间段的时段无效", i+1)
			}
		}

		// 检查每一个时间范围的结束时间是不是都大于开始时间
		for j, rg := range w.Ranges {
			start, err := parseClock(rg.StartTime)
			if err != nil {
				return fmt.Errorf("第 %d 个时间段的第 %d 个范围的开始时间格式错误", i+1, j+1)
			}
			end, err := parseClock(rg.EndTime)
			if err != nil {
				return fmt.Errorf("第 %d 个时间段的第 %d 个范围的结束时间格式错误", i+1, j+1)
			}
			if !end.After(start) {
				return fmt.Errorf("第 %d 个时间段的第 %d 个范围的结束时间必须大于开始时间", i+1, j+1)
			}
		}

		// 检查同一时间段内的范围是否重叠
		for a := 0; a < len(w.Ranges); a++ {
			aStart, _ := parseClock(w.Ranges[a].StartTime)
			aEnd, _ := parseClock(w.Ranges[a].EndTime)

			for b := a + 1; b < len(w.Ranges); b++ {
				bStart, _ := parseClock(w.Ranges[b].StartTime)
				bEnd, _ := parseClock(w.Ranges[b].EndTime)

				if aStart.Before(bEnd) && bStart.Before(aEnd) {
					return fmt.Errorf("第 %d 个时间段的第 %d 和第 %d 个范围重叠", i+1, a+1, b+1)
				}
			}
		}
	}
	return nil
}

func ValidateRestrictions(restrictions []domain.Restriction) error {
	for i, r := range restrictions {
		if _, ok := restrictionTypes[r.Type]; !ok {
			return fmt.Errorf("第 %d 个约束的类型 %q 无效", i+1, r.Type)
		}
		if r.Priority < 0 || r.Priority > 5 {
			return fmt.Errorf("第 %d 个约束的优先级必须在 1 到 5 之间", i+1)
		}
	}
	return nil
}

// ValidateCalendar 检查时段定义，时段之间不能重叠
func ValidateCalendar(cal domain.CalendarConfig) error {
	if len(cal.Days) == 0 {
		return errors.New("至少需要一个上课日")
	}
	for _, d := range cal.Days {
		if !d.Valid() {
			return fmt.Errorf("上课日 %d 无效", d)
		}
	}
	if len(cal.Shifts) == 0 {
		return errors.New("至少需要一个时段")
	}

	for i, s := range cal.Shifts {
		start, err := parseClock(s.StartTime)
		if err != nil {
			return fmt.Errorf("时段 %s 的开始时间格式错误", s.Shift)
		}
		end, err := parseClock(s.EndTime)
		if err != nil {
			return fmt.Errorf("时段 %s 的结束时间格式错误", s.Shift)
		}
		if !end.After(start) {
			return fmt.Errorf("时段 %s 的结束时间必须大于开始时间", s.Shift)
		}

		for j := i + 1; j < len(cal.Shifts); j++ {
			jStart, _ := parseClock(cal.Shifts[j].StartTime)
			jEnd, _ := parseClock(cal.Shifts[j].EndTime)
			if start.Before(jEnd) && jStart.Before(end) {
				return fmt.Errorf("时段 %s 和时段 %s 之间的时间冲突", s.Shift, cal.Shifts[j].Shift)
			}
		}
	}
	return nil
}
