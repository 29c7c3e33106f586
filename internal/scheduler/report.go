package scheduler

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

// Report 是最优染色体对外的表示
type Report struct {
	Schedules  []domain.ProfessorSchedule
	Violations []domain.RunViolation
	Statistics domain.RunStatistics
}

// Report 将染色体还原为每位教师的课表、违反报告和统计信息
func (s *Scheduler) Report(ch *Chromosome) *Report {
	p := s.problem
	fitness := ch.fitness
	if !ch.evaluated {
		fitness = s.evaluator.evaluate(ch.genes)
	}

	schedules := make([]domain.ProfessorSchedule, len(p.professors))
	for i, professor := range p.professors {
		schedules[i] = domain.ProfessorSchedule{
			ProfessorID:   professor.ID,
			ProfessorName: professor.FullName,
			Entries:       make([]domain.ScheduleEntry, 0),
		}
	}

	order := make([]int, len(ch.genes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ch.genes[order[a]].Slot < ch.genes[order[b]].Slot
	})

	roomsUsed := make(map[int]bool)
	for _, i := range order {
		g := ch.genes[i]
		b := p.blocks[g.Block]
		course := p.courses[b.course]
		room := p.rooms[g.Room]
		slot := p.slots[g.Slot]
		roomsUsed[g.Room] = true

		schedules[b.professor].Entries = append(schedules[b.professor].Entries, domain.ScheduleEntry{
			CourseID:   course.ID,
			CourseCode: course.Code,
			CourseName: course.Name,
			RoomID:     room.ID,
			RoomCode:   room.Code,
			Day:        slot.Day,
			Shift:      slot.Shift,
			StartTime:  slot.StartTime(),
			EndTime:    slot.EndTime(),
		})
	}

	violations := make([]domain.RunViolation, 0, len(fitness.Violations))
	soft := 0
	for _, v := range fitness.Violations {
		if !v.Hard {
			soft++
		}
		violations = append(violations, s.describe(ch, v))
	}

	coursesUsed := make(map[int]bool)
	for _, ob := range p.obligations {
		coursesUsed[ob.course] = true
	}

	stats := domain.RunStatistics{
		TotalProfessors:       len(p.professors),
		TotalCourses:          len(coursesUsed),
		TotalRooms:            len(roomsUsed),
		TotalEntries:          len(ch.genes),
		HardViolations:        fitness.Hard,
		SoftViolations:        soft,
		PreferencesMetPercent: s.preferencesMet(ch),
	}
	if len(ch.genes) > 0 {
		stats.ConflictPercent = math.Min(100, float64(fitness.Hard)/float64(len(ch.genes))*100)
	}

	return &Report{
		Schedules:  schedules,
		Violations: violations,
		Statistics: stats,
	}
}

// preferencesMet 统计满足的偏好比例：偏好等级不低于 3 的课程，以及满足教室、时段偏好的课时
func (s *Scheduler) preferencesMet(ch *Chromosome) float64 {
	p := s.problem
	met, total := 0, 0
	for _, ob := range p.obligations {
		total++
		if ob.level >= 3 {
			met++
		}
	}

	for _, g := range ch.genes {
		rules := s.catalog.rules[p.blocks[g.Block].professor]
		if rules.preferredRoom != nil {
			total++
			room := p.rooms[g.Room]
			want := rules.preferredRoom.Value.Text()
			if want == fmt.Sprint(room.ID) || want == room.Code {
				met++
			}
		}
		if rules.preferredShift != nil {
			total++
			if string(p.slots[g.Slot].Shift) == rules.preferredShift.Value.Text() {
				met++
			}
		}
	}

	if total == 0 {
		return 100
	}
	return float64(met) / float64(total) * 100
}

func (s *Scheduler) describe(ch *Chromosome, v Violation) domain.RunViolation {
	p := s.problem
	out := domain.RunViolation{
		Kind:         string(v.Kind),
		Severity:     v.Severity,
		Hard:         v.Hard,
		ProfessorIDs: make([]int64, 0),
		CourseIDs:    make([]int64, 0),
		RoomIDs:      make([]int64, 0),
	}

	for _, i := range v.Genes {
		g := ch.genes[i]
		b := p.blocks[g.Block]
		if id := p.professors[b.professor].ID; !slices.Contains(out.ProfessorIDs, id) {
			out.ProfessorIDs = append(out.ProfessorIDs, id)
		}
		if id := p.courses[b.course].ID; !slices.Contains(out.CourseIDs, id) {
			out.CourseIDs = append(out.CourseIDs, id)
		}
		if id := p.rooms[g.Room].ID; !slices.Contains(out.RoomIDs, id) {
			out.RoomIDs = append(out.RoomIDs, id)
		}
	}

	if len(v.Genes) == 0 {
		return out
	}

	first := ch.genes[v.Genes[0]]
	b := p.blocks[first.Block]
	professor := p.professors[b.professor]
	course := p.courses[b.course]
	room := p.rooms[first.Room]
	slot := p.slots[first.Slot]
	rules := s.catalog.rules[b.professor]
	when := fmt.Sprintf("%s %s-%s", slot.Day, slot.StartTime(), slot.EndTime())

	switch v.Kind {
	case KindRoomDoubleBooking:
		out.Description = fmt.Sprintf("教室 %s 在 %s 被重复安排", room.Code, when)
	case KindProfessorDoubleBooking:
		out.Description = fmt.Sprintf("教师 %s 在 %s 同时有多门课程", professor.FullName, when)
	case KindAvailability:
		out.Description = fmt.Sprintf("教师 %s 在 %s 不可上课", professor.FullName, when)
	case KindMaxDailyLoad:
		out.Description = fmt.Sprintf("教师 %s 在%s的课时数 %d 超过上限 %s", professor.FullName, slot.Day, len(v.Genes), rules.maxDaily.Value)
	case KindConsecutiveBlocks:
		out.Description = fmt.Sprintf("教师 %s 在%s连续上课超过 %s 个课时", professor.FullName, slot.Day, rules.consecutive.Value)
	case KindMinInterval:
		out.Description = fmt.Sprintf("教师 %s 在%s两节课的间隔少于 %s 分钟", professor.FullName, slot.Day, rules.minInterval.Value)
	case KindLunchBreak:
		out.Description = fmt.Sprintf("课程 %s 在 %s 占用了午休时间 %s", course.Name, when, rules.lunchBreak.Value)
	case KindRoomPreference:
		out.Description = fmt.Sprintf("课程 %s 未安排在教师 %s 偏好的教室 %s", course.Name, professor.FullName, rules.preferredRoom.Value)
	case KindShiftPreference:
		out.Description = fmt.Sprintf("课程 %s 未安排在教师 %s 偏好的时段 %s", course.Name, professor.FullName, rules.preferredShift.Value)
	case KindPreferenceMismatch:
		out.Description = fmt.Sprintf("教师 %s 对课程 %s 的偏好等级为 %d", professor.FullName, course.Name, p.obligations[b.obligation].level)
	default:
		out.Description = string(v.Kind)
	}
	return out
}
