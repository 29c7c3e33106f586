package scheduler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

// 每天 6 个 60 分钟的课时：上午 08-12 点 4 个，下午 12-14 点 2 个
// 周一的下标为 0-5，周二为 6-11
func hourlyCalendar() domain.CalendarConfig {
	return domain.CalendarConfig{
		Days: []domain.Day{domain.Monday, domain.Tuesday},
		Shifts: []domain.ShiftDefinition{
			{Shift: domain.ShiftMorning, StartTime: "08:00", EndTime: "12:00", BlockMinutes: 60},
			{Shift: domain.ShiftAfternoon, StartTime: "12:00", EndTime: "14:00", BlockMinutes: 60},
		},
	}
}

func testCourse(id int64, blocks int32) *domain.Course {
	return &domain.Course{ID: id, Code: "C" + string(rune('0'+id)), Name: "课程", WeeklyBlocks: blocks, Enrollment: 30, IsActive: true}
}

func testRoom(id int64) *domain.Room {
	return &domain.Room{ID: id, Code: "R" + string(rune('0'+id)), Capacity: 40, Type: domain.RoomTypeClassroom, IsAvailable: true}
}

func newTestCatalog(t *testing.T, input *Input) *Catalog {
	t.Helper()
	p, err := newProblem(input)
	require.NoError(t, err)
	c, err := newCatalog(p, input.GlobalRestrictions, zap.NewNop())
	require.NoError(t, err)
	return c
}

func kinds(violations []Violation) map[Kind]int {
	out := make(map[Kind]int)
	for _, v := range violations {
		out[v.Kind]++
	}
	return out
}

func individualInput(pref *domain.ProfessorPreference, courses ...*domain.Course) *Input {
	pref.ProfessorID = 1
	return &Input{
		Scope:       domain.RunScopeIndividual,
		Calendar:    hourlyCalendar(),
		Professors:  []*domain.Professor{{ID: 1, FullName: "张三"}},
		Courses:     courses,
		Rooms:       []*domain.Room{testRoom(1), testRoom(2)},
		Preferences: []*domain.ProfessorPreference{pref},
	}
}

func TestCatalogDoubleBooking(t *testing.T) {
	input := &Input{
		Scope:      domain.RunScopeCollective,
		Calendar:   hourlyCalendar(),
		Professors: []*domain.Professor{{ID: 1}, {ID: 2}},
		Courses:    []*domain.Course{testCourse(1, 1), testCourse(2, 1)},
		Rooms:      []*domain.Room{testRoom(1)},
		Preferences: []*domain.ProfessorPreference{
			{ProfessorID: 1, Courses: []domain.CoursePreference{{CourseID: 1, Level: 5}}},
			{ProfessorID: 2, Courses: []domain.CoursePreference{{CourseID: 2, Level: 5}}},
		},
	}
	c := newTestCatalog(t, input)

	violations, err := c.Evaluate([]Gene{{Block: 0, Room: 0, Slot: 3}, {Block: 1, Room: 0, Slot: 3}})
	require.NoError(t, err)
	got := kinds(violations)
	assert.Equal(t, 1, got[KindRoomDoubleBooking])
	assert.Zero(t, got[KindProfessorDoubleBooking])
	assert.Equal(t, []int{0, 1}, violations[0].Genes)
	assert.True(t, violations[0].Hard)
	assert.Equal(t, domain.SeverityCritical, violations[0].Severity)

	violations, err = c.Evaluate([]Gene{{Block: 0, Room: 0, Slot: 3}, {Block: 1, Room: 0, Slot: 4}})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestCatalogProfessorDoubleBooking(t *testing.T) {
	pref := &domain.ProfessorPreference{Courses: []domain.CoursePreference{{CourseID: 1, Level: 5}, {CourseID: 2, Level: 5}}}
	c := newTestCatalog(t, individualInput(pref, testCourse(1, 1), testCourse(2, 1)))

	violations, err := c.Evaluate([]Gene{{Block: 0, Room: 0, Slot: 2}, {Block: 1, Room: 1, Slot: 2}})
	require.NoError(t, err)
	assert.Equal(t, map[Kind]int{KindProfessorDoubleBooking: 1}, kinds(violations))
}

func TestCatalogAvailability(t *testing.T) {
	pref := &domain.ProfessorPreference{
		Courses: []domain.CoursePreference{{CourseID: 1, Level: 5}},
		Availability: []domain.AvailabilityWindow{
			{Day: domain.Monday, Shift: domain.ShiftMorning, Available: true},
			{Day: domain.Monday, Shift: domain.ShiftMorning, Ranges: []domain.TimeRange{{StartTime: "10:00", EndTime: "11:00"}}},
		},
	}
	c := newTestCatalog(t, individualInput(pref, testCourse(1, 1)))

	for slot, ok := range map[int]bool{0: true, 1: true, 2: false, 3: true, 4: false, 6: false} {
		violations, err := c.Evaluate([]Gene{{Block: 0, Room: 0, Slot: slot}})
		require.NoError(t, err)
		if ok {
			assert.Empty(t, violations, "slot %d", slot)
		} else {
			assert.Equal(t, map[Kind]int{KindAvailability: 1}, kinds(violations), "slot %d", slot)
		}
	}
}

func TestCatalogNoWindowsMeansAvailableEverywhere(t *testing.T) {
	pref := &domain.ProfessorPreference{Courses: []domain.CoursePreference{{CourseID: 1, Level: 5}}}
	c := newTestCatalog(t, individualInput(pref, testCourse(1, 1)))

	for slot := 0; slot < 12; slot++ {
		violations, err := c.Evaluate([]Gene{{Block: 0, Room: 0, Slot: slot}})
		require.NoError(t, err)
		assert.Empty(t, violations)
	}
}

func TestCatalogMaxDailyLoad(t *testing.T) {
	pref := &domain.ProfessorPreference{
		Courses:       []domain.CoursePreference{{CourseID: 1, Level: 5}},
		MaxDailyHours: 2,
	}
	c := newTestCatalog(t, individualInput(pref, testCourse(1, 3)))

	violations, err := c.Evaluate([]Gene{{0, 0, 0}, {1, 0, 2}, {2, 0, 4}})
	require.NoError(t, err)
	require.Equal(t, map[Kind]int{KindMaxDailyLoad: 1}, kinds(violations))
	assert.Equal(t, []int{0, 1, 2}, violations[0].Genes)

	violations, err = c.Evaluate([]Gene{{0, 0, 0}, {1, 0, 2}, {2, 0, 7}})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestCatalogGlobalMaxDailyTightens(t *testing.T) {
	pref := &domain.ProfessorPreference{
		Courses:       []domain.CoursePreference{{CourseID: 1, Level: 5}},
		MaxDailyHours: 4,
	}
	input := individualInput(pref, testCourse(1, 2))
	input.GlobalRestrictions = []domain.Restriction{restriction(domain.RestrictionMaxDailyLoad, `1`, 2)}
	c := newTestCatalog(t, input)

	violations, err := c.Evaluate([]Gene{{0, 0, 0}, {1, 0, 3}})
	require.NoError(t, err)
	assert.Equal(t, map[Kind]int{KindMaxDailyLoad: 1}, kinds(violations))
	assert.True(t, violations[0].Hard)
}

func TestCatalogNoConsecutive(t *testing.T) {
	pref := &domain.ProfessorPreference{
		Courses:      []domain.CoursePreference{{CourseID: 1, Level: 5}},
		Restrictions: []domain.Restriction{restriction(domain.RestrictionNoConsecutive, ``, 2)},
	}
	c := newTestCatalog(t, individualInput(pref, testCourse(1, 2)))

	violations, err := c.Evaluate([]Gene{{0, 0, 1}, {1, 0, 2}})
	require.NoError(t, err)
	require.Equal(t, map[Kind]int{KindConsecutiveBlocks: 1}, kinds(violations))
	assert.True(t, violations[0].Hard)
	assert.Equal(t, domain.SeverityLow, violations[0].Severity)

	// 上午最后一节与下午第一节首尾相接
	violations, err = c.Evaluate([]Gene{{0, 0, 3}, {1, 0, 4}})
	require.NoError(t, err)
	assert.Equal(t, map[Kind]int{KindConsecutiveBlocks: 1}, kinds(violations))

	violations, err = c.Evaluate([]Gene{{0, 0, 1}, {1, 0, 3}})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestCatalogGlobalConsecutiveLimit(t *testing.T) {
	pref := &domain.ProfessorPreference{Courses: []domain.CoursePreference{{CourseID: 1, Level: 5}}}
	input := individualInput(pref, testCourse(1, 3))
	input.GlobalRestrictions = []domain.Restriction{restriction(domain.RestrictionConsecutiveCourses, `2`, 3)}
	c := newTestCatalog(t, input)

	violations, err := c.Evaluate([]Gene{{0, 0, 0}, {1, 0, 1}, {2, 0, 2}})
	require.NoError(t, err)
	assert.Equal(t, map[Kind]int{KindConsecutiveBlocks: 1}, kinds(violations))

	violations, err = c.Evaluate([]Gene{{0, 0, 0}, {1, 0, 1}, {2, 0, 3}})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestCatalogSoftRestrictions(t *testing.T) {
	pref := &domain.ProfessorPreference{
		Courses: []domain.CoursePreference{{CourseID: 1, Level: 5}},
		Restrictions: []domain.Restriction{
			restriction(domain.RestrictionPreferredRoom, `"R2"`, 2),
			restriction(domain.RestrictionPreferredShift, `"afternoon"`, 3),
			restriction(domain.RestrictionMinInterval, `90`, 3),
			restriction(domain.RestrictionRoomUsage, `"lab"`, 3),
		},
	}
	input := individualInput(pref, testCourse(1, 2))
	input.GlobalRestrictions = []domain.Restriction{restriction(domain.RestrictionLunchBreak, `"12:00-13:00"`, 3)}
	c := newTestCatalog(t, input)

	violations, err := c.Evaluate([]Gene{{0, 0, 0}, {1, 0, 1}})
	require.NoError(t, err)
	assert.Equal(t, map[Kind]int{
		KindRoomPreference:  2,
		KindShiftPreference: 2,
		KindMinInterval:     1,
	}, kinds(violations))
	for _, v := range violations {
		assert.False(t, v.Hard)
	}

	violations, err = c.Evaluate([]Gene{{0, 1, 4}, {1, 1, 10}})
	require.NoError(t, err)
	require.Equal(t, map[Kind]int{KindLunchBreak: 2}, kinds(violations))
	assert.InDelta(t, 0.6, violations[0].Penalty, 1e-9)
}

func TestCatalogPreferenceMismatchPenalty(t *testing.T) {
	pref := &domain.ProfessorPreference{Courses: []domain.CoursePreference{{CourseID: 1, Level: 3}, {CourseID: 2}}}
	c := newTestCatalog(t, individualInput(pref, testCourse(1, 2), testCourse(2, 1)))

	violations, err := c.Evaluate([]Gene{{0, 0, 0}, {1, 0, 6}, {2, 1, 8}})
	require.NoError(t, err)
	require.Len(t, violations, 2)
	assert.Equal(t, KindPreferenceMismatch, violations[0].Kind)
	assert.InDelta(t, 0.8, violations[0].Penalty, 1e-9)
	assert.Equal(t, []int{0, 1}, violations[0].Genes)
	// 未设置等级时按 3 处理
	assert.InDelta(t, 0.4, violations[1].Penalty, 1e-9)
	assert.False(t, violations[1].Hard)
}

func TestCatalogEvaluateIsPure(t *testing.T) {
	pref := &domain.ProfessorPreference{
		Courses:      []domain.CoursePreference{{CourseID: 1, Level: 2}},
		Restrictions: []domain.Restriction{restriction(domain.RestrictionNoConsecutive, ``, 4)},
	}
	c := newTestCatalog(t, individualInput(pref, testCourse(1, 3)))

	genes := []Gene{{0, 0, 0}, {1, 0, 1}, {2, 1, 1}}
	before := append([]Gene(nil), genes...)

	first, err := c.Evaluate(genes)
	require.NoError(t, err)
	second, err := c.Evaluate(genes)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, genes)
}

func TestCatalogMalformedGenes(t *testing.T) {
	pref := &domain.ProfessorPreference{Courses: []domain.CoursePreference{{CourseID: 1, Level: 5}}}
	c := newTestCatalog(t, individualInput(pref, testCourse(1, 1)))

	for _, genes := range [][]Gene{
		{},
		{{0, 5, 0}},
		{{0, 0, 99}},
		{{3, 0, 0}},
	} {
		_, err := c.Evaluate(genes)
		assert.ErrorIs(t, err, ErrEvaluation)
	}
}

func TestCatalogInvalidRestrictions(t *testing.T) {
	pref := &domain.ProfessorPreference{
		ID:           9,
		Courses:      []domain.CoursePreference{{CourseID: 1, Level: 5}},
		Restrictions: []domain.Restriction{restriction(domain.RestrictionMinInterval, `"x"`, 3)},
	}
	input := individualInput(pref, testCourse(1, 1))
	p, err := newProblem(input)
	require.NoError(t, err)
	_, err = newCatalog(p, nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrInput)

	pref.Restrictions = nil
	_, err = newCatalog(p, []domain.Restriction{{Type: domain.RestrictionLunchBreak, Value: json.RawMessage(`"x"`), Priority: 3}}, zap.NewNop())
	assert.ErrorIs(t, err, ErrConfig)
}
