package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

func TestRenderCompletedRun(t *testing.T) {
	run := &domain.Run{
		ID:       "run-1",
		Title:    "Horario 2025.1",
		Semester: "2025.1",
		Status:   domain.RunStatusCompleted,
		Schedules: []domain.ProfessorSchedule{{
			ProfessorID:   1,
			ProfessorName: "Maria",
			Entries: []domain.ScheduleEntry{
				{CourseCode: "MAT01", CourseName: "Cálculo I", RoomCode: "A101", Day: domain.Monday, Shift: domain.ShiftMorning, StartTime: "08:00", EndTime: "09:00"},
			},
		}},
	}

	out, err := NewPDFExporter("").Render(run)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRejectsUnfinishedRun(t *testing.T) {
	_, err := NewPDFExporter("").Render(&domain.Run{ID: "run-2", Status: domain.RunStatusRunning})
	assert.Error(t, err)

	_, err = NewPDFExporter("").Render(nil)
	assert.Error(t, err)
}
