package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

func TestEnumerateSlotsOrdering(t *testing.T) {
	slots, err := EnumerateSlots(
		[]domain.Day{domain.Wednesday, domain.Monday},
		[]domain.ShiftDefinition{
			{Shift: domain.ShiftAfternoon, StartTime: "14:00", EndTime: "16:00"},
			{Shift: domain.ShiftMorning, StartTime: "08:00", EndTime: "12:00", BlockMinutes: 120},
		},
	)
	require.NoError(t, err)
	require.Len(t, slots, 6)

	assert.Equal(t, domain.Monday, slots[0].Day)
	assert.Equal(t, domain.ShiftMorning, slots[0].Shift)
	assert.Equal(t, "08:00", slots[0].StartTime())
	assert.Equal(t, "10:00", slots[0].EndTime())
	assert.Equal(t, "10:00", slots[1].StartTime())
	assert.Equal(t, domain.ShiftAfternoon, slots[2].Shift)
	assert.Equal(t, 120, slots[2].Minutes())
	assert.Equal(t, domain.Wednesday, slots[3].Day)

	for i, s := range slots {
		assert.Equal(t, i, s.Index)
	}
	assert.True(t, slots[0].precedes(slots[1]))
	assert.False(t, slots[1].precedes(slots[2]))
}

func TestEnumerateSlotsDeterministic(t *testing.T) {
	days := []domain.Day{domain.Friday, domain.Tuesday}
	shifts := []domain.ShiftDefinition{{Shift: "manha", StartTime: "07:30", EndTime: "11:30", BlockMinutes: 50}}

	a, err := EnumerateSlots(days, shifts)
	require.NoError(t, err)
	b, err := EnumerateSlots(days, shifts)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// 240 分钟按 50 分钟划分，剩余的 40 分钟被丢弃
	assert.Len(t, a, 8)
	assert.Equal(t, domain.ShiftMorning, a[0].Shift)
}

func TestEnumerateSlotsInvalid(t *testing.T) {
	morning := domain.ShiftDefinition{Shift: domain.ShiftMorning, StartTime: "08:00", EndTime: "12:00"}

	tests := []struct {
		name   string
		days   []domain.Day
		shifts []domain.ShiftDefinition
	}{
		{"no days", nil, []domain.ShiftDefinition{morning}},
		{"no shifts", []domain.Day{domain.Monday}, nil},
		{"sunday", []domain.Day{7}, []domain.ShiftDefinition{morning}},
		{"repeated day", []domain.Day{domain.Monday, domain.Monday}, []domain.ShiftDefinition{morning}},
		{"start after end", []domain.Day{domain.Monday}, []domain.ShiftDefinition{
			{Shift: domain.ShiftMorning, StartTime: "12:00", EndTime: "08:00"},
		}},
		{"bad clock", []domain.Day{domain.Monday}, []domain.ShiftDefinition{
			{Shift: domain.ShiftMorning, StartTime: "8h", EndTime: "12:00"},
		}},
		{"unknown shift", []domain.Day{domain.Monday}, []domain.ShiftDefinition{
			{Shift: "night", StartTime: "20:00", EndTime: "22:00"},
		}},
		{"overlap", []domain.Day{domain.Monday}, []domain.ShiftDefinition{
			morning,
			{Shift: domain.ShiftAfternoon, StartTime: "11:00", EndTime: "14:00"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EnumerateSlots(tt.days, tt.shifts)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)

			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}
