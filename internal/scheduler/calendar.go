package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

// Slot 是日历中的一个最小排课单元，创建后不可修改
type Slot struct {
	Index int
	Day   domain.Day
	Shift domain.Shift
	Start int // 距离零点的分钟数
	End   int
}

func (s Slot) StartTime() string { return formatClock(s.Start) }

func (s Slot) EndTime() string { return formatClock(s.End) }

func (s Slot) Minutes() int { return s.End - s.Start }

func (s Slot) overlaps(start, end int) bool {
	return s.Start < end && start < s.End
}

// precedes 判断 s 与 next 是否为同一天内首尾相接的两个课时
func (s Slot) precedes(next Slot) bool {
	return s.Day == next.Day && s.End == next.Start
}

func parseClock(v string) (int, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("时间 %q 格式不正确", v)
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

type shiftSpan struct {
	shift      domain.Shift
	start, end int
	block      int
}

// EnumerateSlots 根据上课日与时段定义生成有序的课时列表
// 顺序为：星期、时段开始时间、课时开始时间
func EnumerateSlots(days []domain.Day, shifts []domain.ShiftDefinition) ([]Slot, error) {
	if len(days) == 0 {
		return nil, configErrorf("calendar.days", "不能为空")
	}
	if len(shifts) == 0 {
		return nil, configErrorf("calendar.shifts", "不能为空")
	}

	seenDays := make(map[domain.Day]bool)
	sortedDays := make([]domain.Day, 0, len(days))
	for _, d := range days {
		if !d.Valid() {
			return nil, configErrorf("calendar.days", "%d 不是合法的上课日", d)
		}
		if seenDays[d] {
			return nil, configErrorf("calendar.days", "%s 重复", d)
		}
		seenDays[d] = true
		sortedDays = append(sortedDays, d)
	}
	sort.Slice(sortedDays, func(i, j int) bool { return sortedDays[i] < sortedDays[j] })

	seenShifts := make(map[domain.Shift]bool)
	spans := make([]shiftSpan, 0, len(shifts))
	for _, def := range shifts {
		shift, ok := domain.ParseShift(string(def.Shift))
		if !ok {
			return nil, configErrorf("calendar.shifts", "未知的时段 %q", def.Shift)
		}
		if seenShifts[shift] {
			return nil, configErrorf("calendar.shifts", "时段 %s 重复", shift)
		}
		seenShifts[shift] = true

		start, err := parseClock(def.StartTime)
		if err != nil {
			return nil, configErrorf("calendar.shifts", "%s: %v", def.Shift, err)
		}
		end, err := parseClock(def.EndTime)
		if err != nil {
			return nil, configErrorf("calendar.shifts", "%s: %v", def.Shift, err)
		}
		if start >= end {
			return nil, configErrorf("calendar.shifts", "时段 %s 的开始时间必须早于结束时间", def.Shift)
		}
		if def.BlockMinutes < 0 {
			return nil, configErrorf("calendar.shifts", "时段 %s 的课时长度不能为负数", def.Shift)
		}

		block := int(def.BlockMinutes)
		if block == 0 || block > end-start {
			block = end - start
		}
		spans = append(spans, shiftSpan{shift: shift, start: start, end: end, block: block})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return nil, configErrorf("calendar.shifts", "时段 %s 与 %s 重叠", spans[i-1].shift, spans[i].shift)
		}
	}

	slots := make([]Slot, 0)
	for _, day := range sortedDays {
		for _, span := range spans {
			// 不足一个课时的剩余时间直接丢弃
			for start := span.start; start+span.block <= span.end; start += span.block {
				slots = append(slots, Slot{
					Index: len(slots),
					Day:   day,
					Shift: span.shift,
					Start: start,
					End:   start + span.block,
				})
			}
		}
	}

	return slots, nil
}

// blockLength 返回日历中最短课时的分钟数
func blockLength(slots []Slot) int {
	length := 0
	for _, s := range slots {
		if length == 0 || s.Minutes() < length {
			length = s.Minutes()
		}
	}
	return length
}
