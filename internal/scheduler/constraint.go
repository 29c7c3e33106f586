package scheduler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

type Kind string

const (
	KindRoomDoubleBooking      Kind = "room_double_booking"
	KindProfessorDoubleBooking Kind = "professor_double_booking"
	KindAvailability           Kind = "availability_violation"
	KindMaxDailyLoad           Kind = "max_daily_load_exceeded"
	KindConsecutiveBlocks      Kind = "consecutive_block_violation"
	KindPreferenceMismatch     Kind = "preference_mismatch"
	KindMinInterval            Kind = "min_interval_violation"
	KindRoomPreference         Kind = "room_preference_mismatch"
	KindShiftPreference        Kind = "shift_preference_mismatch"
	KindLunchBreak             Kind = "lunch_break_violation"
)

type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueString
	ValueNumber
	ValueRange
	ValueEnum
)

// ConstraintValue 是限制条件取值的带标签联合体，在构建约束目录时一次性解析
type ConstraintValue struct {
	kind   ValueKind
	text   string
	number float64
	lo, hi int
}

func NoValue() ConstraintValue { return ConstraintValue{kind: ValueNone} }

func StringValue(v string) ConstraintValue { return ConstraintValue{kind: ValueString, text: v} }

func NumberValue(v float64) ConstraintValue { return ConstraintValue{kind: ValueNumber, number: v} }

// RangeValue 的 lo 与 hi 为距离零点的分钟数
func RangeValue(lo, hi int) ConstraintValue { return ConstraintValue{kind: ValueRange, lo: lo, hi: hi} }

func EnumValue(v string) ConstraintValue { return ConstraintValue{kind: ValueEnum, text: v} }

func (v ConstraintValue) Kind() ValueKind { return v.kind }

func (v ConstraintValue) Text() string { return v.text }

func (v ConstraintValue) Number() float64 { return v.number }

func (v ConstraintValue) Range() (int, int) { return v.lo, v.hi }

func (v ConstraintValue) String() string {
	switch v.kind {
	case ValueString, ValueEnum:
		return v.text
	case ValueNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case ValueRange:
		return formatClock(v.lo) + "-" + formatClock(v.hi)
	}
	return ""
}

// Constraint 描述一条已注册的约束
// Professor 为 -1 时表示全局约束
type Constraint struct {
	Kind      Kind
	Professor int
	Severity  domain.Severity
	Weight    float64
	Hard      bool
	Value     ConstraintValue
}

var errUnsupportedRestriction = errors.New("暂不支持的限制条件")

// severityFromPriority 将 1-5 的优先级映射为严重程度
func severityFromPriority(priority int32) domain.Severity {
	switch {
	case priority >= 5:
		return domain.SeverityCritical
	case priority == 4:
		return domain.SeverityHigh
	case priority == 3:
		return domain.SeverityMedium
	}
	return domain.SeverityLow
}

func restrictionConstraint(kind Kind, professor int, r domain.Restriction, value ConstraintValue) Constraint {
	priority := r.Priority
	if priority == 0 {
		priority = 3
	}
	return Constraint{
		Kind:      kind,
		Professor: professor,
		Severity:  severityFromPriority(priority),
		Weight:    float64(priority) / 5,
		Hard:      priority >= 4,
		Value:     value,
	}
}

// resolveValue 按限制类型解析原始 JSON 取值
func resolveValue(r domain.Restriction) (ConstraintValue, error) {
	raw := bytes.TrimSpace(r.Value)

	switch r.Type {
	case domain.RestrictionNoConsecutive:
		return NoValue(), nil

	case domain.RestrictionMinInterval, domain.RestrictionMaxDailyLoad, domain.RestrictionConsecutiveCourses:
		n, err := decodeNumber(raw)
		if err != nil {
			return ConstraintValue{}, err
		}
		if n <= 0 {
			return ConstraintValue{}, fmt.Errorf("取值必须为正数")
		}
		return NumberValue(n), nil

	case domain.RestrictionPreferredRoom:
		text, err := decodeText(raw)
		if err != nil {
			return ConstraintValue{}, err
		}
		if text == "" {
			return ConstraintValue{}, fmt.Errorf("未指定教室")
		}
		return StringValue(text), nil

	case domain.RestrictionPreferredShift:
		text, err := decodeText(raw)
		if err != nil {
			return ConstraintValue{}, err
		}
		shift, ok := domain.ParseShift(strings.ToLower(text))
		if !ok {
			return ConstraintValue{}, fmt.Errorf("未知的时段 %q", text)
		}
		return EnumValue(string(shift)), nil

	case domain.RestrictionLunchBreak:
		return decodeRange(raw)

	case domain.RestrictionRoomUsage:
		return ConstraintValue{}, errUnsupportedRestriction
	}

	return ConstraintValue{}, fmt.Errorf("未知的限制类型 %q", r.Type)
}

func decodeNumber(raw []byte) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("缺少取值")
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("取值应为数字")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("取值应为数字")
	}
	return n, nil
}

func decodeText(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("缺少取值")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("取值应为字符串")
	}
	return n.String(), nil
}

// decodeRange 接受 "12:00-13:30" 或 {"inicio":"12:00","fim":"13:30"} / {"start":"12:00","end":"13:30"}
func decodeRange(raw []byte) (ConstraintValue, error) {
	if len(raw) == 0 {
		return ConstraintValue{}, fmt.Errorf("缺少取值")
	}

	var start, end string
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parts := strings.SplitN(s, "-", 2)
		if len(parts) != 2 {
			return ConstraintValue{}, fmt.Errorf("时间区间 %q 格式不正确", s)
		}
		start, end = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	} else {
		var obj map[string]string
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ConstraintValue{}, fmt.Errorf("时间区间格式不正确")
		}
		start, end = obj["start"], obj["end"]
		if start == "" && end == "" {
			start, end = obj["inicio"], obj["fim"]
		}
	}

	lo, err := parseClock(start)
	if err != nil {
		return ConstraintValue{}, err
	}
	hi, err := parseClock(end)
	if err != nil {
		return ConstraintValue{}, err
	}
	if lo >= hi {
		return ConstraintValue{}, fmt.Errorf("时间区间的开始时间必须早于结束时间")
	}
	return RangeValue(lo, hi), nil
}
