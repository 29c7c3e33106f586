package domain

type Day int32

const (
	Monday Day = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var dayNames = map[Day]string{
	Monday:    "周一",
	Tuesday:   "周二",
	Wednesday: "周三",
	Thursday:  "周四",
	Friday:    "周五",
	Saturday:  "周六",
}

func (d Day) Valid() bool {
	return d >= Monday && d <= Saturday
}

func (d Day) String() string {
	if name, ok := dayNames[d]; ok {
		return name
	}
	return "未知"
}

type Shift string

const (
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
	ShiftEvening   Shift = "evening"
)

// ParseShift 同时接受旧系统中的 manha / tarde / noite
func ParseShift(v string) (Shift, bool) {
	switch v {
	case "morning", "manha", "manhã":
		return ShiftMorning, true
	case "afternoon", "tarde":
		return ShiftAfternoon, true
	case "evening", "noite":
		return ShiftEvening, true
	}
	return "", false
}

type ShiftDefinition struct {
	Shift        Shift  `json:"shift"`
	StartTime    string `json:"startTime"` // HH:MM
	EndTime      string `json:"endTime"`
	BlockMinutes int32  `json:"blockMinutes"` // 为 0 时整个时段为一个课时
}

type CalendarConfig struct {
	Days   []Day             `json:"days"`
	Shifts []ShiftDefinition `json:"shifts"`
}
