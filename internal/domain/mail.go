package domain

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

const MailTypeRunFinished = "run_finished"

type RunFinishedMailData struct {
	FullName       string    `json:"fullName"`
	RunID          string    `json:"runID"`
	Title          string    `json:"title"`
	Status         RunStatus `json:"status"`
	FitnessScore   float64   `json:"fitnessScore"`
	HardViolations int       `json:"hardViolations"`
	Generations    int       `json:"generations"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	ErrorMessage   string    `json:"errorMessage"`
}

var runStatusLabels = map[RunStatus]string{
	RunStatusRunning:   "运行中",
	RunStatusCompleted: "已完成",
	RunStatusFailed:    "失败",
	RunStatusCancelled: "已取消",
}

func (d RunFinishedMailData) StatusLabel() string {
	if label, ok := runStatusLabels[d.Status]; ok {
		return label
	}
	return string(d.Status)
}
