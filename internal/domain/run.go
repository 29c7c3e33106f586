package domain

import "time"

type RunScope string

const (
	RunScopeIndividual RunScope = "individual"
	RunScopeCollective RunScope = "collective"
)

// RunStatus 是对外暴露的任务状态
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// RunState 是进化过程的内部状态
type RunState string

const (
	RunStateSeeded    RunState = "seeded"
	RunStateEvolving  RunState = "evolving"
	RunStateConverged RunState = "converged"
	RunStateExhausted RunState = "exhausted"
	RunStateCancelled RunState = "cancelled"
	RunStateFailed    RunState = "failed"
)

func (s RunState) Status() RunStatus {
	switch s {
	case RunStateConverged, RunStateExhausted:
		return RunStatusCompleted
	case RunStateCancelled:
		return RunStatusCancelled
	case RunStateFailed:
		return RunStatusFailed
	}
	return RunStatusRunning
}

type CrossoverType int32

const (
	CrossoverOnePoint CrossoverType = 1
	CrossoverTwoPoint CrossoverType = 2
)

type SelectionMethod string

const (
	SelectionTournament SelectionMethod = "tournament"
	SelectionRoulette   SelectionMethod = "roulette"
)

type RunParameters struct {
	PopulationSize     int32           `json:"populationSize"`
	Generations        int32           `json:"generations"`
	MutationRate       float64         `json:"mutationRate"`
	CrossoverType      CrossoverType   `json:"crossoverType"`
	CrossoverRate      float64         `json:"crossoverRate"`
	PreferenceWeight   float64         `json:"preferenceWeight"`
	ConflictWeight     float64         `json:"conflictWeight"`
	EliteCount         int32           `json:"eliteCount"`
	Selection          SelectionMethod `json:"selection"`
	TournamentSize     int32           `json:"tournamentSize"`
	PlateauGenerations int32           `json:"plateauGenerations"`
	TimeBudgetMillis   int64           `json:"timeBudgetMillis"` // 0 表示使用服务默认值，NoTimeBudget 表示不限制
	Seed               int64           `json:"seed,omitempty"`
}

// NoTimeBudget 显式关闭服务默认的时间预算
const NoTimeBudget int64 = -1

func DefaultIndividualParameters() RunParameters {
	return RunParameters{
		PopulationSize:   50,
		Generations:      100,
		MutationRate:     0.1,
		CrossoverType:    CrossoverOnePoint,
		CrossoverRate:    0.9,
		PreferenceWeight: 0.3,
		ConflictWeight:   0.7,
		EliteCount:       1,
		Selection:        SelectionTournament,
		TournamentSize:   3,
	}
}

func DefaultCollectiveParameters() RunParameters {
	p := DefaultIndividualParameters()
	p.PopulationSize = 100
	p.Generations = 200
	return p
}

// ApplyDefaults 补全未设置的可选参数，交叉概率为 0 视为未设置
func (p *RunParameters) ApplyDefaults() {
	if p.CrossoverType == 0 {
		p.CrossoverType = CrossoverOnePoint
	}
	if p.CrossoverRate == 0 {
		p.CrossoverRate = 0.9
	}
	if p.EliteCount == 0 {
		p.EliteCount = 1
	}
	if p.Selection == "" {
		p.Selection = SelectionTournament
	}
	if p.TournamentSize == 0 {
		p.TournamentSize = 3
	}
}

func (p RunParameters) TimeBudget() time.Duration {
	if p.TimeBudgetMillis <= 0 {
		return 0
	}
	return time.Duration(p.TimeBudgetMillis) * time.Millisecond
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type ScheduleEntry struct {
	CourseID   int64  `json:"courseID"`
	CourseCode string `json:"courseCode"`
	CourseName string `json:"courseName"`
	RoomID     int64  `json:"roomID"`
	RoomCode   string `json:"roomCode"`
	Day        Day    `json:"day"`
	Shift      Shift  `json:"shift"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
}

type ProfessorSchedule struct {
	ProfessorID   int64           `json:"professorID"`
	ProfessorName string          `json:"professorName"`
	Entries       []ScheduleEntry `json:"entries"`
}

type RunViolation struct {
	Kind         string   `json:"kind"`
	Severity     Severity `json:"severity"`
	Hard         bool     `json:"hard"`
	Description  string   `json:"description"`
	ProfessorIDs []int64  `json:"professorIDs"`
	CourseIDs    []int64  `json:"courseIDs"`
	RoomIDs      []int64  `json:"roomIDs"`
}

type RunStatistics struct {
	TotalProfessors       int     `json:"totalProfessors"`
	TotalCourses          int     `json:"totalCourses"`
	TotalRooms            int     `json:"totalRooms"`
	TotalEntries          int     `json:"totalEntries"`
	HardViolations        int     `json:"hardViolations"`
	SoftViolations        int     `json:"softViolations"`
	PreferencesMetPercent float64 `json:"preferencesMetPercent"`
	ConflictPercent       float64 `json:"conflictPercent"`
}

type RunProgress struct {
	RunID              string    `json:"runID"`
	State              RunState  `json:"state"`
	Generation         int       `json:"generation"`
	TotalGenerations   int       `json:"totalGenerations"`
	BestFitness        float64   `json:"bestFitness"`
	BestHardViolations int       `json:"bestHardViolations"`
	MeanFitness        float64   `json:"meanFitness"`
	ElapsedMillis      int64     `json:"elapsedMillis"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type Run struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Semester           string              `json:"semester"`
	Scope              RunScope            `json:"scope"`
	RequestedBy        int64               `json:"requestedBy"`
	ProfessorIDs       []int64             `json:"professorIDs"`
	CourseIDs          []int64             `json:"courseIDs"`
	RoomIDs            []int64             `json:"roomIDs"`
	Parameters         RunParameters       `json:"parameters"`
	GlobalRestrictions []Restriction       `json:"globalRestrictions"`
	Notes              string              `json:"notes"`
	Status             RunStatus           `json:"status"`
	State              RunState            `json:"state"`
	Schedules          []ProfessorSchedule `json:"schedules"`
	Violations         []RunViolation      `json:"violations"`
	FitnessScore       float64             `json:"fitnessScore"`
	HardViolations     int                 `json:"hardViolations"`
	Generations        int                 `json:"generations"`
	TimedOut           bool                `json:"timedOut"`
	ElapsedMillis      int64               `json:"elapsedMillis"`
	Statistics         RunStatistics       `json:"statistics"`
	ErrorMessage       string              `json:"errorMessage,omitempty"`
	Progress           *RunProgress        `json:"progress,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	FinishedAt         *time.Time          `json:"finishedAt"`
	Version            int32               `json:"-"`
}

type RunAggregate struct {
	Semester           string              `json:"semester"`
	TotalRuns          int64               `json:"totalRuns"`
	ByStatus           map[RunStatus]int64 `json:"byStatus"`
	AverageFitness     float64             `json:"averageFitness"`
	AverageElapsedMs   float64             `json:"averageElapsedMillis"`
	ProfessorsInvolved int64               `json:"professorsInvolved"`
	CoursesInvolved    int64               `json:"coursesInvolved"`
}
