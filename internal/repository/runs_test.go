package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

var runColumnNames = []string{
	"id", "title", "semester", "scope", "requested_by", "professor_ids", "course_ids", "room_ids", "parameters",
	"global_restrictions", "notes", "status", "state", "schedules", "violations", "statistics", "fitness_score",
	"hard_violations", "generations", "timed_out", "elapsed_ms", "error_message", "created_at", "finished_at", "version",
}

func TestInsertRun(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO timetable_runs`).
		WithArgs("run-1", "2024 秋季排课", "2024.2", "individual", int64(3), []byte("[3]"), []byte("[]"), []byte("[]"), sqlmock.AnyArg(), []byte("[]"), "", "running", "seeded").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "version"}).AddRow(now, 1))

	run := &domain.Run{
		ID:           "run-1",
		Title:        "2024 秋季排课",
		Semester:     "2024.2",
		Scope:        domain.RunScopeIndividual,
		RequestedBy:  3,
		ProfessorIDs: []int64{3},
		Status:       domain.RunStatusRunning,
		State:        domain.RunStateSeeded,
	}
	require.NoError(t, repo.InsertRun(run))
	assert.Equal(t, now, run.CreatedAt)
	assert.Equal(t, int32(1), run.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunResult(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	finished := time.Now()
	mock.ExpectQuery(`UPDATE timetable_runs SET .* WHERE id = \$14 AND status = 'running' RETURNING version`).
		WithArgs(sqlmock.AnyArg(), "completed", "converged", sqlmock.AnyArg(), []byte("[]"), sqlmock.AnyArg(), 97.5, 0, 42, false, int64(1200), "", sqlmock.AnyArg(), "run-1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))

	run := &domain.Run{
		ID:            "run-1",
		Status:        domain.RunStatusCompleted,
		State:         domain.RunStateConverged,
		FitnessScore:  97.5,
		Generations:   42,
		ElapsedMillis: 1200,
		FinishedAt:    &finished,
	}
	require.NoError(t, repo.UpdateRunResult(run))
	assert.Equal(t, int32(2), run.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunByIDDecodesJSONColumns(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows(runColumnNames).AddRow(
		"run-1", "排课", "2024.2", "collective", int64(1), "[1,2]", "[10]", "[20]", `{"populationSize":100,"generations":200}`,
		"[]", "", "completed", "exhausted",
		`[{"professorID":1,"professorName":"张三","entries":[{"courseID":10,"roomID":20,"day":1,"shift":"morning","startTime":"08:00","endTime":"09:00"}]}]`,
		"[]", `{"totalProfessors":2,"hardViolations":0}`, 88.0, 0, 200, true, int64(3000), "", now, now, 2,
	)
	mock.ExpectQuery(`FROM timetable_runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := repo.GetRunByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunScopeCollective, run.Scope)
	assert.Equal(t, []int64{1, 2}, run.ProfessorIDs)
	assert.Equal(t, int32(100), run.Parameters.PopulationSize)
	require.Len(t, run.Schedules, 1)
	require.Len(t, run.Schedules[0].Entries, 1)
	assert.Equal(t, int64(20), run.Schedules[0].Entries[0].RoomID)
	assert.Equal(t, 2, run.Statistics.TotalProfessors)
	assert.True(t, run.TimedOut)
	require.NotNil(t, run.FinishedAt)
	assert.Empty(t, run.Violations)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllRunsWithoutFinishedAt(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	rows := sqlmock.NewRows(runColumnNames).AddRow(
		"run-2", "排课", "2024.2", "individual", int64(1), "[1]", "[]", "[]", "{}",
		"[]", "", "running", "seeded", "[]", "[]", "{}", 0.0, 0, 0, false, int64(0), "", time.Now(), nil, 1,
	)
	mock.ExpectQuery(`FROM timetable_runs WHERE \(\$1 = '' OR semester = \$1\) ORDER BY created_at DESC`).
		WithArgs("").
		WillReturnRows(rows)

	runs, err := repo.GetAllRuns("")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Equal(t, domain.RunStatusRunning, runs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRun(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM timetable_runs WHERE id = \$1 AND status <> 'running'`).
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM timetable_runs`).
		WithArgs("run-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeleteRun("run-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteRun("run-2")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInterruptedRuns(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE timetable_runs SET status = 'failed'`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkInterruptedRuns()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunAggregate(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	mock.ExpectQuery(`FROM timetable_runs WHERE \(\$1 = '' OR semester = \$1\) GROUP BY status`).
		WithArgs("2024.2").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "avg_fitness", "avg_elapsed"}).
			AddRow("completed", int64(4), 90.5, 1500.0).
			AddRow("failed", int64(1), 0.0, 20.0))
	mock.ExpectQuery(`jsonb_array_elements_text`).
		WithArgs("2024.2").
		WillReturnRows(sqlmock.NewRows([]string{"professors", "courses"}).AddRow(int64(6), int64(11)))

	agg, err := repo.GetRunAggregate("2024.2")
	require.NoError(t, err)
	assert.Equal(t, int64(5), agg.TotalRuns)
	assert.Equal(t, int64(4), agg.ByStatus[domain.RunStatusCompleted])
	assert.Equal(t, int64(1), agg.ByStatus[domain.RunStatusFailed])
	assert.Equal(t, 90.5, agg.AverageFitness)
	assert.Equal(t, 1500.0, agg.AverageElapsedMs)
	assert.Equal(t, int64(6), agg.ProfessorsInvolved)
	assert.Equal(t, int64(11), agg.CoursesInvolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}
