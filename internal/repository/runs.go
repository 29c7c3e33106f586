package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

const runColumns = `
	id, title, semester, scope, requested_by, professor_ids, course_ids, room_ids, parameters,
	global_restrictions, notes, status, state, schedules, violations, statistics, fitness_score,
	hard_violations, generations, timed_out, elapsed_ms, error_message, created_at, finished_at, version
`

func scanRun(s scanner) (*domain.Run, error) {
	run := &domain.Run{
		ProfessorIDs:       make([]int64, 0),
		CourseIDs:          make([]int64, 0),
		RoomIDs:            make([]int64, 0),
		GlobalRestrictions: make([]domain.Restriction, 0),
		Schedules:          make([]domain.ProfessorSchedule, 0),
		Violations:         make([]domain.RunViolation, 0),
	}

	var professorIDs, courseIDs, roomIDs, parameters, restrictions, schedules, violations, statistics []byte
	var finishedAt sql.NullTime
	dst := []any{
		&run.ID, &run.Title, &run.Semester, &run.Scope, &run.RequestedBy, &professorIDs, &courseIDs, &roomIDs, &parameters,
		&restrictions, &run.Notes, &run.Status, &run.State, &schedules, &violations, &statistics, &run.FitnessScore,
		&run.HardViolations, &run.Generations, &run.TimedOut, &run.ElapsedMillis, &run.ErrorMessage, &run.CreatedAt, &finishedAt, &run.Version,
	}
	if err := s.Scan(dst...); err != nil {
		return nil, err
	}

	columns := []struct {
		raw []byte
		dst any
	}{
		{professorIDs, &run.ProfessorIDs},
		{courseIDs, &run.CourseIDs},
		{roomIDs, &run.RoomIDs},
		{parameters, &run.Parameters},
		{restrictions, &run.GlobalRestrictions},
		{schedules, &run.Schedules},
		{violations, &run.Violations},
		{statistics, &run.Statistics},
	}
	for _, c := range columns {
		if err := decodeColumn(c.raw, c.dst); err != nil {
			return nil, err
		}
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

func (r *Repository) InsertRun(run *domain.Run) error {
	query := `
		INSERT INTO timetable_runs (id, title, semester, scope, requested_by, professor_ids, course_ids, room_ids, parameters, global_restrictions, notes, status, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, version
	`

	professorIDs, err := jsonColumn(run.ProfessorIDs)
	if err != nil {
		return err
	}
	courseIDs, err := jsonColumn(run.CourseIDs)
	if err != nil {
		return err
	}
	roomIDs, err := jsonColumn(run.RoomIDs)
	if err != nil {
		return err
	}
	restrictions, err := jsonColumn(run.GlobalRestrictions)
	if err != nil {
		return err
	}
	parameters, err := json.Marshal(run.Parameters)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	args := []any{run.ID, run.Title, run.Semester, run.Scope, run.RequestedBy, professorIDs, courseIDs, roomIDs, parameters, restrictions, run.Notes, run.Status, run.State}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(&run.CreatedAt, &run.Version)
}

// UpdateRunResult 写入终止状态的任务结果，只允许从 running 状态更新一次
func (r *Repository) UpdateRunResult(run *domain.Run) error {
	query := `
		UPDATE timetable_runs
		SET
			parameters = $1,
			status = $2,
			state = $3,
			schedules = $4,
			violations = $5,
			statistics = $6,
			fitness_score = $7,
			hard_violations = $8,
			generations = $9,
			timed_out = $10,
			elapsed_ms = $11,
			error_message = $12,
			finished_at = $13,
			version = version + 1
		WHERE id = $14 AND status = 'running'
		RETURNING version
	`

	parameters, err := json.Marshal(run.Parameters)
	if err != nil {
		return err
	}
	schedules, err := jsonColumn(run.Schedules)
	if err != nil {
		return err
	}
	violations, err := jsonColumn(run.Violations)
	if err != nil {
		return err
	}
	statistics, err := json.Marshal(run.Statistics)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	args := []any{
		parameters, run.Status, run.State, schedules, violations, statistics, run.FitnessScore,
		run.HardViolations, run.Generations, run.TimedOut, run.ElapsedMillis, run.ErrorMessage, run.FinishedAt, run.ID,
	}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(&run.Version)
}

func (r *Repository) GetRunByID(id string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM timetable_runs WHERE id = $1`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	return scanRun(r.dbpool.QueryRowContext(ctx, query, id))
}

func (r *Repository) GetRunsByRequester(professorID int64) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM timetable_runs WHERE requested_by = $1 ORDER BY created_at DESC`

	return r.queryRuns(query, professorID)
}

// GetAllRuns 的 semester 为空时返回所有学期
func (r *Repository) GetAllRuns(semester string) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM timetable_runs WHERE ($1 = '' OR semester = $1) ORDER BY created_at DESC`

	return r.queryRuns(query, semester)
}

func (r *Repository) queryRuns(query string, args ...any) ([]*domain.Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// DeleteRun 只删除已经结束的任务，返回是否删除成功
func (r *Repository) DeleteRun(id string) (bool, error) {
	query := `DELETE FROM timetable_runs WHERE id = $1 AND status <> 'running'`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	res, err := r.dbpool.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkInterruptedRuns 将进程重启前仍处于 running 状态的任务标记为失败
func (r *Repository) MarkInterruptedRuns() (int64, error) {
	query := `
		UPDATE timetable_runs
		SET status = 'failed', state = 'failed', error_message = $1, finished_at = NOW(), version = version + 1
		WHERE status = 'running'
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	res, err := r.dbpool.ExecContext(ctx, query, "服务重启导致任务中断")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) GetRunAggregate(semester string) (*domain.RunAggregate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	agg := &domain.RunAggregate{
		Semester: semester,
		ByStatus: make(map[domain.RunStatus]int64),
	}

	query := `
		SELECT status, COUNT(*), COALESCE(AVG(fitness_score), 0), COALESCE(AVG(elapsed_ms), 0)
		FROM timetable_runs
		WHERE ($1 = '' OR semester = $1)
		GROUP BY status
	`
	rows, err := r.dbpool.QueryContext(ctx, query, semester)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.RunStatus
		var count int64
		var avgFitness, avgElapsed float64
		if err := rows.Scan(&status, &count, &avgFitness, &avgElapsed); err != nil {
			return nil, err
		}
		agg.ByStatus[status] = count
		agg.TotalRuns += count
		// 平均适应度和耗时只统计成功完成的任务
		if status == domain.RunStatusCompleted {
			agg.AverageFitness = avgFitness
			agg.AverageElapsedMs = avgElapsed
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	query = `
		SELECT
			(SELECT COUNT(DISTINCT p.value) FROM timetable_runs t CROSS JOIN LATERAL jsonb_array_elements_text(t.professor_ids) AS p(value) WHERE ($1 = '' OR t.semester = $1)),
			(SELECT COUNT(DISTINCT c.value) FROM timetable_runs t CROSS JOIN LATERAL jsonb_array_elements_text(t.course_ids) AS c(value) WHERE ($1 = '' OR t.semester = $1))
	`
	if err := r.dbpool.QueryRowContext(ctx, query, semester).Scan(&agg.ProfessorsInvolved, &agg.CoursesInvolved); err != nil {
		return nil, err
	}

	return agg, nil
}
