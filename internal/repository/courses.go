package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

const courseColumns = `id, code, name, workload_hours, credits, weekly_blocks, department, period, enrollment, room_type, is_active, created_at, version`

func scanCourse(s scanner) (*domain.Course, error) {
	c := &domain.Course{}
	dst := []any{&c.ID, &c.Code, &c.Name, &c.WorkloadHours, &c.Credits, &c.WeeklyBlocks, &c.Department, &c.Period, &c.Enrollment, &c.RoomType, &c.IsActive, &c.CreatedAt, &c.Version}
	if err := s.Scan(dst...); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) GetCoursesByIDs(ids []int64) ([]*domain.Course, error) {
	if len(ids) == 0 {
		return []*domain.Course{}, nil
	}

	holders, args := inClause(ids, 1)
	query := `SELECT ` + courseColumns + ` FROM courses WHERE is_active = TRUE AND id IN (` + holders + `) ORDER BY id`

	return r.queryCourses(query, args...)
}

func (r *Repository) GetAllCourses() ([]*domain.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses ORDER BY id`

	return r.queryCourses(query)
}

func (r *Repository) queryCourses(query string, args ...any) ([]*domain.Course, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courses := make([]*domain.Course, 0)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return courses, nil
}

func (r *Repository) CreateCourse(c *domain.Course) error {
	query := `
		INSERT INTO courses (code, name, workload_hours, credits, weekly_blocks, department, period, enrollment, room_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, is_active, created_at, version
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	args := []any{c.Code, c.Name, c.WorkloadHours, c.Credits, c.WeeklyBlocks, c.Department, c.Period, c.Enrollment, c.RoomType}
	dst := []any{&c.ID, &c.IsActive, &c.CreatedAt, &c.Version}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(dst...)
}
