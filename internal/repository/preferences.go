package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

const preferenceColumns = `id, professor_id, courses, availability, restrictions, max_daily_hours, notes, is_active, created_at, updated_at, version`

func scanPreference(s scanner) (*domain.ProfessorPreference, error) {
	pref := &domain.ProfessorPreference{
		Courses:      make([]domain.CoursePreference, 0),
		Availability: make([]domain.AvailabilityWindow, 0),
		Restrictions: make([]domain.Restriction, 0),
	}
	var courses, availability, restrictions []byte
	dst := []any{&pref.ID, &pref.ProfessorID, &courses, &availability, &restrictions, &pref.MaxDailyHours, &pref.Notes, &pref.IsActive, &pref.CreatedAt, &pref.UpdatedAt, &pref.Version}
	if err := s.Scan(dst...); err != nil {
		return nil, err
	}

	if err := decodeColumn(courses, &pref.Courses); err != nil {
		return nil, err
	}
	if err := decodeColumn(availability, &pref.Availability); err != nil {
		return nil, err
	}
	if err := decodeColumn(restrictions, &pref.Restrictions); err != nil {
		return nil, err
	}
	return pref, nil
}

func (r *Repository) GetPreferenceByProfessorID(professorID int64) (*domain.ProfessorPreference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM professor_preferences WHERE professor_id = $1 AND is_active = TRUE`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	return scanPreference(r.dbpool.QueryRowContext(ctx, query, professorID))
}

func (r *Repository) GetPreferencesByProfessorIDs(professorIDs []int64) ([]*domain.ProfessorPreference, error) {
	if len(professorIDs) == 0 {
		return []*domain.ProfessorPreference{}, nil
	}

	holders, args := inClause(professorIDs, 1)
	query := `SELECT ` + preferenceColumns + ` FROM professor_preferences WHERE is_active = TRUE AND professor_id IN (` + holders + `) ORDER BY professor_id`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prefs := make([]*domain.ProfessorPreference, 0)
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return prefs, nil
}

// UpsertPreference 每位教师只保留一份偏好
func (r *Repository) UpsertPreference(pref *domain.ProfessorPreference) error {
	query := `
		INSERT INTO professor_preferences (professor_id, courses, availability, restrictions, max_daily_hours, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (professor_id) DO UPDATE
		SET
			courses = EXCLUDED.courses,
			availability = EXCLUDED.availability,
			restrictions = EXCLUDED.restrictions,
			max_daily_hours = EXCLUDED.max_daily_hours,
			notes = EXCLUDED.notes,
			is_active = TRUE,
			updated_at = NOW(),
			version = professor_preferences.version + 1
		RETURNING id, is_active, created_at, updated_at, version
	`

	courses, err := jsonColumn(pref.Courses)
	if err != nil {
		return err
	}
	availability, err := jsonColumn(pref.Availability)
	if err != nil {
		return err
	}
	restrictions, err := jsonColumn(pref.Restrictions)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	args := []any{pref.ProfessorID, courses, availability, restrictions, pref.MaxDailyHours, pref.Notes}
	dst := []any{&pref.ID, &pref.IsActive, &pref.CreatedAt, &pref.UpdatedAt, &pref.Version}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(dst...)
}
