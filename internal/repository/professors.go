package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

const professorColumns = `id, username, full_name, email, department, role, is_active, created_at, version`

func scanProfessor(s scanner) (*domain.Professor, error) {
	p := &domain.Professor{}
	dst := []any{&p.ID, &p.Username, &p.FullName, &p.Email, &p.Department, &p.Role, &p.IsActive, &p.CreatedAt, &p.Version}
	if err := s.Scan(dst...); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) GetProfessorByID(id int64) (*domain.Professor, error) {
	query := `SELECT ` + professorColumns + ` FROM professors WHERE id = $1`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	return scanProfessor(r.dbpool.QueryRowContext(ctx, query, id))
}

// GetProfessorsByIDs 只返回存在且处于启用状态的教师，顺序与 ids 无关
func (r *Repository) GetProfessorsByIDs(ids []int64) ([]*domain.Professor, error) {
	if len(ids) == 0 {
		return []*domain.Professor{}, nil
	}

	holders, args := inClause(ids, 1)
	query := `SELECT ` + professorColumns + ` FROM professors WHERE is_active = TRUE AND id IN (` + holders + `) ORDER BY id`

	return r.queryProfessors(query, args...)
}

func (r *Repository) GetAllProfessors() ([]*domain.Professor, error) {
	query := `SELECT ` + professorColumns + ` FROM professors ORDER BY id`

	return r.queryProfessors(query)
}

func (r *Repository) queryProfessors(query string, args ...any) ([]*domain.Professor, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	professors := make([]*domain.Professor, 0)
	for rows.Next() {
		p, err := scanProfessor(rows)
		if err != nil {
			return nil, err
		}
		professors = append(professors, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return professors, nil
}

func (r *Repository) CreateProfessor(p *domain.Professor) error {
	query := `
		INSERT INTO professors (username, full_name, email, department, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_active, created_at, version
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	args := []any{p.Username, p.FullName, p.Email, p.Department, p.Role}
	dst := []any{&p.ID, &p.IsActive, &p.CreatedAt, &p.Version}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(dst...)
}

func (r *Repository) GetProfessorByUsername(username string) (*domain.Professor, error) {
	query := `SELECT ` + professorColumns + ` FROM professors WHERE username = $1`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	return scanProfessor(r.dbpool.QueryRowContext(ctx, query, username))
}
