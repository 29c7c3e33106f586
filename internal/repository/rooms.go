package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

const roomColumns = `id, code, name, capacity, type, building, floor, resources, is_available, created_at, version`

func scanRoom(s scanner) (*domain.Room, error) {
	room := &domain.Room{}
	var resources []byte
	dst := []any{&room.ID, &room.Code, &room.Name, &room.Capacity, &room.Type, &room.Building, &room.Floor, &resources, &room.IsAvailable, &room.CreatedAt, &room.Version}
	if err := s.Scan(dst...); err != nil {
		return nil, err
	}
	room.Resources = make([]string, 0)
	if err := decodeColumn(resources, &room.Resources); err != nil {
		return nil, err
	}
	return room, nil
}

func (r *Repository) GetRoomsByIDs(ids []int64) ([]*domain.Room, error) {
	if len(ids) == 0 {
		return []*domain.Room{}, nil
	}

	holders, args := inClause(ids, 1)
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id IN (` + holders + `) ORDER BY id`

	return r.queryRooms(query, args...)
}

func (r *Repository) GetAvailableRooms() ([]*domain.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE is_available = TRUE ORDER BY id`

	return r.queryRooms(query)
}

func (r *Repository) queryRooms(query string, args ...any) ([]*domain.Room, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]*domain.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rooms, nil
}

func (r *Repository) CreateRoom(room *domain.Room) error {
	query := `
		INSERT INTO rooms (code, name, capacity, type, building, floor, resources)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, is_available, created_at, version
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	resources, err := jsonColumn(room.Resources)
	if err != nil {
		return err
	}

	args := []any{room.Code, room.Name, room.Capacity, room.Type, room.Building, room.Floor, resources}
	dst := []any{&room.ID, &room.IsAvailable, &room.CreatedAt, &room.Version}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(dst...)
}
