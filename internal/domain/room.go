package domain

import "time"

type RoomType string

const (
	RoomTypeLaboratory RoomType = "laboratorio"
	RoomTypeClassroom  RoomType = "sala_aula"
	RoomTypeAuditorium RoomType = "auditorio"
	RoomTypeMultimedia RoomType = "sala_multimidia"
)

type Room struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Capacity    int32     `json:"capacity"`
	Type        RoomType  `json:"type"`
	Building    string    `json:"building"`
	Floor       int32     `json:"floor"`
	Resources   []string  `json:"resources"`
	IsAvailable bool      `json:"isAvailable"`
	CreatedAt   time.Time `json:"createdAt"`
	Version     int32     `json:"-"`
}
