package domain

import "time"

type Course struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	WorkloadHours int32     `json:"workloadHours"` // 学期总学时
	Credits       int32     `json:"credits"`
	WeeklyBlocks  int32     `json:"weeklyBlocks"` // 为 0 时由学分或学时推算
	Department    string    `json:"department"`
	Period        int32     `json:"period"`
	Enrollment    int32     `json:"enrollment"`
	RoomType      RoomType  `json:"roomType,omitempty"` // 为空表示任意类型的教室均可
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	Version       int32     `json:"-"`
}
