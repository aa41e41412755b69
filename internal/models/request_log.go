package models

import (
	"time"

	"gorm.io/gorm"
)

type RequestStatus string

const (
	StatusSuccess RequestStatus = "SUCCESS"
	StatusError   RequestStatus = "ERROR"
)

type RequestLog struct {
	ID             uint   `gorm:"primarykey"`
	UserID         string `gorm:"index"`
	APIKeyID       uint   `gorm:"index"`
	Endpoint       string `gorm:"index"`
	Method         string
	Status         RequestStatus
	StatusCode     int
	ResponseTimeMs int64
	IPAddress      string
	UserAgent      string
	Timestamp      time.Time `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}
