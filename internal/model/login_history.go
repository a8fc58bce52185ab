package model

import "time"

// LoginHistory records every admin login attempt.
type LoginHistory struct {
	ID        uint      `gorm:"primaryKey"`
	Email     string    `gorm:"size:320;index;not null"`
	Device    string    `gorm:"size:255"`
	IP        string    `gorm:"size:50"`
	Success   bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
