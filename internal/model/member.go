package model

import "time"

// FamilyMember is a person tasks can be assigned to. TelegramID links the
// member to a chat account for notifications; zero means not linked.
type FamilyMember struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"uniqueIndex"`
	Role       string
	AvatarPath string
	TelegramID int64 `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
