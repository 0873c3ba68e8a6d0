package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EmailCapture records the discount code issued to a newsletter signup.
type EmailCapture struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Email        string    `gorm:"column:email;not null;uniqueIndex:email_captures_email_key"`
	Name         *string   `gorm:"column:name"`
	DiscountCode string    `gorm:"column:discount_code;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (EmailCapture) TableName() string { return "email_captures" }

func (e *EmailCapture) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
