package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/ticketstack/internal/utils"
)

// Requester is an external party identified by email address.
type Requester struct {
	ID        string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name      *string   `gorm:"column:name;type:varchar(255)" json:"name"`
	Email     string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Requester) TableName() string {
	return "requesters"
}

func (r *Requester) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("req", 16)
	}
	r.CreatedAt = utils.Now()
	r.UpdatedAt = r.CreatedAt
	return nil
}
