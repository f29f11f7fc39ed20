package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/ticketstack/internal/enum"
	"github.com/customeros/ticketstack/internal/utils"
)

type Ticket struct {
	ID              string       `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TicketNumber    string       `gorm:"column:ticket_number;type:varchar(50);uniqueIndex;not null" json:"ticketNumber"`
	RequesterID     string       `gorm:"column:requester_id;type:varchar(50);index;not null" json:"requesterId"`
	AssigneeID      *string      `gorm:"column:assignee_id;type:varchar(50);index" json:"assigneeId"`
	Subject         string       `gorm:"column:subject;type:varchar(1000);not null" json:"subject"`
	Channel         enum.Channel `gorm:"column:channel;type:varchar(20);not null" json:"channel"`
	StatusID        string       `gorm:"column:status_id;type:varchar(50);not null" json:"statusId"`
	PriorityID      string       `gorm:"column:priority_id;type:varchar(50);not null" json:"priorityId"`
	CategoryID      *string      `gorm:"column:category_id;type:varchar(50)" json:"categoryId"`
	TargetDate      time.Time    `gorm:"column:target_date;type:timestamp" json:"targetDate"`
	FirstResponseAt *time.Time   `gorm:"column:first_response_at;type:timestamp" json:"firstResponseAt"`
	LastResponseAt  *time.Time   `gorm:"column:last_response_at;type:timestamp" json:"lastResponseAt"`
	ResponseCount   int          `gorm:"column:response_count;not null;default:0" json:"responseCount"`
	CreatedAt       time.Time    `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt       time.Time    `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Ticket) TableName() string {
	return "tickets"
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("tkt", 16)
	}
	t.CreatedAt = utils.Now()
	t.UpdatedAt = t.CreatedAt
	return nil
}

// Lookup rows. Exactly one row per table is expected to carry IsDefault.

type TicketStatus struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name      string `gorm:"column:name;type:varchar(100);not null" json:"name"`
	IsDefault bool   `gorm:"column:is_default;not null;default:false" json:"isDefault"`
}

func (TicketStatus) TableName() string {
	return "ticket_statuses"
}

type TicketPriority struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name      string `gorm:"column:name;type:varchar(100);not null" json:"name"`
	IsDefault bool   `gorm:"column:is_default;not null;default:false" json:"isDefault"`
}

func (TicketPriority) TableName() string {
	return "ticket_priorities"
}

type TicketCategory struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name      string `gorm:"column:name;type:varchar(100);not null" json:"name"`
	IsDefault bool   `gorm:"column:is_default;not null;default:false" json:"isDefault"`
}

func (TicketCategory) TableName() string {
	return "ticket_categories"
}

// TicketDefaults holds the lookup ids assigned to freshly minted tickets.
type TicketDefaults struct {
	StatusID   string
	PriorityID string
	CategoryID *string
}
