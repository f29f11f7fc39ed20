package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/ticketstack/internal/enum"
	"github.com/customeros/ticketstack/internal/utils"
)

type TicketMessage struct {
	ID              string          `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TicketID        string          `gorm:"column:ticket_id;type:varchar(50);index;not null" json:"ticketId"`
	SenderType      enum.SenderType `gorm:"column:sender_type;type:varchar(20);not null" json:"senderType"`
	RequesterID     *string         `gorm:"column:requester_id;type:varchar(50);index" json:"requesterId"`
	SenderName      *string         `gorm:"column:sender_name;type:varchar(255)" json:"senderName"`
	SenderEmail     string          `gorm:"column:sender_email;type:varchar(255);not null" json:"senderEmail"`
	Message         string          `gorm:"column:message;type:text;not null" json:"message"`
	IsPrivate       bool            `gorm:"column:is_private;not null;default:false" json:"isPrivate"`
	Channel         enum.Channel    `gorm:"column:channel;type:varchar(20);not null" json:"channel"`
	IsFirstResponse bool            `gorm:"column:is_first_response;not null;default:false" json:"isFirstResponse"`
	HasAttachments  bool            `gorm:"column:has_attachments;not null;default:false" json:"hasAttachments"`
	ImapUID         uint32          `gorm:"column:imap_uid" json:"imapUid"`
	MessageID       string          `gorm:"column:message_id;type:varchar(500);index" json:"messageId"`
	InReplyTo       string          `gorm:"column:in_reply_to;type:varchar(500)" json:"inReplyTo"`
	References      pq.StringArray  `gorm:"column:references;type:text[]" json:"references"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (TicketMessage) TableName() string {
	return "ticket_messages"
}

func (m *TicketMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("msg", 16)
	}
	m.CreatedAt = utils.Now()
	return nil
}
