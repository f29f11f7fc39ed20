package models

import "time"

const (
	SettingAttachments   = "attachments"
	SettingNotifications = "notifications"
	SettingImap          = "imap"
	SettingTickets       = "tickets"
)

// Setting is one runtime configuration document keyed by name.
type Setting struct {
	Key       string    `gorm:"column:key;type:varchar(100);primaryKey" json:"key"`
	Value     JSONValue `gorm:"column:value;type:jsonb" json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Setting) TableName() string {
	return "settings"
}

type AttachmentSettings struct {
	Enabled       bool     `json:"enabled"`
	MaxFileSizeMB float64  `json:"maxFileSizeMB"`
	AllowedTypes  []string `json:"allowedTypes"`
}

type NotificationToggle struct {
	Enabled   bool `json:"enabled"`
	Dashboard bool `json:"dashboard"`
	Email     bool `json:"email"`
}

type NotificationSettings struct {
	TicketCreated   NotificationToggle `json:"ticketCreated"`
	TicketUpdated   NotificationToggle `json:"ticketUpdated"`
	NotifyRequester bool               `json:"notifyRequester"`
}

type ImapSettings struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	TLS               bool   `json:"tls"`
	Username          string `json:"username"`
	PasswordEncrypted string `json:"password"`
	Mailbox           string `json:"mailbox,omitempty"`
}

type TicketSettings struct {
	Prefix string `json:"prefix"`
}
