package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/ticketstack/internal/enum"
	"github.com/customeros/ticketstack/internal/utils"
)

// TicketAttachment is one stored file linked to a ticket message.
type TicketAttachment struct {
	ID             string          `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TicketID       string          `gorm:"column:ticket_id;type:varchar(50);index;not null" json:"ticketId"`
	MessageID      string          `gorm:"column:message_id;type:varchar(50);index;not null" json:"messageId"`
	StoredName     string          `gorm:"column:stored_name;type:varchar(100);not null" json:"storedName"`
	OriginalName   string          `gorm:"column:original_name;type:varchar(500)" json:"originalName"`
	StoragePath    string          `gorm:"column:storage_path;type:varchar(1000);not null" json:"storagePath"`
	StorageBackend string          `gorm:"column:storage_backend;type:varchar(20)" json:"storageBackend"`
	Size           int64           `gorm:"column:size;not null;default:0" json:"size"`
	MimeType       string          `gorm:"column:mime_type;type:varchar(255)" json:"mimeType"`
	UploadedBy     string          `gorm:"column:uploaded_by;type:varchar(50)" json:"uploadedBy"`
	UploaderType   enum.SenderType `gorm:"column:uploader_type;type:varchar(20)" json:"uploaderType"`
	DownloadCount  int             `gorm:"column:download_count;not null;default:0" json:"downloadCount"`
	CreatedAt      time.Time       `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (TicketAttachment) TableName() string {
	return "ticket_attachments"
}

func (a *TicketAttachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("file", 12)
	}
	a.CreatedAt = utils.Now()
	return nil
}
