package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/models"
)

// Repositories is the gorm backed TicketStore.
type Repositories struct {
	db *gorm.DB

	RequesterRepository        interfaces.RequesterRepository
	TicketRepository           interfaces.TicketRepository
	TicketMessageRepository    interfaces.TicketMessageRepository
	TicketAttachmentRepository interfaces.TicketAttachmentRepository
	SettingRepository          interfaces.SettingRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:                         db,
		RequesterRepository:        NewRequesterRepository(db),
		TicketRepository:           NewTicketRepository(db),
		TicketMessageRepository:    NewTicketMessageRepository(db),
		TicketAttachmentRepository: NewTicketAttachmentRepository(db),
		SettingRepository:          NewSettingRepository(db),
	}
}

func (r *Repositories) Requesters() interfaces.RequesterRepository {
	return r.RequesterRepository
}

func (r *Repositories) Tickets() interfaces.TicketRepository {
	return r.TicketRepository
}

func (r *Repositories) Messages() interfaces.TicketMessageRepository {
	return r.TicketMessageRepository
}

func (r *Repositories) Attachments() interfaces.TicketAttachmentRepository {
	return r.TicketAttachmentRepository
}

func (r *Repositories) Settings() interfaces.SettingRepository {
	return r.SettingRepository
}

// Transaction runs fn against repositories bound to a single database transaction.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx interfaces.TicketStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(InitRepositories(tx))
	})
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Requester{},
		&models.TicketStatus{},
		&models.TicketPriority{},
		&models.TicketCategory{},
		&models.Ticket{},
		&models.TicketMessage{},
		&models.TicketAttachment{},
		&models.Setting{},
	)
	if err != nil {
		return err
	}

	return db.Exec(fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s START WITH 1 INCREMENT BY 1", TicketNumberSequence)).Error
}
