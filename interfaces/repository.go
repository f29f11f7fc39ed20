package interfaces

import (
	"context"

	"github.com/customeros/ticketstack/internal/models"
)

type RequesterRepository interface {
	// GetByEmail returns nil, nil when no requester has the address.
	GetByEmail(ctx context.Context, email string) (*models.Requester, error)
	// Create inserts the requester. When a concurrent insert won the unique
	// email race the existing row is loaded into requester and created is false.
	Create(ctx context.Context, requester *models.Requester) (created bool, err error)
}

type TicketRepository interface {
	GetByNumber(ctx context.Context, ticketNumber string) (*models.Ticket, error)
	Create(ctx context.Context, ticket *models.Ticket) error
	GetDefaults(ctx context.Context) (*models.TicketDefaults, error)
	// NextTicketNumber draws from the shared ticket number sequence.
	NextTicketNumber(ctx context.Context) (int64, error)
}

type TicketMessageRepository interface {
	Create(ctx context.Context, message *models.TicketMessage) error
	CountByTicket(ctx context.Context, ticketID string) (int64, error)
}

type TicketAttachmentRepository interface {
	Create(ctx context.Context, attachment *models.TicketAttachment) error
}

type SettingRepository interface {
	// Get unmarshals the setting into out, ErrSettingNotFound when absent.
	Get(ctx context.Context, key string, out interface{}) error
	Save(ctx context.Context, key string, value interface{}) error
}

// TicketStore groups the repositories the ingestion pipeline writes through.
type TicketStore interface {
	Requesters() RequesterRepository
	Tickets() TicketRepository
	Messages() TicketMessageRepository
	Attachments() TicketAttachmentRepository
	Settings() SettingRepository
	Transaction(ctx context.Context, fn func(tx TicketStore) error) error
}
