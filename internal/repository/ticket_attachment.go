package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/tracing"
)

type ticketAttachmentRepository struct {
	db *gorm.DB
}

func NewTicketAttachmentRepository(db *gorm.DB) interfaces.TicketAttachmentRepository {
	return &ticketAttachmentRepository{db: db}
}

// Create adds a new attachment row. The file must already be stored.
func (r *ticketAttachmentRepository) Create(ctx context.Context, attachment *models.TicketAttachment) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketAttachmentRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(attachment).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
