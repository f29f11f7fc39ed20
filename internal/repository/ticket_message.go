package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/tracing"
)

type ticketMessageRepository struct {
	db *gorm.DB
}

func NewTicketMessageRepository(db *gorm.DB) interfaces.TicketMessageRepository {
	return &ticketMessageRepository{db: db}
}

func (r *ticketMessageRepository) Create(ctx context.Context, message *models.TicketMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketMessageRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *ticketMessageRepository) CountByTicket(ctx context.Context, ticketID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketMessageRepository.CountByTicket")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.TicketMessage{}).Where("ticket_id = ?", ticketID).Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}
