package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/ticketstack/interfaces"
	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/tracing"
)

const TicketNumberSequence = "ticket_number_seq"

type ticketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) interfaces.TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) GetByNumber(ctx context.Context, ticketNumber string) (*models.Ticket, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.GetByNumber")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("ticket.number", ticketNumber)

	var ticket models.Ticket
	err := r.db.WithContext(ctx).Where("ticket_number = ?", ticketNumber).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(ticket).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *ticketRepository) GetDefaults(ctx context.Context) (*models.TicketDefaults, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.GetDefaults")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagComponentPostgresRepository(span)

	var status models.TicketStatus
	if err := r.db.WithContext(ctx).Where("is_default = ?", true).First(&status).Error; err != nil {
		return nil, r.lookupErr(span, "status", err)
	}

	var priority models.TicketPriority
	if err := r.db.WithContext(ctx).Where("is_default = ?", true).First(&priority).Error; err != nil {
		return nil, r.lookupErr(span, "priority", err)
	}

	defaults := &models.TicketDefaults{StatusID: status.ID, PriorityID: priority.ID}

	// category is optional
	var category models.TicketCategory
	err := r.db.WithContext(ctx).Where("is_default = ?", true).First(&category).Error
	switch {
	case err == nil:
		defaults.CategoryID = &category.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		tracing.TraceErr(span, err)
		return nil, err
	}

	return defaults, nil
}

func (r *ticketRepository) lookupErr(span opentracing.Span, table string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = wrapf(tserrors.ErrTicketLookupMissing, "no default ticket %s", table)
	}
	tracing.TraceErr(span, err)
	return err
}

func (r *ticketRepository) NextTicketNumber(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.NextTicketNumber")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagComponentPostgresRepository(span)

	var next int64
	err := r.db.WithContext(ctx).Raw("SELECT nextval(?::regclass)", TicketNumberSequence).Scan(&next).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return next, nil
}
