package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/tracing"
)

type requesterRepository struct {
	db *gorm.DB
}

func NewRequesterRepository(db *gorm.DB) interfaces.RequesterRepository {
	return &requesterRepository{db: db}
}

func (r *requesterRepository) GetByEmail(ctx context.Context, email string) (*models.Requester, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "requesterRepository.GetByEmail")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagComponentPostgresRepository(span)

	var requester models.Requester
	// rows written by the web app keep the case the agent typed
	err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&requester).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &requester, nil
}

func (r *requesterRepository) Create(ctx context.Context, requester *models.Requester) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "requesterRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(requester)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	existing, err := r.GetByEmail(ctx, requester.Email)
	if err != nil {
		return false, err
	}
	if existing == nil {
		err = errors.New("requester vanished after insert conflict")
		tracing.TraceErr(span, err)
		return false, err
	}
	*requester = *existing
	return false, nil
}
