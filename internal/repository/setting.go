package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/ticketstack/interfaces"
	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/tracing"
	"github.com/customeros/ticketstack/internal/utils"
)

type settingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) interfaces.SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) Get(ctx context.Context, key string, out interface{}) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingRepository.Get")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("setting.key", key)

	var setting models.Setting
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wrapf(tserrors.ErrSettingNotFound, "setting %s", key)
		}
		tracing.TraceErr(span, err)
		return err
	}
	if len(setting.Value) == 0 {
		return wrapf(tserrors.ErrSettingNotFound, "setting %s is empty", key)
	}

	if err := json.Unmarshal(setting.Value, out); err != nil {
		tracing.TraceErr(span, err)
		return wrapf(err, "setting %s", key)
	}
	return nil
}

func (r *settingRepository) Save(ctx context.Context, key string, value interface{}) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingRepository.Save")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("setting.key", key)

	raw, err := json.Marshal(value)
	if err != nil {
		return wrapf(err, "marshal setting %s", key)
	}

	setting := models.Setting{Key: key, Value: models.JSONValue(raw), UpdatedAt: utils.Now()}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&setting).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
