package notifications

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketstack/dto"
	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/tracing"
)

// QueueDispatcher hands notification requests to the message broker.
type QueueDispatcher struct {
	log       logger.Logger
	publisher interfaces.EventPublisher
}

func NewQueueDispatcher(log logger.Logger, publisher interfaces.EventPublisher) *QueueDispatcher {
	return &QueueDispatcher{
		log:       log,
		publisher: publisher,
	}
}

func (d *QueueDispatcher) Enqueue(ctx context.Context, request dto.NotificationRequest) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "QueueDispatcher.Enqueue")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, request.RelatedEntity.ID)
	span.LogKV("event", request.Event, "recipient", request.Recipient.Type)

	if err := d.publisher.Publish(ctx, request.Event.String(), request); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "enqueue %s notification for %s", request.Event, request.RelatedEntity.ID)
	}
	return nil
}

// LogDispatcher only logs requests. Used when no broker is configured.
type LogDispatcher struct {
	log logger.Logger
}

func NewLogDispatcher(log logger.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Enqueue(_ context.Context, request dto.NotificationRequest) error {
	d.log.Infof("[%s] notification %s to %s via %v: %s", request.RelatedEntity.ID, request.Event, request.Recipient.Type, request.Channels, request.Title)
	return nil
}
