package notifications

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/ticketstack/dto"
	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/enum"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/tracing"
)

// LoadSettings reads the notifications setting. A missing or malformed
// document disables notifications and returns nil.
func LoadSettings(ctx context.Context, settings interfaces.SettingRepository, log logger.Logger) *models.NotificationSettings {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Notifier.LoadSettings")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	var cfg models.NotificationSettings
	if err := settings.Get(ctx, models.SettingNotifications, &cfg); err != nil {
		log.Warnf("Notification settings unavailable, notifications disabled: %v", err)
		span.SetTag("notifications.enabled", false)
		return nil
	}
	return &cfg
}

type Notifier struct {
	log        logger.Logger
	dispatcher interfaces.NotificationDispatcher
}

func NewNotifier(log logger.Logger, dispatcher interfaces.NotificationDispatcher) *Notifier {
	return &Notifier{
		log:        log,
		dispatcher: dispatcher,
	}
}

// TicketCreated announces a ticket minted from inbound mail. Returns the
// number of requests handed to the dispatcher.
func (n *Notifier) TicketCreated(ctx context.Context, cfg *models.NotificationSettings, ticket *models.Ticket, requester *models.Requester) int {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Notifier.TicketCreated")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, ticket.ID)

	if cfg == nil || !cfg.TicketCreated.Enabled {
		span.LogKV("result", "disabled")
		return 0
	}

	var requests []dto.NotificationRequest
	if channels := channelsFor(cfg.TicketCreated); len(channels) > 0 {
		requests = append(requests, dto.NotificationRequest{
			Event:         enum.EventTicketCreated,
			Title:         fmt.Sprintf("New ticket %s", ticket.TicketNumber),
			Message:       fmt.Sprintf("%s opened ticket %s: %s", displayName(requester), ticket.TicketNumber, ticket.Subject),
			Recipient:     dto.NotificationRecipient{Type: enum.RecipientAllUsers},
			Channels:      channels,
			RelatedEntity: relatedTicket(ticket),
		})
	}

	if cfg.NotifyRequester && requester != nil && requester.Email != "" {
		requests = append(requests, dto.NotificationRequest{
			Event:   enum.EventTicketCreated,
			Title:   fmt.Sprintf("[%s] %s", ticket.TicketNumber, ticket.Subject),
			Message: fmt.Sprintf("We received your request. Your ticket number is %s; keep it in the subject of any reply.", ticket.TicketNumber),
			Recipient: dto.NotificationRecipient{
				Type:  enum.RecipientExternalEmail,
				Email: requester.Email,
			},
			Channels:      []enum.NotificationChannel{enum.NotificationEmail},
			RelatedEntity: relatedTicket(ticket),
		})
	}

	return n.enqueue(ctx, requests)
}

// TicketUpdated announces a new inbound message on an existing ticket. The
// assignee is notified when there is one, everybody otherwise.
func (n *Notifier) TicketUpdated(ctx context.Context, cfg *models.NotificationSettings, ticket *models.Ticket, requester *models.Requester) int {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Notifier.TicketUpdated")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, ticket.ID)

	if cfg == nil || !cfg.TicketUpdated.Enabled {
		span.LogKV("result", "disabled")
		return 0
	}
	channels := channelsFor(cfg.TicketUpdated)
	if len(channels) == 0 {
		return 0
	}

	recipient := dto.NotificationRecipient{Type: enum.RecipientAllUsers}
	if ticket.AssigneeID != nil && *ticket.AssigneeID != "" {
		recipient = dto.NotificationRecipient{Type: enum.RecipientSpecificUser, UserID: *ticket.AssigneeID}
	}

	return n.enqueue(ctx, []dto.NotificationRequest{{
		Event:         enum.EventTicketUpdated,
		Title:         fmt.Sprintf("New reply on %s", ticket.TicketNumber),
		Message:       fmt.Sprintf("%s replied to ticket %s: %s", displayName(requester), ticket.TicketNumber, ticket.Subject),
		Recipient:     recipient,
		Channels:      channels,
		RelatedEntity: relatedTicket(ticket),
	}})
}

func (n *Notifier) enqueue(ctx context.Context, requests []dto.NotificationRequest) int {
	sent := 0
	for _, request := range requests {
		if err := n.dispatcher.Enqueue(ctx, request); err != nil {
			n.log.Warnf("[%s] notification to %s not enqueued: %v", request.RelatedEntity.ID, request.Recipient.Type, err)
			continue
		}
		sent++
	}
	return sent
}

func channelsFor(toggle models.NotificationToggle) []enum.NotificationChannel {
	var channels []enum.NotificationChannel
	if toggle.Dashboard {
		channels = append(channels, enum.NotificationDashboard)
	}
	if toggle.Email {
		channels = append(channels, enum.NotificationEmail)
	}
	return channels
}

func relatedTicket(ticket *models.Ticket) dto.RelatedEntity {
	return dto.RelatedEntity{Type: enum.RelatedEntityTicket, ID: ticket.ID}
}

func displayName(requester *models.Requester) string {
	if requester == nil {
		return "Someone"
	}
	if requester.Name != nil && *requester.Name != "" {
		return *requester.Name
	}
	return requester.Email
}
