package email_processor

import (
	"bytes"
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/enum"
	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/metrics"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/tracing"
	"github.com/customeros/ticketstack/internal/utils"
	"github.com/customeros/ticketstack/services/attachments"
	"github.com/customeros/ticketstack/services/email_filter"
	"github.com/customeros/ticketstack/services/imap"
	"github.com/customeros/ticketstack/services/mime"
	"github.com/customeros/ticketstack/services/sanitizer"
	"github.com/customeros/ticketstack/services/tickets"
)

// Outcome is what one persisted inbound message produced.
type Outcome struct {
	UID              uint32
	Requester        *models.Requester
	Ticket           *models.Ticket
	Message          *models.TicketMessage
	Attachments      []*models.TicketAttachment
	CreatedTicket    bool
	CreatedRequester bool
	Rejected         int
}

// Processor turns one fetched IMAP message into ticket rows.
type Processor struct {
	log       logger.Logger
	store     interfaces.TicketStore
	storage   interfaces.AttachmentStorage
	decoder   *mime.Decoder
	sanitizer *sanitizer.Sanitizer
	resolver  *tickets.Resolver
	metrics   *metrics.Metrics
}

func NewProcessor(
	log logger.Logger,
	store interfaces.TicketStore,
	storage interfaces.AttachmentStorage,
	resolver *tickets.Resolver,
	m *metrics.Metrics,
) *Processor {
	return &Processor{
		log:       log,
		store:     store,
		storage:   storage,
		decoder:   mime.NewDecoder(log),
		sanitizer: sanitizer.NewSanitizer(),
		resolver:  resolver,
		metrics:   m,
	}
}

// Process decodes, sanitizes and persists msg. Attachment files are written
// inside the database transaction and removed again when it rolls back.
func (p *Processor) Process(ctx context.Context, msg *imap.FetchedMessage, policy attachments.Policy) (*Outcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.Process")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagImapUID(span, msg.UID)

	decoded, err := p.decoder.Decode(ctx, bytes.NewReader(msg.Source), p.attachmentFilter(msg.UID, policy))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	senderAddress := firstNonEmpty(msg.Envelope.FromAddress, decoded.FromAddress)
	senderName := firstNonEmpty(msg.Envelope.FromName, decoded.FromName)
	subject := firstNonEmpty(msg.Envelope.Subject, decoded.Subject)
	messageID := firstNonEmpty(utils.NormalizeMessageID(msg.Envelope.MessageID), decoded.MessageID)

	if automated, reason := email_filter.IsAutomated(decoded.Header, senderAddress, subject); automated {
		p.log.Infof("UID %d skipped, automated message: %s", msg.UID, reason)
		span.LogKV("skipped.reason", reason)
		return nil, errors.Wrap(tserrors.ErrMessageSkipped, reason)
	}

	body := p.sanitizer.Sanitize(decoded.HTML, decoded.Text)

	outcome := &Outcome{UID: msg.UID, Rejected: decoded.Rejected}
	var written []string

	err = p.store.Transaction(ctx, func(tx interfaces.TicketStore) error {
		res, err := p.resolver.Resolve(ctx, tx, tickets.Input{
			SenderAddress: senderAddress,
			SenderName:    senderName,
			Subject:       subject,
		})
		if err != nil {
			return err
		}

		previous, err := tx.Messages().CountByTicket(ctx, res.Ticket.ID)
		if err != nil {
			return errors.Wrap(err, "count ticket messages")
		}

		message := &models.TicketMessage{
			TicketID:        res.Ticket.ID,
			SenderType:      enum.SenderRequester,
			RequesterID:     utils.StringPtr(res.Requester.ID),
			SenderName:      utils.StringPtrOrNil(strings.TrimSpace(senderName)),
			SenderEmail:     res.Requester.Email,
			Message:         body,
			IsPrivate:       false,
			Channel:         enum.ChannelEmail,
			IsFirstResponse: previous == 0,
			HasAttachments:  len(decoded.Attachments) > 0,
			ImapUID:         msg.UID,
			MessageID:       messageID,
			InReplyTo:       firstNonEmpty(utils.NormalizeMessageID(msg.Envelope.InReplyTo), decoded.InReplyTo),
			References:      decoded.References,
		}
		if err = tx.Messages().Create(ctx, message); err != nil {
			return errors.Wrap(err, "create ticket message")
		}

		for _, att := range decoded.Attachments {
			size, err := p.storage.Write(ctx, att.StoragePath, att.Content(), att.ContentType)
			if err != nil {
				return errors.Wrapf(err, "store attachment %s", att.FileName)
			}
			written = append(written, att.StoragePath)

			row := &models.TicketAttachment{
				TicketID:       res.Ticket.ID,
				MessageID:      message.ID,
				StoredName:     att.StoredName,
				OriginalName:   att.FileName,
				StoragePath:    att.StoragePath,
				StorageBackend: p.storage.Backend(),
				Size:           size,
				MimeType:       att.ContentType,
				UploadedBy:     res.Requester.ID,
				UploaderType:   enum.SenderRequester,
			}
			if err = tx.Attachments().Create(ctx, row); err != nil {
				return errors.Wrap(err, "create ticket attachment")
			}
			outcome.Attachments = append(outcome.Attachments, row)
		}

		outcome.Requester = res.Requester
		outcome.Ticket = res.Ticket
		outcome.Message = message
		outcome.CreatedTicket = res.CreatedTicket
		outcome.CreatedRequester = res.CreatedRequester
		return nil
	})
	if err != nil {
		p.removeFiles(ctx, msg.UID, written)
		tracing.TraceErr(span, err)
		return nil, err
	}

	p.metrics.AttachmentsAccepted.Add(float64(len(outcome.Attachments)))
	if outcome.CreatedTicket {
		p.metrics.TicketsCreated.Inc()
	}

	tracing.TagEntity(span, outcome.Ticket.ID)
	span.SetTag("ticket.created", outcome.CreatedTicket)
	p.log.Infof("[%d] stored as message %s on ticket %s (%d attachments, %d rejected)",
		msg.UID, outcome.Message.ID, outcome.Ticket.TicketNumber, len(outcome.Attachments), outcome.Rejected)
	return outcome, nil
}

func (p *Processor) attachmentFilter(uid uint32, policy attachments.Policy) mime.AttachmentFilter {
	return func(ctx context.Context, att *mime.Attachment) bool {
		decision := policy.Accept(attachments.Candidate{
			FileName:    att.FileName,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
		if !decision.Accepted {
			p.metrics.AttachmentsRejected.WithLabelValues(string(decision.Reason)).Inc()
			p.log.Infof("[%d] attachment %q rejected: %s", uid, att.FileName, decision.Reason)
			return false
		}
		att.StoredName = decision.StoredName
		att.StoragePath = decision.StoragePath
		return true
	}
}

func (p *Processor) removeFiles(ctx context.Context, uid uint32, paths []string) {
	for _, path := range paths {
		if err := p.storage.Delete(ctx, path); err != nil {
			p.log.Warnf("[%d] orphaned attachment %s not removed: %v", uid, path, err)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
