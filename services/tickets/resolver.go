package tickets

import (
	"context"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/enum"
	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/tracing"
	"github.com/customeros/ticketstack/internal/utils"
)

const NoSubject = "(no subject)"

type Input struct {
	SenderAddress string
	SenderName    string
	Subject       string
}

type Resolution struct {
	Requester        *models.Requester
	Ticket           *models.Ticket
	CreatedRequester bool
	CreatedTicket    bool
}

// Resolver maps an inbound sender and subject to a requester and ticket.
type Resolver struct {
	log           logger.Logger
	numberWidth   int
	defaultPrefix string
}

func NewResolver(log logger.Logger, numberWidth int, defaultPrefix string) *Resolver {
	if numberWidth <= 0 {
		numberWidth = DefaultNumberWidth
	}
	return &Resolver{
		log:           log,
		numberWidth:   numberWidth,
		defaultPrefix: normalizePrefix(defaultPrefix),
	}
}

// NormalizeSender validates the address and lower-cases it. Requester
// lookups are case-insensitive, so existing mixed-case rows still match.
func NormalizeSender(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.Wrap(tserrors.ErrMessageSkipped, "empty sender")
	}
	validation := mailvalidate.ValidateEmailSyntax(address)
	if !validation.IsValid {
		return "", errors.Wrapf(tserrors.ErrMessageSkipped, "invalid sender %q", address)
	}
	clean := validation.CleanEmail
	if clean == "" {
		clean = address
	}
	return strings.ToLower(clean), nil
}

// Prefix returns the configured ticket number prefix.
func (r *Resolver) Prefix(ctx context.Context, store interfaces.TicketStore) string {
	var settings models.TicketSettings
	if err := store.Settings().Get(ctx, models.SettingTickets, &settings); err != nil {
		if !errors.Is(err, tserrors.ErrSettingNotFound) {
			r.log.Warnf("Ticket settings unreadable, using prefix %s: %v", r.defaultPrefix, err)
		}
		return r.defaultPrefix
	}
	if strings.TrimSpace(settings.Prefix) == "" {
		return r.defaultPrefix
	}
	return strings.TrimSpace(settings.Prefix)
}

// Resolve must run inside a transaction; tx is the transactional store.
func (r *Resolver) Resolve(ctx context.Context, tx interfaces.TicketStore, in Input) (*Resolution, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Resolver.Resolve")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	email, err := NormalizeSender(in.SenderAddress)
	if err != nil {
		return nil, err
	}

	res := &Resolution{}

	res.Requester, err = tx.Requesters().GetByEmail(ctx, email)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "find requester")
	}
	if res.Requester == nil {
		res.Requester = &models.Requester{
			Email: email,
			Name:  utils.StringPtrOrNil(strings.TrimSpace(in.SenderName)),
		}
		res.CreatedRequester, err = tx.Requesters().Create(ctx, res.Requester)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, errors.Wrap(err, "create requester")
		}
	}

	prefix := r.Prefix(ctx, tx)
	if number, ok := ExtractTicketNumber(in.Subject, prefix); ok {
		span.SetTag("ticket.matched", number)
		res.Ticket, err = tx.Tickets().GetByNumber(ctx, number)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, errors.Wrap(err, "find ticket")
		}
	}

	if res.Ticket == nil {
		res.Ticket, err = r.mint(ctx, tx, prefix, res.Requester, in.Subject)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		res.CreatedTicket = true
	}

	tracing.TagEntity(span, res.Ticket.ID)
	span.SetTag("ticket.created", res.CreatedTicket)
	span.SetTag("requester.created", res.CreatedRequester)
	return res, nil
}

// ResolveInTransaction wraps Resolve in its own transaction.
func (r *Resolver) ResolveInTransaction(ctx context.Context, store interfaces.TicketStore, in Input) (*Resolution, error) {
	var res *Resolution
	err := store.Transaction(ctx, func(tx interfaces.TicketStore) error {
		var err error
		res, err = r.Resolve(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Resolver) mint(ctx context.Context, tx interfaces.TicketStore, prefix string, requester *models.Requester, subject string) (*models.Ticket, error) {
	defaults, err := tx.Tickets().GetDefaults(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "ticket defaults")
	}

	next, err := tx.Tickets().NextTicketNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "next ticket number")
	}

	subject = utils.NormalizeEmailSubject(subject)
	if subject == "" {
		subject = NoSubject
	}

	ticket := &models.Ticket{
		TicketNumber:  FormatTicketNumber(prefix, r.numberWidth, next),
		RequesterID:   requester.ID,
		Subject:       subject,
		Channel:       enum.ChannelEmail,
		StatusID:      defaults.StatusID,
		PriorityID:    defaults.PriorityID,
		CategoryID:    defaults.CategoryID,
		TargetDate:    utils.Now(),
		ResponseCount: 0,
	}
	if err = tx.Tickets().Create(ctx, ticket); err != nil {
		return nil, errors.Wrap(err, "create ticket")
	}

	r.log.Infof("Minted ticket %s for %s", ticket.TicketNumber, requester.Email)
	return ticket, nil
}
