package imap

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/tracing"
)

// Envelope is the IMAP reported metadata of a message.
type Envelope struct {
	FromName    string
	FromAddress string
	Subject     string
	Date        time.Time
	MessageID   string
	InReplyTo   string
}

type FetchedMessage struct {
	UID      uint32
	Envelope Envelope
	Source   []byte
}

// Supervisor owns the IMAP session used by the worker. It is not safe for
// concurrent use from two call sites; the mutex only guards Close racing a call.
type Supervisor struct {
	log        logger.Logger
	dial       Dialer
	loadConfig ConfigLoader
	mailbox    string

	mu      sync.Mutex
	session Session
	// knownCount is the mailbox size seen by the last unseen search. EXISTS
	// responses arriving outside IDLE only move the client's counter.
	knownCount uint32
	countKnown bool
}

func NewSupervisor(log logger.Logger, dial Dialer, loadConfig ConfigLoader, mailbox string) *Supervisor {
	if dial == nil {
		dial = DialAndLogin
	}
	return &Supervisor{
		log:        log,
		dial:       dial,
		loadConfig: loadConfig,
		mailbox:    mailbox,
	}
}

func (s *Supervisor) Mailbox() string {
	return s.mailbox
}

// EnsureConnection is a no-op while the session has the mailbox selected,
// otherwise it reconnects and reopens the mailbox.
func (s *Supervisor) EnsureConnection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil && s.session.State() == imap.SelectedState {
		return nil
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "Supervisor.EnsureConnection")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	s.dropLocked()

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "load imap config")
	}
	if cfg.Mailbox != "" {
		s.mailbox = cfg.Mailbox
	}
	span.SetTag("mailbox", s.mailbox)

	session, err := s.dial(ctx, *cfg)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(tserrors.ErrConnectionLost, err.Error())
	}

	if _, err = session.Select(s.mailbox, false); err != nil {
		_ = session.Logout()
		tracing.TraceErr(span, err)
		return errors.Wrapf(tserrors.ErrConnectionLost, "select %s: %s", s.mailbox, err.Error())
	}

	s.session = session
	s.log.Infof("[%s] IMAP session open on %s", s.mailbox, cfg.Address())
	return nil
}

// SearchUnseen returns the UIDs not flagged seen, in the order the server
// reports them.
func (s *Supervisor) SearchUnseen(ctx context.Context) ([]uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Supervisor.SearchUnseen")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	session, err := s.current()
	if err != nil {
		return nil, err
	}

	// read before searching so mail landing during the search is not counted as known
	count, hasCount := messageCount(session)

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := session.UidSearch(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, s.lost(err, "search unseen")
	}

	s.mu.Lock()
	s.knownCount, s.countKnown = count, hasCount
	s.mu.Unlock()

	span.SetTag("unseen.count", len(uids))
	return uids, nil
}

// FetchMessage returns nil, nil when the server has no source or no
// envelope for uid so the caller can skip it.
func (s *Supervisor) FetchMessage(ctx context.Context, uid uint32) (*FetchedMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Supervisor.FetchMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagImapUID(span, uid)

	session, err := s.current()
	if err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- session.UidFetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		if msg == nil {
			msg = m
		}
	}
	if err = <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, s.lost(err, "fetch uid")
	}

	if msg == nil || msg.Envelope == nil {
		span.SetTag("skipped", true)
		return nil, nil
	}
	body := msg.GetBody(&imap.BodySectionName{})
	if body == nil {
		span.SetTag("skipped", true)
		return nil, nil
	}

	source, err := io.ReadAll(body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, s.lost(err, "read message body")
	}
	if len(bytes.TrimSpace(source)) == 0 {
		span.SetTag("skipped", true)
		return nil, nil
	}

	return &FetchedMessage{
		UID:      uid,
		Envelope: envelopeFrom(msg.Envelope),
		Source:   source,
	}, nil
}

func envelopeFrom(env *imap.Envelope) Envelope {
	out := Envelope{
		Subject:   env.Subject,
		Date:      env.Date,
		MessageID: env.MessageId,
		InReplyTo: env.InReplyTo,
	}
	for _, addr := range env.From {
		if addr == nil || addr.MailboxName == "" || addr.HostName == "" {
			continue
		}
		out.FromName = addr.PersonalName
		out.FromAddress = addr.Address()
		break
	}
	return out
}

// MarkSeen flags uid seen. Callers log the error and carry on.
func (s *Supervisor) MarkSeen(ctx context.Context, uid uint32) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Supervisor.MarkSeen")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagImapUID(span, uid)

	session, err := s.current()
	if err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err = session.UidStore(seqSet, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		tracing.TraceErr(span, err)
		return s.lost(err, "flag seen")
	}
	return nil
}

// Close logs out, bounded by a short deadline.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
}

func (s *Supervisor) current() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, errors.Wrap(tserrors.ErrConnectionLost, "no open session")
	}
	return s.session, nil
}

// lost drops the session so the next EnsureConnection reconnects.
func (s *Supervisor) lost(err error, op string) error {
	s.mu.Lock()
	s.dropLocked()
	s.mu.Unlock()
	return errors.Wrapf(tserrors.ErrConnectionLost, "%s: %s", op, err.Error())
}

// mailboxChanged reports whether the selected mailbox size moved since the
// last unseen search.
func (s *Supervisor) mailboxChanged(session Session) bool {
	count, ok := messageCount(session)
	s.mu.Lock()
	defer s.mu.Unlock()
	return ok && s.countKnown && count != s.knownCount
}

func messageCount(session Session) (uint32, bool) {
	mbox := session.Mailbox()
	if mbox == nil {
		return 0, false
	}
	return mbox.Messages, true
}

func (s *Supervisor) dropLocked() {
	s.countKnown = false
	if s.session == nil {
		return
	}
	session := s.session
	s.session = nil

	session.SetTimeout(DEFAULT_LOGOUT_DEADLINE)
	done := make(chan error, 1)
	go func() {
		done <- session.Logout()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Debugf("[%s] logout: %v", s.mailbox, err)
		}
	case <-time.After(DEFAULT_LOGOUT_DEADLINE):
		s.log.Warnf("[%s] logout timed out", s.mailbox)
	}
}
