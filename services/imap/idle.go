package imap

import (
	"context"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/tracing"
)

// WaitForNewMail holds an IDLE command open until the server reports a
// mailbox change. The push payload is not trusted to identify new messages;
// callers search unseen afterwards.
func (s *Supervisor) WaitForNewMail(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Supervisor.WaitForNewMail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	session, err := s.current()
	if err != nil {
		return err
	}

	supported, err := session.Support("IDLE")
	if err != nil {
		tracing.TraceErr(span, err)
		return s.lost(err, "capability")
	}
	if !supported {
		return tserrors.ErrIdleUnsupported
	}

	updates := make(chan client.Update, 100)
	session.SetUpdates(updates)
	defer session.SetUpdates(nil)

	// mail that arrived during the last drain was reported outside IDLE
	if s.mailboxChanged(session) {
		span.SetTag("new_mail", true)
		span.LogKV("wakeup", "mailbox count changed before idle")
		return nil
	}

	stop := make(chan struct{})
	idleDone := make(chan error, 1)
	session.SetTimeout(0)
	go func() {
		idleDone <- session.Idle(stop, &client.IdleOptions{
			LogoutTimeout: DEFAULT_IMAP_LOGOUT,
			PollInterval:  DEFAULT_IDLE_POLL,
		})
	}()

	for {
		select {
		case update := <-updates:
			if _, ok := update.(*client.MailboxUpdate); !ok {
				continue
			}
			close(stop)
			if err = <-idleDone; err != nil {
				tracing.TraceErr(span, err)
				return s.lost(err, "idle stop")
			}
			span.SetTag("new_mail", true)
			return nil

		case <-ctx.Done():
			close(stop)
			<-idleDone
			return ctx.Err()

		case err = <-idleDone:
			if err == nil {
				err = errors.New("idle ended without a stop request")
			}
			tracing.TraceErr(span, err)
			return s.lost(err, "idle")
		}
	}
}

// Verify dials a fresh session, opens the mailbox and logs out, failing
// fast when timeout elapses first. The supervised session is untouched.
func (s *Supervisor) Verify(ctx context.Context, timeout time.Duration) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Supervisor.Verify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- s.verify(ctx)
	}()

	select {
	case err := <-result:
		if err != nil {
			tracing.TraceErr(span, err)
		}
		return err
	case <-ctx.Done():
		err := errors.Wrapf(tserrors.ErrConnectionTimeout, "verify did not finish within %s", timeout)
		tracing.TraceErr(span, err)
		return err
	}
}

func (s *Supervisor) verify(ctx context.Context) error {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return errors.Wrap(err, "load imap config")
	}
	mailbox := s.mailbox
	if cfg.Mailbox != "" {
		mailbox = cfg.Mailbox
	}

	session, err := s.dial(ctx, *cfg)
	if err != nil {
		return err
	}
	defer session.Logout()

	if _, err = session.Select(mailbox, true); err != nil {
		return errors.Wrapf(err, "select %s", mailbox)
	}
	return nil
}
