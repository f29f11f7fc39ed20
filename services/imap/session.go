package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketstack/internal/tracing"
)

const (
	DEFAULT_DIAL_TIMEOUT    = 30 * time.Second
	DEFAULT_LOGIN_TIMEOUT   = 30 * time.Second
	DEFAULT_IMAP_LOGOUT     = 25 * time.Minute
	DEFAULT_IDLE_POLL       = 20 * time.Minute
	DEFAULT_LOGOUT_DEADLINE = 5 * time.Second
)

// Session is the subset of the go-imap client the supervisor drives.
type Session interface {
	State() imap.ConnState
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Mailbox() *imap.MailboxStatus
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Idle(stop <-chan struct{}, opts *client.IdleOptions) error
	Support(capability string) (bool, error)
	Noop() error
	Logout() error
	SetUpdates(ch chan<- client.Update)
	SetTimeout(timeout time.Duration)
}

// ConnectionConfig holds decrypted IMAP credentials. It is never persisted.
type ConnectionConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	Mailbox  string
}

func (c ConnectionConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Dialer opens an authenticated session.
type Dialer func(ctx context.Context, cfg ConnectionConfig) (Session, error)

type goImapSession struct {
	*client.Client
}

func (s *goImapSession) SetUpdates(ch chan<- client.Update) {
	s.Client.Updates = ch
}

func (s *goImapSession) SetTimeout(timeout time.Duration) {
	s.Client.Timeout = timeout
}

// DialAndLogin connects to the server and authenticates.
func DialAndLogin(ctx context.Context, cfg ConnectionConfig) (Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Supervisor.DialAndLogin")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("server", cfg.Host)
	span.SetTag("port", cfg.Port)
	span.SetTag("tls", cfg.TLS)

	dialer := &net.Dialer{
		Timeout:   DEFAULT_DIAL_TIMEOUT,
		KeepAlive: 30 * time.Second,
	}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	var c *client.Client
	var err error
	if cfg.TLS {
		c, err = client.DialWithDialerTLS(dialer, cfg.Address(), &tls.Config{ServerName: cfg.Host})
	} else {
		c, err = client.DialWithDialer(dialer, cfg.Address())
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to connect to %s", cfg.Address())
	}

	c.Timeout = DEFAULT_LOGIN_TIMEOUT
	if err = c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to login as %s", cfg.Username)
	}
	// no timeout for normal operations, IDLE holds the connection open
	c.Timeout = 0

	return &goImapSession{Client: c}, nil
}
