package monitor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketstack/dto"
	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/config"
	"github.com/customeros/ticketstack/internal/enum"
	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/metrics"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/tracing"
	"github.com/customeros/ticketstack/internal/utils"
	"github.com/customeros/ticketstack/services/attachments"
	"github.com/customeros/ticketstack/services/email_processor"
	"github.com/customeros/ticketstack/services/imap"
	"github.com/customeros/ticketstack/services/notifications"
)

// Mailbox is the IMAP side of the monitor.
type Mailbox interface {
	EnsureConnection(ctx context.Context) error
	SearchUnseen(ctx context.Context) ([]uint32, error)
	FetchMessage(ctx context.Context, uid uint32) (*imap.FetchedMessage, error)
	MarkSeen(ctx context.Context, uid uint32) error
	WaitForNewMail(ctx context.Context) error
	Close()
}

type MessageProcessor interface {
	Process(ctx context.Context, msg *imap.FetchedMessage, policy attachments.Policy) (*email_processor.Outcome, error)
}

type TicketNotifier interface {
	TicketCreated(ctx context.Context, cfg *models.NotificationSettings, ticket *models.Ticket, requester *models.Requester) int
	TicketUpdated(ctx context.Context, cfg *models.NotificationSettings, ticket *models.Ticket, requester *models.Requester) int
}

type sleepFunc func(ctx context.Context, d time.Duration) error

// Monitor drains the unseen messages of one mailbox, on IDLE pushes while
// the server supports them and on a fixed interval otherwise.
type Monitor struct {
	log       logger.Logger
	cfg       config.WorkerConfig
	mailbox   Mailbox
	processor MessageProcessor
	notifier  TicketNotifier
	settings  interfaces.SettingRepository
	storage   interfaces.AttachmentStorage
	metrics   *metrics.Metrics
	sleep     sleepFunc

	mu        sync.Mutex
	state     State
	running   bool
	restarts  int
	lastDrain *dto.DrainResult
	lastError string
}

func NewMonitor(
	log logger.Logger,
	cfg config.WorkerConfig,
	mailbox Mailbox,
	processor MessageProcessor,
	notifier TicketNotifier,
	settings interfaces.SettingRepository,
	storage interfaces.AttachmentStorage,
	m *metrics.Metrics,
) *Monitor {
	if cfg.MaxIdleRetries <= 0 {
		cfg.MaxIdleRetries = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Monitor{
		log:       log,
		cfg:       cfg,
		mailbox:   mailbox,
		processor: processor,
		notifier:  notifier,
		settings:  settings,
		storage:   storage,
		metrics:   m,
		sleep:     sleepContext,
		state:     NewState(),
	}
}

// Status is a snapshot for the status endpoint.
func (m *Monitor) Status() dto.MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := dto.MonitorStatus{
		Mode:      m.state.Mode,
		Failures:  m.state.Failures,
		Running:   m.running,
		Restarts:  m.restarts,
		LastError: m.lastError,
	}
	if m.lastDrain != nil {
		drain := *m.lastDrain
		status.LastDrain = &drain
	}
	return status
}

func (m *Monitor) currentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.metrics.SetMode(s.Mode)
}

// RunWithRespawn keeps Run alive until ctx is cancelled. Errors and panics
// escaping Run restart the monitor after delay.
func (m *Monitor) RunWithRespawn(ctx context.Context, delay time.Duration) error {
	for {
		err := m.runGuarded(ctx)
		if ctx.Err() != nil {
			m.mailbox.Close()
			return ctx.Err()
		}
		if err == nil {
			err = errors.New("monitor returned without error")
		}

		m.mu.Lock()
		m.restarts++
		m.lastError = err.Error()
		m.mu.Unlock()

		m.log.Errorf("Monitor stopped: %v, restarting in %s", err, delay)
		m.mailbox.Close()
		if err = m.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (m *Monitor) runGuarded(ctx context.Context) (err error) {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("monitor panic: %v", r)
			m.log.Errorf("%v\n%s", err, debug.Stack())
		}
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	return m.Run(ctx)
}

// Run connects, drains what is already unseen and then waits for mail
// forever. It returns only when ctx is done or startup fails.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.startup(ctx); err != nil {
		return err
	}

	for ctx.Err() == nil {
		if m.currentState().Mode == enum.MonitorIdle {
			m.idleCycle(ctx)
		} else {
			m.pollCycle(ctx)
		}
	}
	return ctx.Err()
}

func (m *Monitor) startup(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Monitor.startup")
	defer span.Finish()
	tracing.SetDefaultWorkerSpanTags(ctx, span)

	m.metrics.SetMode(m.currentState().Mode)

	if err := m.mailbox.EnsureConnection(ctx); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "connect")
	}
	if err := m.storage.EnsureRoot(ctx); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "ensure uploads root")
	}
	if _, err := m.Drain(ctx); err != nil && ctx.Err() == nil {
		m.log.Warnf("Initial drain incomplete: %v", err)
	}
	return nil
}

// idleCycle waits for one push and drains. Failures back off exponentially
// until the retry budget is spent.
func (m *Monitor) idleCycle(ctx context.Context) {
	err := m.mailbox.EnsureConnection(ctx)
	if err == nil {
		err = m.mailbox.WaitForNewMail(ctx)
	}
	if err == nil {
		_, err = m.Drain(ctx)
	}
	if ctx.Err() != nil {
		return
	}

	state := m.currentState()
	switch {
	case err == nil:
		m.setState(state.OnIdleSuccess())

	case errors.Is(err, tserrors.ErrIdleUnsupported):
		m.log.Warn("IMAP server does not support IDLE, switching to polling")
		m.setState(state.OnIdleUnsupported())

	default:
		m.metrics.IdleFailures.Inc()
		state = state.OnIdleFailure(m.cfg.MaxIdleRetries)
		m.setState(state)
		if state.Mode == enum.MonitorPolling {
			m.log.Warnf("IDLE failed %d times in a row, switching to polling every %s: %v", state.Failures, m.cfg.PollInterval, err)
			return
		}
		backoff := IdleBackoff(m.cfg.IdleBackoffBase, m.cfg.IdleBackoffMax, state.Failures)
		m.log.Warnf("IDLE cycle failed (%d/%d), retrying in %s: %v", state.Failures, m.cfg.MaxIdleRetries, backoff, err)
		_ = m.sleep(ctx, backoff)
	}
}

func (m *Monitor) pollCycle(ctx context.Context) {
	if err := m.mailbox.EnsureConnection(ctx); err != nil {
		m.log.Warnf("Reconnect failed: %v", err)
	} else if _, err = m.Drain(ctx); err != nil && ctx.Err() == nil {
		m.log.Warnf("Drain failed: %v", err)
	}
	_ = m.sleep(ctx, m.cfg.PollInterval)
}

// Drain processes every unseen message once, in search order. Message
// level failures are counted and skipped; a lost connection ends the drain.
func (m *Monitor) Drain(ctx context.Context) (*dto.DrainResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Monitor.Drain")
	defer span.Finish()
	tracing.SetDefaultWorkerSpanTags(ctx, span)

	result := &dto.DrainResult{
		DrainID:   uuid.NewString(),
		StartedAt: utils.Now(),
	}
	span.SetTag("drain.id", result.DrainID)
	log := m.log.With("drain", result.DrainID)

	defer func() {
		result.FinishedAt = utils.Now()
		m.metrics.Drains.Inc()
		m.metrics.DrainDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
		m.mu.Lock()
		m.lastDrain = result
		m.mu.Unlock()
	}()

	uids, err := m.mailbox.SearchUnseen(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}
	result.Found = len(uids)
	if len(uids) == 0 {
		return result, nil
	}

	policy := attachments.LoadPolicy(ctx, m.settings, m.cfg.UploadsRoot, log)
	notify := notifications.LoadSettings(ctx, m.settings, log)

	for _, uid := range uids {
		if err = ctx.Err(); err != nil {
			return result, err
		}
		if err = m.handle(ctx, log, uid, policy, notify, result); err != nil && errors.Is(err, tserrors.ErrConnectionLost) {
			tracing.TraceErr(span, err)
			return result, err
		}
	}

	span.LogKV("processed", result.Processed, "skipped", result.Skipped, "failed", result.Failed)
	log.Infof("Drain finished: %d found, %d processed, %d skipped, %d failed",
		result.Found, result.Processed, result.Skipped, result.Failed)
	return result, nil
}

func (m *Monitor) handle(ctx context.Context, log logger.Logger, uid uint32, policy attachments.Policy, notify *models.NotificationSettings, result *dto.DrainResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic processing message: %v", r)
			result.Failed++
			m.metrics.MessagesFailed.Inc()
			log.Errorf("[%d] %v\n%s", uid, err, debug.Stack())
		}
	}()

	msg, err := m.mailbox.FetchMessage(ctx, uid)
	if err != nil {
		result.Failed++
		m.metrics.MessagesFailed.Inc()
		log.Errorf("[%d] fetch failed: %v", uid, err)
		return err
	}
	if msg == nil {
		result.Skipped++
		m.metrics.MessagesSkipped.Inc()
		log.Warnf("[%d] no source or envelope, skipping", uid)
		return nil
	}

	outcome, err := m.processor.Process(ctx, msg, policy)
	if err != nil {
		if errors.Is(err, tserrors.ErrMessageSkipped) || errors.Is(err, tserrors.ErrMalformedMessage) {
			result.Skipped++
			m.metrics.MessagesSkipped.Inc()
			log.Warnf("[%d] skipped: %v", uid, err)
			m.markSeen(ctx, log, uid)
			return nil
		}
		result.Failed++
		m.metrics.MessagesFailed.Inc()
		log.Errorf("[%d] processing failed, left unseen: %v", uid, err)
		return err
	}

	result.Processed++
	m.metrics.MessagesProcessed.Inc()
	if outcome.CreatedTicket {
		result.TicketsCreated++
	}

	m.markSeen(ctx, log, uid)

	if outcome.CreatedTicket {
		m.notifier.TicketCreated(ctx, notify, outcome.Ticket, outcome.Requester)
	} else {
		m.notifier.TicketUpdated(ctx, notify, outcome.Ticket, outcome.Requester)
	}
	return nil
}

func (m *Monitor) markSeen(ctx context.Context, log logger.Logger, uid uint32) {
	if err := m.mailbox.MarkSeen(ctx, uid); err != nil {
		log.Warnf("[%d] could not flag seen, message may be processed again: %v", uid, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
