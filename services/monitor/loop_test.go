package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/ticketstack/internal/config"
	"github.com/customeros/ticketstack/internal/enum"
	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/metrics"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/testutil"
	"github.com/customeros/ticketstack/services/attachments"
	"github.com/customeros/ticketstack/services/email_processor"
	"github.com/customeros/ticketstack/services/imap"
	"github.com/customeros/ticketstack/services/storage"
)

var errLost = errors.Wrap(tserrors.ErrConnectionLost, "idle: connection reset")

type fakeMailbox struct {
	mu sync.Mutex

	cancel       context.CancelFunc
	ensureErrs   []error
	ensurePanics int
	unseen       [][]uint32
	messages     map[uint32]*imap.FetchedMessage
	fetchErrs    map[uint32]error
	waitErrs     []error
	seenErr      error

	ensureCalls int
	waitCalls   int
	fetched     []uint32
	seen        []uint32
	closed      int
}

func (f *fakeMailbox) EnsureConnection(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.ensurePanics > 0 {
		f.ensurePanics--
		panic("session state corrupted")
	}
	if len(f.ensureErrs) == 0 {
		return nil
	}
	err := f.ensureErrs[0]
	f.ensureErrs = f.ensureErrs[1:]
	return err
}

func (f *fakeMailbox) SearchUnseen(context.Context) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.unseen) == 0 {
		return nil, nil
	}
	uids := f.unseen[0]
	f.unseen = f.unseen[1:]
	return uids, nil
}

func (f *fakeMailbox) FetchMessage(_ context.Context, uid uint32) (*imap.FetchedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, uid)
	if err := f.fetchErrs[uid]; err != nil {
		return nil, err
	}
	return f.messages[uid], nil
}

func (f *fakeMailbox) MarkSeen(_ context.Context, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seenErr != nil {
		return f.seenErr
	}
	f.seen = append(f.seen, uid)
	return nil
}

// WaitForNewMail replays waitErrs, then cancels the run.
func (f *fakeMailbox) WaitForNewMail(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitCalls++
	if len(f.waitErrs) == 0 {
		f.cancel()
		return context.Canceled
	}
	err := f.waitErrs[0]
	f.waitErrs = f.waitErrs[1:]
	return err
}

func (f *fakeMailbox) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

type fakeProcessor struct {
	outcomes  map[uint32]*email_processor.Outcome
	errs      map[uint32]error
	panics    map[uint32]bool
	processed []uint32

	// cancelAt stops the run while uid cancelAt is being persisted
	cancelAt uint32
	cancel   context.CancelFunc
}

func (p *fakeProcessor) Process(_ context.Context, msg *imap.FetchedMessage, _ attachments.Policy) (*email_processor.Outcome, error) {
	p.processed = append(p.processed, msg.UID)
	if p.panics[msg.UID] {
		panic("nil body")
	}
	if p.cancel != nil && p.cancelAt == msg.UID {
		p.cancel()
		return nil, errors.Wrap(context.Canceled, "commit transaction")
	}
	if err := p.errs[msg.UID]; err != nil {
		return nil, err
	}
	return p.outcomes[msg.UID], nil
}

type fakeNotifier struct {
	created []string
	updated []string
	configs []*models.NotificationSettings
}

func (n *fakeNotifier) TicketCreated(_ context.Context, cfg *models.NotificationSettings, ticket *models.Ticket, _ *models.Requester) int {
	n.created = append(n.created, ticket.ID)
	n.configs = append(n.configs, cfg)
	return 1
}

func (n *fakeNotifier) TicketUpdated(_ context.Context, cfg *models.NotificationSettings, ticket *models.Ticket, _ *models.Requester) int {
	n.updated = append(n.updated, ticket.ID)
	n.configs = append(n.configs, cfg)
	return 1
}

type sleeper struct {
	mu        sync.Mutex
	durations []time.Duration
	limit     int
	cancel    context.CancelFunc
}

func (s *sleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.durations = append(s.durations, d)
	if s.limit > 0 && len(s.durations) >= s.limit {
		s.cancel()
	}
	s.mu.Unlock()
	return ctx.Err()
}

type harness struct {
	ctx       context.Context
	mailbox   *fakeMailbox
	processor *fakeProcessor
	notifier  *fakeNotifier
	sleeper   *sleeper
	store     *testutil.MemoryStore
	metrics   *metrics.Metrics
	monitor   *Monitor
}

func newHarness(t *testing.T) *harness {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		ctx: ctx,
		mailbox: &fakeMailbox{
			cancel:    cancel,
			messages:  map[uint32]*imap.FetchedMessage{},
			fetchErrs: map[uint32]error{},
		},
		processor: &fakeProcessor{
			outcomes: map[uint32]*email_processor.Outcome{},
			errs:     map[uint32]error{},
			panics:   map[uint32]bool{},
		},
		notifier: &fakeNotifier{},
		sleeper:  &sleeper{cancel: cancel},
		store:    testutil.NewMemoryStore(),
		metrics:  metrics.NewMetrics(),
	}

	cfg := config.WorkerConfig{
		Mailbox:         "INBOX",
		UploadsRoot:     t.TempDir(),
		MaxIdleRetries:  3,
		IdleBackoffBase: time.Second,
		IdleBackoffMax:  time.Minute,
		PollInterval:    30 * time.Second,
	}
	h.monitor = NewMonitor(logger.NewNopLogger(), cfg, h.mailbox, h.processor, h.notifier,
		h.store.Settings(), storage.NewFilesystemStore(cfg.UploadsRoot), h.metrics)
	h.monitor.sleep = h.sleeper.sleep
	return h
}

func (h *harness) addMessage(uid uint32, ticketID string, created bool) {
	h.mailbox.messages[uid] = &imap.FetchedMessage{UID: uid, Source: []byte("x")}
	h.processor.outcomes[uid] = &email_processor.Outcome{
		UID:           uid,
		Ticket:        &models.Ticket{ID: ticketID},
		Requester:     &models.Requester{ID: "req_1", Email: "ann@example.com"},
		CreatedTicket: created,
	}
}

func TestDrain_CancelledMessageStaysUnseen(t *testing.T) {
	h := newHarness(t)
	h.mailbox.unseen = [][]uint32{{1, 2}}
	h.addMessage(1, "tkt_1", true)
	h.addMessage(2, "tkt_2", true)
	h.processor.cancelAt = 1
	h.processor.cancel = h.mailbox.cancel

	_, err := h.monitor.Drain(h.ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []uint32{1}, h.processor.processed)
	assert.Empty(t, h.mailbox.seen)
	assert.Empty(t, h.notifier.created)
}

func TestDrain_ContinuesPastBadMessages(t *testing.T) {
	h := newHarness(t)
	h.mailbox.unseen = [][]uint32{{1, 2, 3, 4, 5}}
	h.addMessage(1, "tkt_1", true)
	// 2 has no source
	h.addMessage(3, "tkt_3", true)
	h.processor.errs[3] = errors.New("insert failed")
	h.addMessage(4, "tkt_4", true)
	h.processor.errs[4] = errors.Wrap(tserrors.ErrMessageSkipped, "empty sender")
	h.addMessage(5, "tkt_1", false)

	result, err := h.monitor.Drain(h.ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Found)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.TicketsCreated)
	assert.NotEmpty(t, result.DrainID)

	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, h.mailbox.fetched)
	assert.Equal(t, []uint32{1, 3, 4, 5}, h.processor.processed)
	assert.Equal(t, []uint32{1, 4, 5}, h.mailbox.seen)
	assert.Equal(t, []string{"tkt_1"}, h.notifier.created)
	assert.Equal(t, []string{"tkt_1"}, h.notifier.updated)

	assert.Equal(t, float64(2), promtest.ToFloat64(h.metrics.MessagesProcessed))
	assert.Equal(t, float64(2), promtest.ToFloat64(h.metrics.MessagesSkipped))
	assert.Equal(t, float64(1), promtest.ToFloat64(h.metrics.MessagesFailed))

	status := h.monitor.Status()
	require.NotNil(t, status.LastDrain)
	assert.Equal(t, result.DrainID, status.LastDrain.DrainID)
}

func TestDrain_PanicIsContainedToMessage(t *testing.T) {
	h := newHarness(t)
	h.mailbox.unseen = [][]uint32{{1, 2}}
	h.addMessage(1, "tkt_1", true)
	h.processor.panics[1] = true
	h.addMessage(2, "tkt_2", true)

	result, err := h.monitor.Drain(h.ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, []uint32{2}, h.mailbox.seen)
}

func TestDrain_LostConnectionEndsDrain(t *testing.T) {
	h := newHarness(t)
	h.mailbox.unseen = [][]uint32{{1, 2}}
	h.mailbox.fetchErrs[1] = errors.Wrap(tserrors.ErrConnectionLost, "fetch")
	h.addMessage(2, "tkt_2", true)

	result, err := h.monitor.Drain(h.ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tserrors.ErrConnectionLost))

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []uint32{1}, h.mailbox.fetched)
	assert.Empty(t, h.processor.processed)
}

func TestDrain_SeenFailureStillNotifies(t *testing.T) {
	h := newHarness(t)
	h.mailbox.unseen = [][]uint32{{1}}
	h.mailbox.seenErr = errors.New("store failed")
	h.addMessage(1, "tkt_1", true)

	result, err := h.monitor.Drain(h.ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, []string{"tkt_1"}, h.notifier.created)
}

func TestDrain_NotificationSettingsLoadedOncePerDrain(t *testing.T) {
	h := newHarness(t)
	h.store.SetSetting(models.SettingNotifications, models.NotificationSettings{
		TicketCreated: models.NotificationToggle{Enabled: true, Dashboard: true},
	})
	h.mailbox.unseen = [][]uint32{{1, 2}}
	h.addMessage(1, "tkt_1", true)
	h.addMessage(2, "tkt_2", true)

	_, err := h.monitor.Drain(h.ctx)
	require.NoError(t, err)

	require.Len(t, h.notifier.configs, 2)
	require.NotNil(t, h.notifier.configs[0])
	assert.True(t, h.notifier.configs[0].TicketCreated.Enabled)
	assert.Same(t, h.notifier.configs[0], h.notifier.configs[1])
}

func TestDrain_MissingNotificationSettingsDegrade(t *testing.T) {
	h := newHarness(t)
	h.mailbox.unseen = [][]uint32{{1, 2}}
	h.addMessage(1, "tkt_1", true)
	h.addMessage(2, "tkt_1", false)

	result, err := h.monitor.Drain(h.ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, []*models.NotificationSettings{nil, nil}, h.notifier.configs)
}

func TestRun_FallsBackToPollingAfterMaxRetries(t *testing.T) {
	h := newHarness(t)
	h.mailbox.waitErrs = []error{errLost, errLost, errLost}
	h.sleeper.limit = 3

	err := h.monitor.Run(h.ctx)
	assert.True(t, errors.Is(err, context.Canceled))

	assert.Equal(t, 3, h.mailbox.waitCalls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 30 * time.Second}, h.sleeper.durations)

	status := h.monitor.Status()
	assert.Equal(t, enum.MonitorPolling, status.Mode)
	assert.Equal(t, 3, status.Failures)
	assert.Equal(t, float64(3), promtest.ToFloat64(h.metrics.IdleFailures))
	assert.Equal(t, float64(1), promtest.ToFloat64(h.metrics.MonitorMode))
}

func TestRun_PollingUsesIntervalNotBackoff(t *testing.T) {
	h := newHarness(t)
	h.mailbox.waitErrs = []error{errLost, errLost, errLost}
	h.mailbox.unseen = [][]uint32{nil, nil, {9}}
	h.addMessage(9, "tkt_9", true)
	h.sleeper.limit = 5

	_ = h.monitor.Run(h.ctx)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second}, h.sleeper.durations)
	assert.Equal(t, 3, h.mailbox.waitCalls)
	assert.Equal(t, []uint32{9}, h.mailbox.seen)
}

func TestRun_UnsupportedIdleSwitchesImmediately(t *testing.T) {
	h := newHarness(t)
	h.mailbox.waitErrs = []error{tserrors.ErrIdleUnsupported}
	h.sleeper.limit = 1

	_ = h.monitor.Run(h.ctx)

	assert.Equal(t, 1, h.mailbox.waitCalls)
	assert.Equal(t, []time.Duration{30 * time.Second}, h.sleeper.durations)
	assert.Equal(t, enum.MonitorPolling, h.monitor.Status().Mode)
	assert.Equal(t, float64(0), promtest.ToFloat64(h.metrics.IdleFailures))
}

func TestRun_PushTriggersDrainAndResetsFailures(t *testing.T) {
	h := newHarness(t)
	h.mailbox.unseen = [][]uint32{{1}, {2}}
	h.addMessage(1, "tkt_1", true)
	h.addMessage(2, "tkt_1", false)
	h.mailbox.waitErrs = []error{errLost, nil}

	err := h.monitor.Run(h.ctx)
	assert.True(t, errors.Is(err, context.Canceled))

	assert.Equal(t, []uint32{1, 2}, h.mailbox.seen)
	assert.Equal(t, []time.Duration{time.Second}, h.sleeper.durations)
	assert.Equal(t, 3, h.mailbox.waitCalls)

	status := h.monitor.Status()
	assert.Equal(t, enum.MonitorIdle, status.Mode)
	assert.Equal(t, 0, status.Failures)
}

func TestRunWithRespawn_RestartsAfterStartupFailure(t *testing.T) {
	h := newHarness(t)
	h.mailbox.ensureErrs = []error{errors.New("dial refused")}

	err := h.monitor.RunWithRespawn(h.ctx, 10*time.Second)
	assert.True(t, errors.Is(err, context.Canceled))

	assert.Equal(t, []time.Duration{10 * time.Second}, h.sleeper.durations)
	status := h.monitor.Status()
	assert.Equal(t, 1, status.Restarts)
	assert.Contains(t, status.LastError, "dial refused")
	assert.False(t, status.Running)
	assert.GreaterOrEqual(t, h.mailbox.closed, 2)
}

func TestRunWithRespawn_RecoversPanic(t *testing.T) {
	h := newHarness(t)
	h.mailbox.ensurePanics = 1

	err := h.monitor.RunWithRespawn(h.ctx, time.Second)
	assert.True(t, errors.Is(err, context.Canceled))

	status := h.monitor.Status()
	assert.Equal(t, 1, status.Restarts)
	assert.Contains(t, status.LastError, "panic")
	assert.Equal(t, 1, h.mailbox.waitCalls)
}
