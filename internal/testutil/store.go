// Package testutil holds in-memory doubles shared by service tests.
package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/customeros/ticketstack/interfaces"
	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/utils"
)

type memData struct {
	requesters  map[string]*models.Requester
	tickets     map[string]*models.Ticket
	messages    []*models.TicketMessage
	attachments []*models.TicketAttachment
	settings    map[string][]byte
}

func (d *memData) clone() *memData {
	c := &memData{
		requesters:  make(map[string]*models.Requester, len(d.requesters)),
		tickets:     make(map[string]*models.Ticket, len(d.tickets)),
		messages:    append([]*models.TicketMessage(nil), d.messages...),
		attachments: append([]*models.TicketAttachment(nil), d.attachments...),
		settings:    make(map[string][]byte, len(d.settings)),
	}
	for k, v := range d.requesters {
		c.requesters[k] = v
	}
	for k, v := range d.tickets {
		c.tickets[k] = v
	}
	for k, v := range d.settings {
		c.settings[k] = v
	}
	return c
}

type memShared struct {
	mu       sync.Mutex
	data     *memData
	seq      int64
	defaults *models.TicketDefaults
}

// MemoryStore is a TicketStore whose transactions are serialized and
// rolled back on error.
type MemoryStore struct {
	shared *memShared
	inTx   bool

	// FailMessage makes Messages().Create fail for matching rows.
	FailMessage func(*models.TicketMessage) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shared: &memShared{
		data: &memData{
			requesters: map[string]*models.Requester{},
			tickets:    map[string]*models.Ticket{},
			settings:   map[string][]byte{},
		},
		defaults: &models.TicketDefaults{StatusID: "status-open", PriorityID: "priority-normal"},
	}}
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.shared.mu.Lock()
	return s.shared.mu.Unlock
}

func (s *MemoryStore) Requesters() interfaces.RequesterRepository {
	return memRequesters{s}
}

func (s *MemoryStore) Tickets() interfaces.TicketRepository {
	return memTickets{s}
}

func (s *MemoryStore) Messages() interfaces.TicketMessageRepository {
	return memMessages{s}
}

func (s *MemoryStore) Attachments() interfaces.TicketAttachmentRepository {
	return memAttachments{s}
}

func (s *MemoryStore) Settings() interfaces.SettingRepository {
	return memSettings{s}
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx interfaces.TicketStore) error) error {
	if s.inTx {
		return fn(s)
	}
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	snapshot := s.shared.data.clone()
	tx := &MemoryStore{shared: s.shared, inTx: true, FailMessage: s.FailMessage}
	if err := fn(tx); err != nil {
		s.shared.data = snapshot
		return err
	}
	return nil
}

// SetSetting stores value as the JSON document for key.
func (s *MemoryStore) SetSetting(key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	s.SetRawSetting(key, string(raw))
}

func (s *MemoryStore) SetRawSetting(key, raw string) {
	defer s.lock()()
	s.shared.data.settings[key] = []byte(raw)
}

func (s *MemoryStore) AllRequesters() []*models.Requester {
	defer s.lock()()
	out := make([]*models.Requester, 0, len(s.shared.data.requesters))
	for _, r := range s.shared.data.requesters {
		out = append(out, r)
	}
	return out
}

func (s *MemoryStore) AllTickets() []*models.Ticket {
	defer s.lock()()
	out := make([]*models.Ticket, 0, len(s.shared.data.tickets))
	for _, t := range s.shared.data.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber < out[j].TicketNumber })
	return out
}

func (s *MemoryStore) AllMessages() []*models.TicketMessage {
	defer s.lock()()
	return append([]*models.TicketMessage(nil), s.shared.data.messages...)
}

func (s *MemoryStore) AllAttachments() []*models.TicketAttachment {
	defer s.lock()()
	return append([]*models.TicketAttachment(nil), s.shared.data.attachments...)
}

type memRequesters struct{ s *MemoryStore }

func (r memRequesters) GetByEmail(_ context.Context, email string) (*models.Requester, error) {
	defer r.s.lock()()
	if found, ok := r.s.shared.data.requesters[strings.ToLower(email)]; ok {
		c := *found
		return &c, nil
	}
	return nil, nil
}

func (r memRequesters) Create(_ context.Context, requester *models.Requester) (bool, error) {
	defer r.s.lock()()
	if existing, ok := r.s.shared.data.requesters[strings.ToLower(requester.Email)]; ok {
		*requester = *existing
		return false, nil
	}
	if requester.ID == "" {
		requester.ID = utils.GenerateNanoIDWithPrefix("req", 16)
	}
	c := *requester
	r.s.shared.data.requesters[strings.ToLower(requester.Email)] = &c
	return true, nil
}

type memTickets struct{ s *MemoryStore }

func (t memTickets) GetByNumber(_ context.Context, number string) (*models.Ticket, error) {
	defer t.s.lock()()
	if found, ok := t.s.shared.data.tickets[number]; ok {
		c := *found
		return &c, nil
	}
	return nil, nil
}

func (t memTickets) Create(_ context.Context, ticket *models.Ticket) error {
	defer t.s.lock()()
	if _, ok := t.s.shared.data.tickets[ticket.TicketNumber]; ok {
		return errors.Errorf("duplicate ticket number %s", ticket.TicketNumber)
	}
	if ticket.ID == "" {
		ticket.ID = utils.GenerateNanoIDWithPrefix("tkt", 16)
	}
	c := *ticket
	t.s.shared.data.tickets[ticket.TicketNumber] = &c
	return nil
}

func (t memTickets) GetDefaults(context.Context) (*models.TicketDefaults, error) {
	d := *t.s.shared.defaults
	return &d, nil
}

// NextTicketNumber is never rolled back, like a database sequence.
func (t memTickets) NextTicketNumber(context.Context) (int64, error) {
	defer t.s.lock()()
	t.s.shared.seq++
	return t.s.shared.seq, nil
}

type memMessages struct{ s *MemoryStore }

func (m memMessages) Create(_ context.Context, message *models.TicketMessage) error {
	if m.s.FailMessage != nil {
		if err := m.s.FailMessage(message); err != nil {
			return err
		}
	}
	defer m.s.lock()()
	if message.ID == "" {
		message.ID = utils.GenerateNanoIDWithPrefix("msg", 16)
	}
	c := *message
	m.s.shared.data.messages = append(m.s.shared.data.messages, &c)
	return nil
}

func (m memMessages) CountByTicket(_ context.Context, ticketID string) (int64, error) {
	defer m.s.lock()()
	var n int64
	for _, msg := range m.s.shared.data.messages {
		if msg.TicketID == ticketID {
			n++
		}
	}
	return n, nil
}

type memAttachments struct{ s *MemoryStore }

func (a memAttachments) Create(_ context.Context, attachment *models.TicketAttachment) error {
	defer a.s.lock()()
	if attachment.ID == "" {
		attachment.ID = utils.GenerateNanoIDWithPrefix("file", 12)
	}
	c := *attachment
	a.s.shared.data.attachments = append(a.s.shared.data.attachments, &c)
	return nil
}

type memSettings struct{ s *MemoryStore }

func (m memSettings) Get(_ context.Context, key string, out interface{}) error {
	defer m.s.lock()()
	raw, ok := m.s.shared.data.settings[key]
	if !ok {
		return errors.Wrapf(tserrors.ErrSettingNotFound, "setting %s", key)
	}
	return json.Unmarshal(raw, out)
}

func (m memSettings) Save(_ context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	defer m.s.lock()()
	m.s.shared.data.settings[key] = raw
	return nil
}
