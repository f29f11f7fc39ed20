package tickets

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/enum"
	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/testutil"
)

func newResolver() *Resolver {
	return NewResolver(logger.NewNopLogger(), 5, "TKT-")
}

func TestResolve_MintsNewTicket(t *testing.T) {
	store := testutil.NewMemoryStore()
	r := newResolver()

	res, err := r.ResolveInTransaction(context.Background(), store, Input{
		SenderAddress: "Ann@Example.com",
		SenderName:    "Ann",
		Subject:       "New issue",
	})
	require.NoError(t, err)

	assert.True(t, res.CreatedRequester)
	assert.True(t, res.CreatedTicket)
	assert.Equal(t, "ann@example.com", res.Requester.Email)
	assert.Equal(t, "Ann", *res.Requester.Name)
	assert.Equal(t, "TKT-00001", res.Ticket.TicketNumber)
	assert.Equal(t, enum.ChannelEmail, res.Ticket.Channel)
	assert.Equal(t, "status-open", res.Ticket.StatusID)
	assert.Equal(t, "priority-normal", res.Ticket.PriorityID)
	assert.Equal(t, 0, res.Ticket.ResponseCount)
	assert.False(t, res.Ticket.TargetDate.IsZero())
	assert.Equal(t, "New issue", res.Ticket.Subject)
}

func TestResolve_MatchesExistingRequesterIgnoringCase(t *testing.T) {
	store := testutil.NewMemoryStore()
	r := newResolver()
	ctx := context.Background()

	existing := &models.Requester{Email: "Alice@Example.com"}
	created, err := store.Requesters().Create(ctx, existing)
	require.NoError(t, err)
	require.True(t, created)

	res, err := r.ResolveInTransaction(ctx, store, Input{SenderAddress: "alice@EXAMPLE.com", Subject: "Help"})
	require.NoError(t, err)

	assert.False(t, res.CreatedRequester)
	assert.Equal(t, existing.ID, res.Requester.ID)
	assert.Equal(t, "Alice@Example.com", res.Requester.Email)
	assert.Len(t, store.AllRequesters(), 1)
}

func TestResolve_ReusesTicketFromSubject(t *testing.T) {
	store := testutil.NewMemoryStore()
	r := newResolver()
	ctx := context.Background()

	first, err := r.ResolveInTransaction(ctx, store, Input{SenderAddress: "ann@example.com", Subject: "Printer"})
	require.NoError(t, err)

	second, err := r.ResolveInTransaction(ctx, store, Input{
		SenderAddress: "ann@example.com",
		Subject:       "Re: " + first.Ticket.TicketNumber + " update",
	})
	require.NoError(t, err)

	assert.False(t, second.CreatedRequester)
	assert.False(t, second.CreatedTicket)
	assert.Equal(t, first.Ticket.ID, second.Ticket.ID)
	assert.Equal(t, first.Requester.ID, second.Requester.ID)
	assert.Len(t, store.AllTickets(), 1)
	assert.Len(t, store.AllRequesters(), 1)
}

func TestResolve_UnknownNumberMintsFresh(t *testing.T) {
	store := testutil.NewMemoryStore()
	r := newResolver()

	res, err := r.ResolveInTransaction(context.Background(), store, Input{
		SenderAddress: "ann@example.com",
		Subject:       "Re: TKT-99999 lost ticket",
	})
	require.NoError(t, err)
	assert.True(t, res.CreatedTicket)
	assert.Equal(t, "TKT-00001", res.Ticket.TicketNumber)
}

func TestResolve_ConfiguredPrefix(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.SetSetting(models.SettingTickets, models.TicketSettings{Prefix: "HD-"})
	r := newResolver()

	res, err := r.ResolveInTransaction(context.Background(), store, Input{SenderAddress: "ann@example.com", Subject: ""})
	require.NoError(t, err)
	assert.Equal(t, "HD-00001", res.Ticket.TicketNumber)
	assert.Equal(t, NoSubject, res.Ticket.Subject)
}

func TestResolve_InvalidSender(t *testing.T) {
	store := testutil.NewMemoryStore()
	r := newResolver()

	for _, sender := range []string{"", "not-an-address"} {
		_, err := r.ResolveInTransaction(context.Background(), store, Input{SenderAddress: sender, Subject: "x"})
		assert.True(t, errors.Is(err, tserrors.ErrMessageSkipped), sender)
	}
	assert.Empty(t, store.AllTickets())
}

func TestResolve_IdempotentAcrossReprocessing(t *testing.T) {
	store := testutil.NewMemoryStore()
	r := newResolver()
	ctx := context.Background()

	first, err := r.ResolveInTransaction(ctx, store, Input{SenderAddress: "ann@example.com", Subject: "Printer"})
	require.NoError(t, err)

	in := Input{SenderAddress: "ann@example.com", Subject: "Re: " + first.Ticket.TicketNumber}
	for i := 0; i < 2; i++ {
		_, err = r.ResolveInTransaction(ctx, store, in)
		require.NoError(t, err)
	}

	assert.Len(t, store.AllTickets(), 1)
	assert.Len(t, store.AllRequesters(), 1)
}

func TestResolve_ConcurrentMintingIsUnique(t *testing.T) {
	store := testutil.NewMemoryStore()
	r := newResolver()

	const n = 25
	numbers := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.ResolveInTransaction(context.Background(), store, Input{
				SenderAddress: "ann@example.com",
				Subject:       "New issue",
			})
			if assert.NoError(t, err) {
				numbers[i] = res.Ticket.TicketNumber
			}
		}(i)
	}
	wg.Wait()

	sort.Strings(numbers)
	for i := 1; i < n; i++ {
		assert.Less(t, numbers[i-1], numbers[i])
	}
	assert.Equal(t, "TKT-00001", numbers[0])
	assert.Equal(t, "TKT-00025", numbers[n-1])
	assert.Len(t, store.AllRequesters(), 1)
}

func TestResolve_RollbackKeepsSequenceMonotonic(t *testing.T) {
	store := testutil.NewMemoryStore()
	r := newResolver()
	ctx := context.Background()

	err := store.Transaction(ctx, func(tx interfaces.TicketStore) error {
		_, err := r.Resolve(ctx, tx, Input{SenderAddress: "ann@example.com", Subject: "x"})
		require.NoError(t, err)
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Empty(t, store.AllTickets())

	res, err := r.ResolveInTransaction(ctx, store, Input{SenderAddress: "ann@example.com", Subject: "x"})
	require.NoError(t, err)
	assert.Equal(t, "TKT-00002", res.Ticket.TicketNumber)
}
