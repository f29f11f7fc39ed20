package email_processor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/ticketstack/internal/enum"
	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/metrics"
	"github.com/customeros/ticketstack/internal/models"
	memstore "github.com/customeros/ticketstack/internal/testutil"
	"github.com/customeros/ticketstack/services/attachments"
	"github.com/customeros/ticketstack/services/imap"
	"github.com/customeros/ticketstack/services/storage"
	"github.com/customeros/ticketstack/services/tickets"
)

const withAttachments = "From: Ann Example <ann@example.com>\r\n" +
	"Subject: Printer on fire\r\n" +
	"Message-Id: <m1@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b\"\r\n" +
	"\r\n" +
	"--b\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p onclick=\"x()\">Help <a href=\"https://example.com\">here</a></p><script>alert(1)</script>\r\n" +
	"--b\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"Report.PDF\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQK\r\n" +
	"--b\r\n" +
	"Content-Type: image/png\r\n" +
	"Content-Disposition: attachment; filename=\"shot.png\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"iVBORw0KGgo=\r\n" +
	"--b--\r\n"

const plainReply = "From: ann@example.com\r\n" +
	"Subject: Re: [TKT-00001] Printer on fire\r\n" +
	"In-Reply-To: <reply-1@helpdesk.example.com>\r\n" +
	"References: <first@example.com> <reply-1@helpdesk.example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"still burning\r\n"

type fixture struct {
	store     *memstore.MemoryStore
	files     *storage.FilesystemStore
	metrics   *metrics.Metrics
	processor *Processor
	policy    attachments.Policy
}

func newFixture(t *testing.T) *fixture {
	root := filepath.Join(t.TempDir(), "uploads")
	f := &fixture{
		store:   memstore.NewMemoryStore(),
		files:   storage.NewFilesystemStore(root),
		metrics: metrics.NewMetrics(),
		policy: attachments.Policy{
			Enabled:       true,
			MaxFileSizeMB: 10,
			AllowedTypes:  []string{"application/pdf"},
			UploadsRoot:   root,
		},
	}
	require.NoError(t, f.files.EnsureRoot(context.Background()))
	resolver := tickets.NewResolver(logger.NewNopLogger(), 5, "TKT-")
	f.processor = NewProcessor(logger.NewNopLogger(), f.store, f.files, resolver, f.metrics)
	return f
}

func fetched(uid uint32, raw string) *imap.FetchedMessage {
	return &imap.FetchedMessage{UID: uid, Source: []byte(raw)}
}

func storedFiles(t *testing.T, root string) []string {
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestProcess_NewTicketWithAttachment(t *testing.T) {
	f := newFixture(t)

	out, err := f.processor.Process(context.Background(), fetched(1, withAttachments), f.policy)
	require.NoError(t, err)

	assert.True(t, out.CreatedTicket)
	assert.True(t, out.CreatedRequester)
	assert.Equal(t, "TKT-00001", out.Ticket.TicketNumber)
	assert.Equal(t, "Printer on fire", out.Ticket.Subject)
	assert.Equal(t, "ann@example.com", out.Requester.Email)
	assert.Equal(t, 1, out.Rejected)

	msg := out.Message
	assert.True(t, msg.IsFirstResponse)
	assert.True(t, msg.HasAttachments)
	assert.False(t, msg.IsPrivate)
	assert.Equal(t, enum.SenderRequester, msg.SenderType)
	assert.Equal(t, enum.ChannelEmail, msg.Channel)
	assert.Equal(t, "m1@example.com", msg.MessageID)
	assert.Equal(t, uint32(1), msg.ImapUID)
	assert.NotContains(t, msg.Message, "script")
	assert.NotContains(t, msg.Message, "onclick")
	assert.Contains(t, msg.Message, `rel="noopener noreferrer nofollow"`)

	require.Len(t, out.Attachments, 1)
	att := out.Attachments[0]
	assert.Equal(t, "Report.PDF", att.OriginalName)
	assert.Equal(t, "application/pdf", att.MimeType)
	assert.Equal(t, out.Requester.ID, att.UploadedBy)
	assert.Equal(t, enum.SenderRequester, att.UploaderType)
	assert.Equal(t, msg.ID, att.MessageID)
	assert.Equal(t, enum.StorageLocal.String(), att.StorageBackend)
	assert.Len(t, att.StoredName, attachments.StoredNameLength+len(".pdf"))
	assert.Equal(t, int64(9), att.Size)

	content, err := os.ReadFile(att.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4\n", string(content))

	assert.Equal(t, []string{att.StoredName}, storedFiles(t, f.policy.UploadsRoot))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TicketsCreated))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AttachmentsAccepted))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AttachmentsRejected.WithLabelValues(string(attachments.RejectType))))
}

func TestProcess_ReplyAppendsToExistingTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.processor.Process(ctx, fetched(1, withAttachments), f.policy)
	require.NoError(t, err)

	reply, err := f.processor.Process(ctx, fetched(2, plainReply), f.policy)
	require.NoError(t, err)

	assert.False(t, reply.CreatedTicket)
	assert.False(t, reply.CreatedRequester)
	assert.Equal(t, first.Ticket.ID, reply.Ticket.ID)
	assert.False(t, reply.Message.IsFirstResponse)
	assert.False(t, reply.Message.HasAttachments)
	assert.Contains(t, reply.Message.Message, "still burning")
	assert.Equal(t, "reply-1@helpdesk.example.com", reply.Message.InReplyTo)
	assert.Equal(t, []string{"first@example.com", "reply-1@helpdesk.example.com"}, []string(reply.Message.References))
	assert.Len(t, f.store.AllTickets(), 1)
	assert.Len(t, f.store.AllMessages(), 2)
}

func TestProcess_EnvelopeTakesPrecedence(t *testing.T) {
	f := newFixture(t)
	msg := fetched(3, plainReply)
	msg.Envelope = imap.Envelope{FromAddress: "Bob@Example.com", FromName: "Bob", Subject: "Fresh question"}

	out, err := f.processor.Process(context.Background(), msg, f.policy)
	require.NoError(t, err)

	assert.Equal(t, "bob@example.com", out.Requester.Email)
	assert.Equal(t, "Fresh question", out.Ticket.Subject)
	require.NotNil(t, out.Message.SenderName)
	assert.Equal(t, "Bob", *out.Message.SenderName)
}

func TestProcess_DisabledPolicyStoresNothing(t *testing.T) {
	f := newFixture(t)

	out, err := f.processor.Process(context.Background(), fetched(1, withAttachments), attachments.DisabledPolicy(f.policy.UploadsRoot))
	require.NoError(t, err)

	assert.Empty(t, out.Attachments)
	assert.False(t, out.Message.HasAttachments)
	assert.Equal(t, 2, out.Rejected)
	assert.Empty(t, storedFiles(t, f.policy.UploadsRoot))
}

func TestProcess_InvalidSenderSkipped(t *testing.T) {
	f := newFixture(t)
	raw := "Subject: nobody\r\nContent-Type: text/plain\r\n\r\nhello\r\n"

	_, err := f.processor.Process(context.Background(), fetched(4, raw), f.policy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tserrors.ErrMessageSkipped))
	assert.Empty(t, f.store.AllTickets())
}

func TestProcess_AutoReplySkipped(t *testing.T) {
	f := newFixture(t)
	raw := "From: ann@example.com\r\n" +
		"Subject: Out of office\r\n" +
		"Auto-Submitted: auto-replied\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"I am away until Monday.\r\n"

	_, err := f.processor.Process(context.Background(), fetched(6, raw), f.policy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tserrors.ErrMessageSkipped))
	assert.Empty(t, f.store.AllRequesters())
	assert.Empty(t, f.store.AllTickets())
}

func TestProcess_MessageInsertFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.FailMessage = func(*models.TicketMessage) error { return errors.New("disk full") }

	_, err := f.processor.Process(context.Background(), fetched(1, withAttachments), f.policy)
	require.Error(t, err)

	assert.Empty(t, f.store.AllRequesters())
	assert.Empty(t, f.store.AllTickets())
	assert.Empty(t, f.store.AllMessages())
	assert.Empty(t, storedFiles(t, f.policy.UploadsRoot))
}

type failingSecondWrite struct {
	*storage.FilesystemStore
	writes int
}

func (s *failingSecondWrite) Write(ctx context.Context, path string, content io.Reader, contentType string) (int64, error) {
	s.writes++
	if s.writes > 1 {
		return 0, errors.New("bucket unavailable")
	}
	return s.FilesystemStore.Write(ctx, path, content, contentType)
}

func TestProcess_StorageFailureRemovesWrittenFiles(t *testing.T) {
	f := newFixture(t)
	f.policy.AllowedTypes = []string{"application/pdf", "image/png"}
	files := &failingSecondWrite{FilesystemStore: f.files}
	resolver := tickets.NewResolver(logger.NewNopLogger(), 5, "TKT-")
	processor := NewProcessor(logger.NewNopLogger(), f.store, files, resolver, f.metrics)

	_, err := processor.Process(context.Background(), fetched(1, withAttachments), f.policy)
	require.Error(t, err)

	assert.Equal(t, 2, files.writes)
	assert.Empty(t, storedFiles(t, f.policy.UploadsRoot))
	assert.Empty(t, f.store.AllAttachments())
	assert.Empty(t, f.store.AllTickets())
}
