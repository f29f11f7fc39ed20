package mime

import (
	"bytes"
	"context"
	"io"
	"net/textproto"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/tracing"
	"github.com/customeros/ticketstack/internal/utils"
)

// Attachment is one non-body part. StoredName and StoragePath are filled by
// the filter when it accepts the part.
type Attachment struct {
	FileName    string
	ContentType string
	Disposition string
	ContentID   string
	Size        int64

	StoredName  string
	StoragePath string

	content []byte
}

// Content returns the decoded bytes. Rejected attachments have none.
func (a *Attachment) Content() io.Reader {
	return bytes.NewReader(a.content)
}

// AttachmentFilter decides whether an attachment is kept, before any byte is stored.
type AttachmentFilter func(ctx context.Context, att *Attachment) bool

type Decoded struct {
	Text        string
	HTML        string
	Subject     string
	MessageID   string
	InReplyTo   string
	References  []string
	FromName    string
	FromAddress string
	// Header holds the top level headers.
	Header      textproto.MIMEHeader
	Attachments []*Attachment
	Rejected    int
}

type Decoder struct {
	log logger.Logger
}

func NewDecoder(log logger.Logger) *Decoder {
	return &Decoder{log: log}
}

// Decode parses raw into accumulated text and html bodies plus the
// attachments accepted by filter. A nil filter rejects every attachment.
func (d *Decoder) Decode(ctx context.Context, raw io.Reader, filter AttachmentFilter) (*Decoded, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Decoder.Decode")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	env, err := enmime.ReadEnvelope(raw)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(tserrors.ErrMalformedMessage, err.Error())
	}
	if env.Root == nil {
		return nil, errors.Wrap(tserrors.ErrMalformedMessage, "no mime root")
	}

	out := &Decoded{
		Subject:   strings.TrimSpace(env.GetHeader("Subject")),
		MessageID: utils.NormalizeMessageID(env.GetHeader("Message-Id")),
		InReplyTo: utils.NormalizeMessageID(env.GetHeader("In-Reply-To")),
		Header:    env.Root.Header,
	}
	for _, ref := range strings.Fields(env.GetHeader("References")) {
		if id := utils.NormalizeMessageID(ref); id != "" {
			out.References = append(out.References, id)
		}
	}
	if from, err := env.AddressList("From"); err == nil && len(from) > 0 {
		out.FromName = from[0].Name
		out.FromAddress = from[0].Address
	}

	var text, html strings.Builder
	walk(env.Root, func(p *enmime.Part) {
		if isBody(p) {
			switch {
			case strings.EqualFold(p.ContentType, "text/html"):
				html.Write(p.Content)
			default:
				if text.Len() > 0 && len(p.Content) > 0 {
					text.WriteString("\n")
				}
				text.Write(p.Content)
			}
			return
		}

		att := &Attachment{
			FileName:    p.FileName,
			ContentType: strings.ToLower(p.ContentType),
			Disposition: p.Disposition,
			ContentID:   p.ContentID,
			Size:        int64(len(p.Content)),
			content:     p.Content,
		}
		if filter != nil && filter(ctx, att) {
			out.Attachments = append(out.Attachments, att)
			return
		}
		att.content = nil
		out.Rejected++
		d.log.Infof("Attachment %q (%s, %d bytes) rejected", att.FileName, att.ContentType, att.Size)
	})

	out.Text = text.String()
	out.HTML = html.String()

	span.SetTag("attachments.accepted", len(out.Attachments))
	span.SetTag("attachments.rejected", out.Rejected)
	return out, nil
}

// walk visits leaf parts depth first in encounter order.
func walk(p *enmime.Part, visit func(*enmime.Part)) {
	for ; p != nil; p = p.NextSibling {
		if p.FirstChild != nil {
			walk(p.FirstChild, visit)
			continue
		}
		if strings.HasPrefix(strings.ToLower(p.ContentType), "multipart/") {
			continue
		}
		visit(p)
	}
}

// isBody reports whether p is a text body rather than an attachment.
func isBody(p *enmime.Part) bool {
	if strings.EqualFold(p.Disposition, "attachment") || p.FileName != "" {
		return false
	}
	ct := strings.ToLower(p.ContentType)
	return ct == "" || ct == "text/plain" || ct == "text/html"
}
