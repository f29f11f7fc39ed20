package attachments

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/logger"
)

type stubSettings struct {
	raw string
	err error
}

func (s stubSettings) Get(_ context.Context, _ string, out interface{}) error {
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.raw), out)
}

func (s stubSettings) Save(context.Context, string, interface{}) error { return nil }

func load(raw string, err error) Policy {
	return LoadPolicy(context.Background(), stubSettings{raw: raw, err: err}, "uploads/tickets", logger.NewNopLogger())
}

func TestAccept_SizeBoundary(t *testing.T) {
	p := Policy{Enabled: true, MaxFileSizeMB: 2, UploadsRoot: "uploads/tickets"}

	assert.True(t, p.Accept(Candidate{FileName: "a.bin", Size: 2 * 1024 * 1024}).Accepted)

	d := p.Accept(Candidate{FileName: "a.bin", Size: 2*1024*1024 + 1})
	assert.False(t, d.Accepted)
	assert.Equal(t, RejectTooLarge, d.Reason)
}

func TestAccept_AllowList(t *testing.T) {
	p := Policy{Enabled: true, MaxFileSizeMB: 10, AllowedTypes: []string{"application/pdf"}}

	assert.True(t, p.Accept(Candidate{ContentType: "application/pdf", Size: 1}).Accepted)
	assert.True(t, p.Accept(Candidate{ContentType: "Application/PDF", Size: 1}).Accepted)

	d := p.Accept(Candidate{ContentType: "image/png", Size: 1})
	assert.False(t, d.Accepted)
	assert.Equal(t, RejectType, d.Reason)
}

func TestAccept_EmptyAllowListAcceptsAnyType(t *testing.T) {
	p := Policy{Enabled: true, MaxFileSizeMB: 10}

	assert.True(t, p.Accept(Candidate{ContentType: "application/x-anything", Size: 1}).Accepted)
}

func TestAccept_Disabled(t *testing.T) {
	d := DisabledPolicy("uploads").Accept(Candidate{ContentType: "text/plain", Size: 1})
	assert.False(t, d.Accepted)
	assert.Equal(t, RejectDisabled, d.Reason)
}

func TestAccept_StoredName(t *testing.T) {
	p := Policy{Enabled: true, MaxFileSizeMB: 10, UploadsRoot: "uploads/tickets"}

	d := p.Accept(Candidate{FileName: "Quarterly.Report.PDF", Size: 1})
	assert.Len(t, d.StoredName, StoredNameLength+len(".pdf"))
	assert.True(t, strings.HasSuffix(d.StoredName, ".pdf"))
	assert.Equal(t, "uploads/tickets/"+d.StoredName, d.StoragePath)

	d = p.Accept(Candidate{FileName: "README", Size: 1})
	assert.Len(t, d.StoredName, StoredNameLength)

	other := p.Accept(Candidate{FileName: "README", Size: 1})
	assert.NotEqual(t, d.StoredName, other.StoredName)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".gz", Extension("backup.tar.GZ"))
	assert.Equal(t, "", Extension("noext"))
	assert.Equal(t, "", Extension("trailing."))
	assert.Equal(t, ".pdf", Extension("../../a.pdf"))
}

func TestLoadPolicy_Defaults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{name: "missing", err: errors.Wrap(tserrors.ErrSettingNotFound, "attachments")},
		{name: "not an object", raw: `"yes"`},
		{name: "allowed types not a list", raw: `{"enabled":true,"maxFileSizeMB":5,"allowedTypes":"application/pdf"}`},
		{name: "allowed types empty", raw: `{"enabled":true,"maxFileSizeMB":5,"allowedTypes":[]}`},
		{name: "allowed types missing", raw: `{"enabled":true,"maxFileSizeMB":5}`},
		{name: "enabled missing", raw: `{"allowedTypes":["image/png"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := load(tt.raw, tt.err)
			assert.False(t, p.Enabled)
			assert.Empty(t, p.AllowedTypes)
			assert.Equal(t, DefaultMaxFileSizeMB, p.MaxFileSizeMB)
		})
	}
}

func TestLoadPolicy_Valid(t *testing.T) {
	p := load(`{"enabled":true,"maxFileSizeMB":5,"allowedTypes":["Image/PNG","application/pdf"]}`, nil)

	assert.True(t, p.Enabled)
	assert.Equal(t, 5.0, p.MaxFileSizeMB)
	assert.Equal(t, []string{"image/png", "application/pdf"}, p.AllowedTypes)
	assert.Equal(t, "uploads/tickets", p.UploadsRoot)
}

func TestLoadPolicy_FractionalSize(t *testing.T) {
	p := load(`{"enabled":true,"maxFileSizeMB":0.5,"allowedTypes":["application/pdf"]}`, nil)

	assert.Equal(t, 0.5, p.MaxFileSizeMB)
	assert.Equal(t, int64(512*1024), p.MaxBytes())

	d := p.Accept(Candidate{FileName: "small.pdf", ContentType: "application/pdf", Size: 1000})
	assert.True(t, d.Accepted)
	assert.Equal(t, RejectTooLarge, p.Accept(Candidate{FileName: "big.pdf", ContentType: "application/pdf", Size: 512*1024 + 1}).Reason)
}

func TestLoadPolicy_BadSizeFallsBackToDefault(t *testing.T) {
	p := load(`{"enabled":true,"maxFileSizeMB":"big","allowedTypes":["image/png"]}`, nil)

	assert.True(t, p.Enabled)
	assert.Equal(t, DefaultMaxFileSizeMB, p.MaxFileSizeMB)
}
