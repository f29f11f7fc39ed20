package attachments

import (
	"context"
	"encoding/json"
	"path"
	"path/filepath"
	"strings"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/tracing"
	"github.com/customeros/ticketstack/internal/utils"
)

const (
	DefaultMaxFileSizeMB float64 = 10
	StoredNameLength             = 24
	bytesPerMB                   = 1024 * 1024
)

type RejectReason string

const (
	RejectDisabled RejectReason = "disabled"
	RejectTooLarge RejectReason = "too_large"
	RejectType     RejectReason = "type_not_allowed"
)

// Policy is the validated attachment configuration for one drain.
type Policy struct {
	Enabled       bool
	MaxFileSizeMB float64
	AllowedTypes  []string
	UploadsRoot   string
}

type Candidate struct {
	FileName    string
	ContentType string
	Size        int64
}

type Decision struct {
	Accepted    bool
	Reason      RejectReason
	StoredName  string
	StoragePath string
}

// DisabledPolicy is used whenever the stored configuration cannot be trusted.
func DisabledPolicy(uploadsRoot string) Policy {
	return Policy{
		Enabled:       false,
		MaxFileSizeMB: DefaultMaxFileSizeMB,
		AllowedTypes:  []string{},
		UploadsRoot:   uploadsRoot,
	}
}

// LoadPolicy reads the attachments setting. It never fails: a missing or
// malformed setting yields DisabledPolicy.
func LoadPolicy(ctx context.Context, settings interfaces.SettingRepository, uploadsRoot string, log logger.Logger) Policy {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Policy.LoadPolicy")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	var raw map[string]json.RawMessage
	if err := settings.Get(ctx, models.SettingAttachments, &raw); err != nil {
		log.Warnf("Attachment settings unavailable, attachments disabled: %v", err)
		return DisabledPolicy(uploadsRoot)
	}

	policy, ok := ParsePolicy(raw, uploadsRoot)
	if !ok {
		log.Warnf("Attachment settings malformed or allow-list empty, attachments disabled")
	}
	span.SetTag("attachments.enabled", policy.Enabled)
	return policy
}

// ParsePolicy validates a raw attachments document. A stored allow-list
// that is empty or not a list disables attachments. ok is false when the
// document was rejected and DisabledPolicy returned.
func ParsePolicy(raw map[string]json.RawMessage, uploadsRoot string) (Policy, bool) {
	if raw == nil {
		return DisabledPolicy(uploadsRoot), false
	}

	var settings models.AttachmentSettings
	if err := json.Unmarshal(raw["enabled"], &settings.Enabled); err != nil {
		return DisabledPolicy(uploadsRoot), false
	}

	allowed, ok := raw["allowedTypes"]
	if !ok {
		return DisabledPolicy(uploadsRoot), false
	}
	if err := json.Unmarshal(allowed, &settings.AllowedTypes); err != nil || len(settings.AllowedTypes) == 0 {
		return DisabledPolicy(uploadsRoot), false
	}

	settings.MaxFileSizeMB = DefaultMaxFileSizeMB
	if size, ok := raw["maxFileSizeMB"]; ok {
		var mb float64
		if err := json.Unmarshal(size, &mb); err == nil && mb > 0 {
			settings.MaxFileSizeMB = mb
		}
	}

	types := make([]string, 0, len(settings.AllowedTypes))
	for _, t := range settings.AllowedTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			types = append(types, t)
		}
	}

	return Policy{
		Enabled:       settings.Enabled,
		MaxFileSizeMB: settings.MaxFileSizeMB,
		AllowedTypes:  types,
		UploadsRoot:   uploadsRoot,
	}, true
}

func (p Policy) MaxBytes() int64 {
	return int64(p.MaxFileSizeMB * bytesPerMB)
}

// Accept decides whether candidate is stored and where.
func (p Policy) Accept(candidate Candidate) Decision {
	if !p.Enabled {
		return Decision{Reason: RejectDisabled}
	}
	if candidate.Size > p.MaxBytes() {
		return Decision{Reason: RejectTooLarge}
	}
	if len(p.AllowedTypes) > 0 && !utils.IsStringInSlice(strings.ToLower(candidate.ContentType), p.AllowedTypes) {
		return Decision{Reason: RejectType}
	}

	storedName := utils.GenerateNanoID(StoredNameLength) + Extension(candidate.FileName)
	return Decision{
		Accepted:    true,
		StoredName:  storedName,
		StoragePath: path.Join(filepath.ToSlash(p.UploadsRoot), storedName),
	}
}

// Extension returns the lower-cased extension after the last dot, or "".
func Extension(fileName string) string {
	base := filepath.Base(strings.TrimSpace(fileName))
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[idx:])
}
