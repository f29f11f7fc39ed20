package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrSettingNotFound   = errors.New("setting not found")
	ErrInvalidSecret     = errors.New("invalid secret")

	// imap errors
	ErrConnectionLost    = errors.New("imap connection lost")
	ErrIdleUnsupported   = errors.New("imap server does not support IDLE")
	ErrImapNotConfigured = errors.New("imap settings are not configured")

	// message errors
	ErrMessageSkipped   = errors.New("message skipped")
	ErrMalformedMessage = errors.New("malformed message")

	// ticket errors
	ErrTicketLookupMissing = errors.New("ticket default lookup row missing")
)
