package imap

import (
	"context"

	"github.com/pkg/errors"

	"github.com/customeros/ticketstack/interfaces"
	tserrors "github.com/customeros/ticketstack/internal/errors"
	"github.com/customeros/ticketstack/internal/models"
	"github.com/customeros/ticketstack/internal/secret"
)

// ConfigLoader resolves connection parameters right before dialing.
type ConfigLoader func(ctx context.Context) (*ConnectionConfig, error)

// SettingsConfigLoader reads the imap setting and decrypts the stored password.
func SettingsConfigLoader(settings interfaces.SettingRepository, key []byte, defaultMailbox string) ConfigLoader {
	return func(ctx context.Context) (*ConnectionConfig, error) {
		var stored models.ImapSettings
		if err := settings.Get(ctx, models.SettingImap, &stored); err != nil {
			if errors.Is(err, tserrors.ErrSettingNotFound) {
				return nil, errors.Wrap(tserrors.ErrImapNotConfigured, err.Error())
			}
			return nil, err
		}
		if stored.Host == "" || stored.Username == "" {
			return nil, tserrors.ErrImapNotConfigured
		}

		password, err := secret.Decrypt(key, stored.PasswordEncrypted)
		if err != nil {
			return nil, errors.Wrap(err, "decrypt imap password")
		}

		cfg := &ConnectionConfig{
			Host:     stored.Host,
			Port:     stored.Port,
			TLS:      stored.TLS,
			Username: stored.Username,
			Password: password,
			Mailbox:  stored.Mailbox,
		}
		if cfg.Port == 0 {
			cfg.Port = 143
			if cfg.TLS {
				cfg.Port = 993
			}
		}
		if cfg.Mailbox == "" {
			cfg.Mailbox = defaultMailbox
		}
		return cfg, nil
	}
}

// StaticConfigLoader always returns cfg.
func StaticConfigLoader(cfg ConnectionConfig) ConfigLoader {
	return func(context.Context) (*ConnectionConfig, error) {
		c := cfg
		return &c, nil
	}
}
