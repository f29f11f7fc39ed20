package server

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/ticketstack/config"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/repository"
	"github.com/customeros/ticketstack/internal/secret"
	"github.com/customeros/ticketstack/services/imap"
)

// VerifyIMAP checks that the stored IMAP settings can log in and open the
// mailbox within the configured timeout.
func VerifyIMAP(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	key, err := secret.ParseKey(cfg.AppConfig.SecretKey)
	if err != nil {
		return errors.Wrap(err, "APP_SECRET_KEY")
	}

	repos := repository.InitRepositories(db)
	supervisor := imap.NewSupervisor(appLogger, imap.DialAndLogin,
		imap.SettingsConfigLoader(repos.Settings(), key, cfg.WorkerConfig.Mailbox),
		cfg.WorkerConfig.Mailbox)

	if err = supervisor.Verify(ctx, cfg.WorkerConfig.VerifyTimeout); err != nil {
		return err
	}
	appLogger.Infof("IMAP settings verified, mailbox %s is reachable", supervisor.Mailbox())
	return nil
}
