package services

import (
	"github.com/pkg/errors"

	"github.com/customeros/ticketstack/config"
	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/logger"
	"github.com/customeros/ticketstack/internal/metrics"
	"github.com/customeros/ticketstack/internal/secret"
	"github.com/customeros/ticketstack/services/email_processor"
	"github.com/customeros/ticketstack/services/imap"
	"github.com/customeros/ticketstack/services/monitor"
	"github.com/customeros/ticketstack/services/notifications"
	"github.com/customeros/ticketstack/services/storage"
	"github.com/customeros/ticketstack/services/tickets"
)

type Services struct {
	Publisher  interfaces.EventPublisher
	Dispatcher interfaces.NotificationDispatcher
	Notifier   *notifications.Notifier
	Storage    interfaces.AttachmentStorage
	Supervisor *imap.Supervisor
	Resolver   *tickets.Resolver
	Processor  *email_processor.Processor
	Monitor    *monitor.Monitor
}

func InitServices(cfg *config.Config, log logger.Logger, store interfaces.TicketStore, m *metrics.Metrics) (*Services, error) {
	key, err := secret.ParseKey(cfg.AppConfig.SecretKey)
	if err != nil {
		return nil, errors.Wrap(err, "APP_SECRET_KEY")
	}

	attachmentStorage, err := storage.NewAttachmentStorage(cfg.StorageConfig, cfg.WorkerConfig.UploadsRoot)
	if err != nil {
		return nil, err
	}

	services := &Services{Storage: attachmentStorage}

	if cfg.AppConfig.RabbitMQURL != "" {
		publisher, err := notifications.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, notifications.DefaultPublisherConfig())
		if err != nil {
			return nil, err
		}
		services.Publisher = publisher
		services.Dispatcher = notifications.NewQueueDispatcher(log, publisher)
	} else {
		log.Warn("RABBITMQ_URL not set, notifications are only logged")
		services.Dispatcher = notifications.NewLogDispatcher(log)
	}
	services.Notifier = notifications.NewNotifier(log, services.Dispatcher)

	services.Supervisor = imap.NewSupervisor(log, imap.DialAndLogin,
		imap.SettingsConfigLoader(store.Settings(), key, cfg.WorkerConfig.Mailbox),
		cfg.WorkerConfig.Mailbox)

	services.Resolver = tickets.NewResolver(log, cfg.WorkerConfig.TicketNumberWidth, cfg.WorkerConfig.DefaultTicketPrefix)
	services.Processor = email_processor.NewProcessor(log, store, attachmentStorage, services.Resolver, m)
	services.Monitor = monitor.NewMonitor(log, *cfg.WorkerConfig, services.Supervisor, services.Processor,
		services.Notifier, store.Settings(), attachmentStorage, m)

	return services, nil
}

// Close releases the IMAP session and the broker connection.
func (s *Services) Close() error {
	if s.Supervisor != nil {
		s.Supervisor.Close()
	}
	if s.Publisher != nil {
		return s.Publisher.Close()
	}
	return nil
}
