package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/ticketstack/config"
	"github.com/customeros/ticketstack/internal/database"
	"github.com/customeros/ticketstack/internal/repository"
	"github.com/customeros/ticketstack/server"
)

func main() {
	app := &cli.App{
		Name:  "ticketstack",
		Usage: "helpdesk inbound email worker",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(c *cli.Context) error {
					_, db, err := setup()
					if err != nil {
						return err
					}
					if err = repository.Migrate(db); err != nil {
						return cli.Exit("Database migration failed: "+err.Error(), 1)
					}
					log.Println("Database migration completed successfully")
					return nil
				},
			},
			{
				Name:    "worker",
				Aliases: []string{"server"},
				Usage:   "Watch the helpdesk mailbox and serve health and status endpoints",
				Action: func(c *cli.Context) error {
					cfg, db, err := setup()
					if err != nil {
						return err
					}
					log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
					log.Println("Ticketstack starting up...")

					srv, err := server.NewServer(cfg, db)
					if err != nil {
						return cli.Exit("Server setup failed: "+err.Error(), 1)
					}
					if err = srv.Run(); err != nil {
						return cli.Exit("Server startup failed: "+err.Error(), 1)
					}
					log.Println("Shutdown complete")
					return nil
				},
			},
			{
				Name:  "verify-imap",
				Usage: "Check the stored IMAP settings against the server",
				Action: func(c *cli.Context) error {
					cfg, db, err := setup()
					if err != nil {
						return err
					}
					if err = server.VerifyIMAP(context.Background(), cfg, db); err != nil {
						return cli.Exit("IMAP verification failed: "+err.Error(), 1)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, cli.Exit("Config initialization failed: "+err.Error(), 1)
	}

	db, err := database.NewConnection(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, cli.Exit("Database initialization failed: "+err.Error(), 1)
	}
	return cfg, db, nil
}
