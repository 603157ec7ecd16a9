// Command mailer consumes password reset events and delivers the mails.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/logging"
	"github.com/iliyamo/storefront/internal/queue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	var sender queue.Sender = queue.FileSender{Path: cfg.MailLog}
	if cfg.SMTPHost != "" {
		sender = queue.SMTPSender{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.MailFrom,
		}
		log.Info().Str("host", cfg.SMTPHost).Msg("mailer: delivering over smtp")
	} else {
		log.Info().Str("path", cfg.MailLog).Msg("mailer: appending mails to log file")
	}

	c := &queue.Consumer{URL: cfg.AMQPURL, Queue: cfg.MailQueue, Sender: sender, Log: log}
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("mailer stopped")
	}
	log.Info().Msg("mailer: shut down")
}
