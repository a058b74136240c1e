/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goblog/apiserver/config"
	"github.com/goblog/apiserver/internal/mail"
	"github.com/goblog/apiserver/internal/mq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// mailworkerCmd consumes the outbound mail queue and delivers over SMTP.
// It is only meaningful when MAIL_QUEUE_BACKEND is set; without a broker the
// server delivers mail itself.
var mailworkerCmd = &cobra.Command{
	Use:   "mailworker",
	Short: "Deliver queued outbound mail over SMTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var backend mq.Backend
		var err error
		switch cfg.MailQueue.Backend {
		case "rabbitmq":
			backend, err = mq.NewRabbitMQClient(cfg.MailQueue.RabbitMQ)
		case "pubsub":
			backend, err = mq.NewPubSubClient(ctx, cfg.MailQueue.PubSub)
		default:
			return fmt.Errorf("mailworker requires MAIL_QUEUE_BACKEND to be rabbitmq or pubsub, got %q", cfg.MailQueue.Backend)
		}
		if err != nil {
			return err
		}
		defer backend.Close()

		logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "mailworker").Logger()
		logger.Info().Str("channel", cfg.MailQueue.Channel).Msg("mailworker started")

		err = mail.RunWorker(ctx, backend, cfg.MailQueue.Channel, mail.NewSMTPMailer(cfg.SMTP), logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mailworkerCmd)
}
