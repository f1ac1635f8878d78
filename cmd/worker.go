/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/learngate/apiserver/config"
	"github.com/learngate/apiserver/internal/events"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command. It consumes approval lifecycle
// events and writes an audit line per event; a real deployment would fan
// these out to notification delivery.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes approval events from the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		broker, err := openWorkerBroker(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		defer broker.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		channels := []string{events.ChannelApprovalSubmitted, events.ChannelApprovalDecided}
		for _, channel := range channels {
			channel := channel
			go func() {
				err := broker.Subscribe(ctx, channel, logApprovalEvent(channel))
				if !cleanShutdown(err) {
					log.Printf("worker: subscribe %s failed: %v", channel, err)
					stop()
				}
			}()
		}

		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func openWorkerBroker(ctx context.Context, cfg config.MQConfig) (events.Broker, error) {
	switch cfg.Backend {
	case "rabbitmq":
		return events.NewRabbitBroker(cfg.RabbitMQ)
	case "pubsub":
		return events.NewPubSubBroker(ctx, cfg.PubSub)
	case "":
		return nil, fmt.Errorf("MQ_BACKEND is required for the worker")
	default:
		return nil, fmt.Errorf("unknown MQ backend %q", cfg.Backend)
	}
}

// cleanShutdown reports whether a Subscribe return is an orderly stop
// rather than a failure worth logging.
func cleanShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

func logApprovalEvent(channel string) events.Handler {
	return func(ctx context.Context, d events.Delivery) error {
		var event events.ApprovalEvent
		if err := json.Unmarshal(d.Body, &event); err != nil {
			log.Printf("worker: dropping malformed event %s on %s: %v", d.ID, channel, err)
			return nil
		}
		log.Printf("worker: %s request=%s user=%d(%s) type=%s role=%s status=%s decided_by=%d",
			channel, event.RequestID, event.UserID, event.Username,
			event.ApprovalType, event.RequestedRole, event.Status, event.DecidedBy)
		return nil
	}
}
