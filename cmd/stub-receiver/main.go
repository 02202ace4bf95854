// Command stub-receiver runs a fake audio receiver for development.
//
// It answers the telnet control protocol from the built-in command
// catalogue, keeps per-command state, optionally pushes temperature
// telemetry and can announce itself over mDNS.
//
// Usage:
//
//	stub-receiver [flags]
//
// Examples:
//
//	# Listen on the standard port with telemetry every 10s
//	stub-receiver -listen :23 -telemetry-interval 10s
//
//	# Announce on the LAN so avrctl -discover finds it
//	stub-receiver -listen :2323 -advertise "Living Room"
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avrbridge/avrbridge-go/internal/config"
	"github.com/avrbridge/avrbridge-go/pkg/discovery"
	"github.com/avrbridge/avrbridge-go/pkg/stubdevice"
)

var (
	listen            = flag.String("listen", "127.0.0.1:2323", "Listen address")
	model             = flag.String("model", "T778", "Model announced in the greeting")
	silent            = flag.Bool("silent-greeting", false, "Do not send the greeting frame")
	telemetryInterval = flag.Duration("telemetry-interval", 0, "Push Main.Temp.PSU at this interval (0 disables)")
	replyDelay        = flag.Duration("reply-delay", 0, "Delay before every reply")
	advertise         = flag.String("advertise", "", "Announce over mDNS with this instance name")
	logLevel          = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	level, err := config.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	srv := stubdevice.New(stubdevice.Config{
		Addr:              *listen,
		Model:             *model,
		SilentGreeting:    *silent,
		TelemetryInterval: *telemetryInterval,
		ReplyDelay:        *replyDelay,
		Logger:            logger,
	})
	if err := srv.Start(); err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	logger.Info("stub receiver listening", "addr", srv.Addr(), "model", *model)

	var adv discovery.Advertiser
	if *advertise != "" {
		err := adv.Announce(discovery.AdvertiserConfig{
			Instance: *advertise,
			Port:     srv.Port(),
			Model:    *model,
			TTL:      uint32((2 * time.Minute).Seconds()),
		})
		if err != nil {
			logger.Warn("mDNS announcement failed", "error", err)
		} else {
			logger.Info("announced", "instance", *advertise, "service", discovery.ServiceType)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	adv.Shutdown()
	if err := srv.Close(); err != nil {
		logger.Warn("close", "error", err)
	}
}
