// Command avrctl controls an audio receiver over its telnet protocol.
//
// Without arguments it opens an interactive console. Anything after the
// flags is run as a single console command.
//
// Usage:
//
//	avrctl [flags] [command...]
//
// Examples:
//
//	# Interactive console
//	avrctl -host 192.168.1.50
//
//	# One-shot commands
//	avrctl -host 192.168.1.50 get Main.Volume
//	avrctl -host 192.168.1.50 Main.Power=On
//
//	# Find a receiver on the LAN and capture the session
//	avrctl -discover -protocol-log session.alog
//
// Configuration is read from -config (YAML) and the AVR_HOST, AVR_PORT,
// AVR_DRAIN_TIMEOUT and AVR_LOG_LEVEL environment variables. Flags win.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/avrbridge/avrbridge-go/cmd/avrctl/interactive"
	"github.com/avrbridge/avrbridge-go/internal/config"
	"github.com/avrbridge/avrbridge-go/pkg/discovery"
	"github.com/avrbridge/avrbridge-go/pkg/log"
	"github.com/avrbridge/avrbridge-go/pkg/session"
)

var (
	configPath  = flag.String("config", "", "Configuration file path (YAML)")
	host        = flag.String("host", "", "Receiver host")
	port        = flag.Int("port", 0, "Receiver port (default 23)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "Write a protocol capture to this file")
	discover    = flag.Bool("discover", false, "Browse mDNS for a receiver when no host is set")
	introspect  = flag.Bool("introspect", true, "Introspect after connecting (-introspect=false to skip)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if *host != "" {
		cfg.SetHost(*host)
	}
	if *port != 0 {
		cfg.SetPort(*port)
	}
	if *logLevel != "" {
		cfg.SetLogLevel(*logLevel)
	}
	if *protocolLog != "" {
		cfg.Log.ProtocolLog = *protocolLog
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "introspect" {
			cfg.Device.Introspect = introspect
		}
	})

	logger := cfg.NewLogger(os.Stderr)
	for _, w := range cfg.Meta.Warnings {
		logger.Warn(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	browser := discovery.NewBrowser(discovery.BrowserConfig{
		Interface: cfg.Discovery.Interface,
		Timeout:   cfg.Discovery.Timeout,
	})
	if cfg.Device.Host == "" && *discover {
		if err := discoverReceiver(ctx, browser, cfg, logger); err != nil {
			fatalf("%v", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		fatalf("invalid configuration:\n%v", err)
	}
	logger.Debug("configuration loaded",
		"host", cfg.Device.Host, "host_source", cfg.Meta.HostSource,
		"port", cfg.Device.Port, "port_source", cfg.Meta.PortSource,
		"yaml", cfg.Meta.YAMLPath)

	history := log.NewMemoryLogger(interactive.DefaultHistory)
	protocol := []log.Logger{history, log.NewSlogAdapter(logger)}
	if cfg.Log.ProtocolLog != "" {
		capture, err := log.NewFileLogger(cfg.Log.ProtocolLog)
		if err != nil {
			fatalf("open protocol log: %v", err)
		}
		defer capture.Close()
		protocol = append(protocol, capture)
	}

	sc := cfg.SessionConfig(logger)
	sc.ProtocolLogger = log.NewMultiLogger(protocol...)
	sess := session.New(sc)
	defer sess.Close()

	console := interactive.New(sess, os.Stdout, interactive.Options{
		History: history,
		Browser: browser,
	})

	args := flag.Args()
	if err := sess.Open(ctx); err != nil {
		if len(args) > 0 {
			fatalf("%v", err)
		}
		logger.Error("connect failed, use 'connect' to retry", "error", err)
	}

	if len(args) > 0 {
		console.Execute(ctx, strings.Join(args, " "))
		return
	}
	if err := console.Run(ctx); err != nil {
		fatalf("%v", err)
	}
}

// discoverReceiver points cfg at the first receiver found.
func discoverReceiver(ctx context.Context, b *discovery.Browser, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("browsing for receivers", "service", discovery.ServiceType)
	found, err := b.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	if len(found) == 0 {
		return fmt.Errorf("discovery: no receivers found")
	}

	r := found[0]
	h := strings.TrimSuffix(r.Host, ".")
	if len(r.Addresses) > 0 {
		h = r.Addresses[0]
	}
	cfg.SetHost(h)
	cfg.SetPort(r.Port)
	logger.Info("using receiver", "instance", r.Instance, "model", r.Model, "addr", r.Address(), "found", len(found))
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "avrctl: "+format+"\n", args...)
	os.Exit(1)
}
