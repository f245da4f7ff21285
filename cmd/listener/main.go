// Package main is the listener executable of spec §4.1/§6.4: subscribe to
// the configured broker and drain accepted messages into the on-disk spool.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/redhatci/kaijs/internal/broker"
	"github.com/redhatci/kaijs/internal/broker/rabbitmq"
	"github.com/redhatci/kaijs/internal/broker/umb"
	"github.com/redhatci/kaijs/internal/config"
	"github.com/redhatci/kaijs/internal/listener"
	"github.com/redhatci/kaijs/internal/log"
	"github.com/redhatci/kaijs/internal/metrics"
	"github.com/redhatci/kaijs/internal/spool"
)

// Exit codes per spec §6.4's broker-fatal band.
const (
	exitClean            = 0
	exitFatal            = 1
	exitBrokerDialFailed = 11
	exitSpoolOpenFailed  = 21
)

func main() {
	app := &cli.App{
		Name:           "listener",
		Usage:          "Subscribe to the configured broker and spool accepted CI events",
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			runCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(exitFatal)
	}
}

// exitErrHandler preserves the exit code carried by a cli.Exit error
// instead of urfave/cli's default of always exiting 1, matching the
// teacher's cmd/quarry main.go.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		if msg := exitCoder.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(exitCoder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "listener: %v\n", err)
	os.Exit(exitFatal)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the listener until signaled to stop",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to a kaijs.yaml override file", EnvVars: []string{"KAIJS_CONFIG_PATH"}},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("listener: load config: %v", err), exitFatal)
	}

	logger := log.New("listener")
	collector := metrics.NewCollector()

	sp, err := spool.Open(cfg.Spool.Dir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("listener: open spool %q: %v", cfg.Spool.Dir, err), exitSpoolOpenFailed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	receiver, providerName, err := dialBroker(ctx, cfg, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("listener: dial broker: %v", err), exitBrokerDialFailed)
	}
	defer func() { _ = receiver.Close(context.Background()) }()

	l := listener.New(listener.Config{
		ProviderName:   providerName,
		LivenessPeriod: cfg.Listener.LivenessPeriod.Duration,
	}, receiver, sp, logger, collector)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	clean := false
	go func() {
		<-sigCh
		logger.Info("signal received, shutting down", nil)
		clean = true
		cancel()
	}()

	runErr := l.Run(ctx)

	if clean {
		return cli.Exit("", exitClean)
	}
	if code := collector.Snapshot().ListenerExitCode; code != 0 {
		return cli.Exit(fmt.Sprintf("listener: %v", runErr), code)
	}
	if runErr != nil {
		return cli.Exit(fmt.Sprintf("listener: %v", runErr), exitFatal)
	}
	return cli.Exit("", exitClean)
}

// dialBroker builds the configured broker.Receiver and dials it, returning
// the provider name recorded on every envelope (spec §3.1's "provider").
func dialBroker(ctx context.Context, cfg *config.Config, logger *log.Logger) (broker.Receiver, string, error) {
	switch cfg.Broker.Provider {
	case "rabbitmq":
		tlsCfg, err := buildTLSConfig(cfg.Broker.RabbitMQ.CACertPath, cfg.Broker.RabbitMQ.ClientCertPath, cfg.Broker.RabbitMQ.ClientKeyPath)
		if err != nil {
			return nil, "", err
		}
		bindings := make([]broker.TopicSelector, 0, len(cfg.Broker.RabbitMQ.Bindings))
		for _, b := range cfg.Broker.RabbitMQ.Bindings {
			bindings = append(bindings, broker.TopicSelector{Topic: b.Topic, Selector: b.Selector})
		}
		recv, err := rabbitmq.New(rabbitmq.Config{
			URL:          cfg.Broker.RabbitMQ.URL,
			TLSConfig:    tlsCfg,
			Exchange:     cfg.Broker.RabbitMQ.Exchange,
			Bindings:     bindings,
			SASLExternal: cfg.Broker.RabbitMQ.SASLExternal,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return recv, "rabbitmq", nil

	case "umb", "":
		tlsCfg, err := buildTLSConfig(cfg.Broker.UMB.CACertPath, cfg.Broker.UMB.ClientCertPath, cfg.Broker.UMB.ClientKeyPath)
		if err != nil {
			return nil, "", err
		}
		subs := make([]broker.TopicSelector, 0, len(cfg.Broker.UMB.Subscriptions))
		for _, s := range cfg.Broker.UMB.Subscriptions {
			subs = append(subs, broker.TopicSelector{Topic: s.Topic, Selector: s.Selector})
		}
		recv, err := umb.New(ctx, umb.Config{
			URL:           cfg.Broker.UMB.URL,
			TLSConfig:     tlsCfg,
			Subscriptions: subs,
			IdleTimeout:   cfg.Broker.UMB.IdleTimeout.Duration,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return recv, "umb", nil

	default:
		return nil, "", fmt.Errorf("unknown broker provider %q", cfg.Broker.Provider)
	}
}

// buildTLSConfig loads an optional client certificate/key pair and CA bundle.
// All paths empty returns a nil *tls.Config (plain connection).
func buildTLSConfig(caCertPath, certPath, keyPath string) (*tls.Config, error) {
	if caCertPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}

	tlsCfg := &tls.Config{}

	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("load client cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if caCertPath != "" {
		caBytes, err := os.ReadFile(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("no valid certificates found in %s", caCertPath)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}
