// Package main is the loader executable of spec §4/§6.4: drain the spool,
// validate, dispatch, and write each envelope's document-DB and
// search-index effects, per the serial loop of spec §5.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/redhatci/kaijs/internal/buildsys"
	"github.com/redhatci/kaijs/internal/config"
	"github.com/redhatci/kaijs/internal/docstore"
	"github.com/redhatci/kaijs/internal/docstore/mongostore"
	"github.com/redhatci/kaijs/internal/handlers"
	"github.com/redhatci/kaijs/internal/loader"
	"github.com/redhatci/kaijs/internal/log"
	"github.com/redhatci/kaijs/internal/metrics"
	"github.com/redhatci/kaijs/internal/schemacatalog"
	"github.com/redhatci/kaijs/internal/searchindex"
	"github.com/redhatci/kaijs/internal/searchindex/esstore"
	"github.com/redhatci/kaijs/internal/spool"
	"github.com/redhatci/kaijs/internal/validate"
)

// Exit codes per spec §6.4's broker-fatal band, reused here for downstream
// storage since the loader never talks to a broker directly.
const (
	exitClean              = 0
	exitFatal              = 1
	exitSpoolOpenFailed    = 21
	exitDownstreamConnLost = 31
)

func main() {
	app := &cli.App{
		Name:           "loader",
		Usage:          "Validate, dispatch, and persist spooled CI events",
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			runCommand(),
			inspectCommand(),
			statsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(exitFatal)
	}
}

// exitErrHandler preserves the exit code carried by a cli.Exit error,
// matching cmd/listener and the teacher's cmd/quarry main.go.
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
	fmt.Fprintf(os.Stderr, "loader: %v\n", err)
	os.Exit(exitFatal)
}

var configFlag = &cli.StringFlag{Name: "config", Usage: "Path to a kaijs.yaml override file", EnvVars: []string{"KAIJS_CONFIG_PATH"}}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Run the loader until signaled to stop",
		Flags:  []cli.Flag{configFlag},
		Action: runAction,
	}
}

// deps bundles the collaborators runAction builds, so inspect/stats can
// reuse the same wiring for read-only connectivity checks.
type deps struct {
	cfg       *config.Config
	logger    *log.Logger
	collector *metrics.Collector
	sp        *spool.Spool
	mongo     *mongo.Client
	store     *mongostore.Store
}

func dial(ctx context.Context, cfgPath string) (*deps, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := log.New("loader")
	collector := metrics.NewCollector()

	sp, err := spool.Open(cfg.Spool.Dir)
	if err != nil {
		return nil, fmt.Errorf("open spool %q: %w", cfg.Spool.Dir, err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Docstore.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	store := mongostore.New(mongoClient, cfg.Docstore.Database)

	return &deps{cfg: cfg, logger: logger, collector: collector, sp: sp, mongo: mongoClient, store: store}, nil
}

func runAction(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := dial(ctx, c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("loader: %v", err), exitSpoolOpenFailed)
	}
	defer func() { _ = d.mongo.Disconnect(context.Background()) }()

	if err := d.store.EnsureIndexes(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("loader: ensure mongo indexes: %v", err), exitDownstreamConnLost)
	}

	catalog, err := buildCatalog(d.cfg, d.logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("loader: build schema catalog: %v", err), exitFatal)
	}
	if err := catalog.Start(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("loader: start schema catalog: %v", err), exitFatal)
	}
	if err := catalog.WaitReady(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("loader: wait for schema catalog: %v", err), exitFatal)
	}

	compilerCache := schemacatalog.NewCompilerCache(catalog)
	adapter := &validate.CompilerAdapter{
		Compile: func(ctx context.Context, tag, path string) (validate.Schema, error) {
			return compilerCache.CompilePath(ctx, tag, path)
		},
	}
	validator := validate.New(adapter, validate.DefaultNonCIRegistry())

	buildsysClient, err := buildsys.NewRPCClient(d.cfg.Buildsys.XMLRPCURL)
	if err != nil {
		return cli.Exit(fmt.Sprintf("loader: dial buildsys: %v", err), exitFatal)
	}
	defer func() { _ = buildsysClient.Close() }()

	resolve := searchindex.NewResolver(d.cfg.SearchIndex.IndexPrefix)
	registry := handlers.NewDefaultRegistry(buildsysClient, resolve)

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: d.cfg.SearchIndex.Addresses,
		Username:  d.cfg.SearchIndex.Username,
		Password:  d.cfg.SearchIndex.Password,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("loader: build elasticsearch client: %v", err), exitFatal)
	}
	indexStore := esstore.New(esClient)
	indexWriter := searchindex.NewBatchWriter(indexStore, d.logger, d.collector)

	loop := loader.New(loader.Config{
		Spool:       d.sp,
		Validator:   validator,
		Registry:    registry,
		Docs:        docstore.NewWriter(d.store),
		Index:       indexWriter,
		Records:     d.store,
		IndexPrefix: d.cfg.SearchIndex.IndexPrefix,
		Metrics:     d.collector,
		Log:         d.logger,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	clean := false
	go func() {
		<-sigCh
		d.logger.Info("signal received, shutting down", nil)
		clean = true
		cancel()
	}()

	flushInterval := d.cfg.SearchIndex.IdleFlush.Duration
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	indexDoneCh := make(chan struct{})
	go func() { indexWriter.Run(ctx, flushInterval); close(indexDoneCh) }()

	loopErr := loop.Run(ctx)
	cancel()
	<-indexDoneCh
	if err := indexWriter.Flush(context.Background()); err != nil {
		d.logger.Error("final index flush failed", map[string]any{"error": err.Error()})
	}

	if clean {
		return cli.Exit("", exitClean)
	}
	if loader.IsFatal(loopErr) {
		return cli.Exit(fmt.Sprintf("loader: %v", loopErr), exitDownstreamConnLost)
	}
	if loopErr != nil {
		return cli.Exit(fmt.Sprintf("loader: %v", loopErr), exitFatal)
	}
	return cli.Exit("", exitClean)
}

// buildCatalog wires the git-mirrored schema catalog, with an optional
// redis tag cache layered in front when configured (spec §4.3).
func buildCatalog(cfg *config.Config, logger *log.Logger) (interface {
	Start(ctx context.Context) error
	WaitReady(ctx context.Context) error
	GetFile(ctx context.Context, tag, path string) ([]byte, error)
}, error) {
	base := schemacatalog.New(cfg.Schemas.GitURL, cfg.Schemas.LocalPath, logger).
		WithRefreshInterval(cfg.Schemas.RefreshInterval.Duration)

	if !cfg.Schemas.Redis.Enabled {
		return base, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Schemas.Redis.Addr,
		Password: cfg.Schemas.Redis.Password,
		DB:       cfg.Schemas.Redis.DB,
	})
	cache := schemacatalog.NewRedisTagCache(client, cfg.Schemas.Redis.TTL.Duration)
	return schemacatalog.NewCachedCatalog(base, cache), nil
}

// inspectCommand reports read-only, point-in-time spool depth, matching
// the teacher's cli/cmd/inspect.go shape but scoped to this system's one
// meaningful entity: the on-disk spool (spec §4.10, no query API).
func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect operational state (spool)",
		Subcommands: []*cli.Command{
			{
				Name:   "spool",
				Usage:  "Show active and claimed envelope counts",
				Flags:  []cli.Flag{configFlag},
				Action: inspectSpoolAction,
			},
		},
	}
}

func inspectSpoolAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("loader: load config: %v", err), exitFatal)
	}
	sp, err := spool.Open(cfg.Spool.Dir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("loader: open spool %q: %v", cfg.Spool.Dir, err), exitSpoolOpenFailed)
	}

	active, err := sp.Length()
	if err != nil {
		return cli.Exit(fmt.Sprintf("loader: read active length: %v", err), exitFatal)
	}
	claimed, err := sp.ClaimedLength()
	if err != nil {
		return cli.Exit(fmt.Sprintf("loader: read claimed length: %v", err), exitFatal)
	}

	fmt.Printf("spool: %s\n  active:  %d\n  claimed: %d\n", cfg.Spool.Dir, active, claimed)
	return nil
}

// statsCommand reports accumulated counters. Since metrics.Collector only
// lives for one process's lifetime, "stats" here means the spool-depth
// snapshot used for liveness/alerting rather than a historical query.
func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show spool backlog statistics",
		Flags: []cli.Flag{configFlag},
		Action: func(c *cli.Context) error {
			return inspectSpoolAction(c)
		},
	}
}
