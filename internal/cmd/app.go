package cmd

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ckdreg/internal/config"
	"github.com/felixgeelhaar/ckdreg/internal/graphql"
	"github.com/felixgeelhaar/ckdreg/internal/log"
	"github.com/felixgeelhaar/ckdreg/internal/metrics"
	"github.com/felixgeelhaar/ckdreg/internal/registry"
	"github.com/felixgeelhaar/ckdreg/internal/security"
	"github.com/felixgeelhaar/ckdreg/internal/session"
	"github.com/felixgeelhaar/ckdreg/internal/version"
)

// app is the session stack of one invocation: configuration, logger,
// metrics, token store, GraphQL transport, registry API and session.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    security.TokenStore
	gql      *graphql.Client
	api      *registry.Client
	session  *session.Manager
}

type appOptions struct {
	Notifier     session.Notifier
	HardRedirect session.HardRedirect
	// Log overrides the log destination; nil means stderr.
	Log io.Writer
}

// newApp builds the stack from the command's flags and configuration.
func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := cmdCtx.LoadConfig()
	if err != nil {
		return nil, err
	}

	store, err := security.NewFileTokenStore(cfg.Store.Path, cfg.Store.Passphrase)
	if err != nil {
		return nil, err
	}

	if opts.Notifier == nil {
		opts.Notifier = session.WriterNotifier(cmd.ErrOrStderr())
	}
	if opts.HardRedirect == nil {
		opts.HardRedirect = session.WriterRedirect(cmd.ErrOrStderr())
	}
	return assemble(cfg, store, opts)
}

// assemble wires the stack around an already opened token store.
func assemble(cfg *config.Config, store security.TokenStore, opts appOptions) (*app, error) {
	logCfg := log.ConfigFromStrings(cfg.Log.Level, cfg.Log.Format)
	logCfg.ServiceVersion = version.Version
	if opts.Log != nil {
		logCfg.Output = log.NewOutput(opts.Log)
	}
	logger := log.New(logCfg)
	log.SetDefaultLogger(logger)

	reg, m := metrics.NewRegistry()

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  m,
		store:    store,
	}

	gql, err := graphql.NewClient(graphql.Options{
		Endpoint:  cfg.API.URL,
		Timeout:   cfg.API.Timeout,
		RetryMax:  cfg.API.RetryMax,
		RateLimit: cfg.API.RateLimit,
		CacheSize: cfg.API.CacheSize,
		Tokens:    graphql.TokenFunc(a.token),
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		return nil, err
	}
	a.gql = gql
	a.api = registry.NewClient(gql)

	mgr, err := session.New(session.Options{
		Store:        store,
		Fetcher:      a.api,
		Notifier:     opts.Notifier,
		Cache:        gql,
		PollInterval: cfg.Session.PollInterval,
		LoginPath:    cfg.Session.LoginPath,
		HardRedirect: opts.HardRedirect,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		return nil, err
	}
	a.session = mgr

	return a, nil
}

func (a *app) token() string {
	if a.session == nil {
		return ""
	}
	return a.session.Token()
}

// resolve loads the stored token and waits for its identity.
func (a *app) resolve() session.Snapshot {
	a.session.Initialize()
	a.session.Wait()
	return a.session.Snapshot()
}

// Close stops the session and writes the metrics textfile when configured.
func (a *app) Close() {
	a.session.Close()
	if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
		a.logger.WithError(err).Warn("failed to write metrics textfile", "path", a.cfg.Metrics.Textfile)
	}
}
