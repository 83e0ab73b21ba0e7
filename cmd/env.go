package main

import (
	"context"

	"github.com/rotisserie/eris"
	temporalclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/monitoring"
	"github.com/sells-group/onboard-cli/internal/phase"
	"github.com/sells-group/onboard-cli/internal/reconcile"
	"github.com/sells-group/onboard-cli/internal/session"
	"github.com/sells-group/onboard-cli/internal/source"
	"github.com/sells-group/onboard-cli/internal/store"
	"github.com/sells-group/onboard-cli/internal/trigger"
)

// appEnv holds the components shared by the commands that read the status store.
type appEnv struct {
	Store     store.Store
	Registry  *phase.Registry
	Engine    *reconcile.Engine
	Adapter   *source.Adapter
	Transport trigger.Transport
	Alerter   *monitoring.Alerter

	temporal temporalclient.Client
}

// initStore opens the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "onboard.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv validates config for mode and wires the store, phase tables and
// reconciler. The stage-start transport is only built when dispatch is true.
func initEnv(ctx context.Context, mode string, dispatch bool) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	reg, err := phase.LoadFile(cfg.Phases.OverridePath)
	if err != nil {
		return nil, eris.Wrap(err, "load phase tables")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	env := &appEnv{
		Store:    st,
		Registry: reg,
		Engine: reconcile.NewEngine(reg, reconcile.Options{
			StaleAfter:          cfg.Poll.StaleAfter(),
			CompletionThreshold: cfg.Poll.CompletionThreshold,
		}),
		Adapter:   source.New(st, reg, cfg.Poll.QueryTimeout()),
		Transport: trigger.NoopTransport{},
		Alerter:   monitoring.NewAlerter(cfg.Monitoring),
	}

	if dispatch {
		var starter trigger.WorkflowStarter
		if cfg.Trigger.Transport == "temporal" {
			c, err := trigger.DialTemporal(ctx, cfg.Temporal)
			if err != nil {
				env.Close()
				return nil, err
			}
			env.temporal = c
			starter = c
		}
		tr, err := trigger.NewTransport(cfg.Trigger, cfg.Temporal, starter)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Transport = tr
	}

	zap.L().Debug("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("transport", env.Transport.Name()),
		zap.Int("tracks", len(reg.Tables())),
	)
	return env, nil
}

// sessionOptions maps poll and trigger config onto session options.
func sessionOptions() session.Options {
	return session.Options{
		Interval:           cfg.Poll.Interval(),
		FetchFailureWindow: cfg.Poll.FetchFailureWindow(),
		WakeRate:           cfg.Poll.WakeRatePerSec,
		WakeBurst:          cfg.Poll.WakeBurst,
		CallbackBase:       cfg.Trigger.CallbackBaseURL,
		DispatchTimeout:    cfg.Trigger.Timeout(),
	}
}

// NewSession builds a session for workspaceID.
func (e *appEnv) NewSession(workspaceID string, opts session.Options) *session.Session {
	return session.New(workspaceID, session.Deps{
		Fetcher:   e.Adapter,
		Engine:    e.Engine,
		Transport: e.Transport,
		Writer:    e.Store,
		Alerter:   e.Alerter,
	}, opts)
}

// Close releases the store and the Temporal client.
func (e *appEnv) Close() {
	if e.temporal != nil {
		e.temporal.Close()
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// parseWorkflow checks arg against the loaded phase tables.
func parseWorkflow(reg *phase.Registry, arg string) (model.WorkflowType, error) {
	wf := model.WorkflowType(arg)
	if _, ok := reg.Get(wf); !ok {
		known := make([]string, 0, len(reg.Tables()))
		for _, t := range reg.Tables() {
			known = append(known, string(t.Workflow))
		}
		return "", eris.Errorf("unknown workflow %q (known: %v)", arg, known)
	}
	return wf, nil
}
