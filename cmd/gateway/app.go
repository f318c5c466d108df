package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/letsplay/gateway/internal/auth/jwt"
	"github.com/letsplay/gateway/internal/config"
	"github.com/letsplay/gateway/internal/gateway"
	"github.com/letsplay/gateway/internal/health"
	"github.com/letsplay/gateway/internal/observability"
	"github.com/letsplay/gateway/internal/secrets"
)

// jwksCheckTimeout bounds the readiness probe of a remote key set.
const jwksCheckTimeout = 5 * time.Second

// application holds all application components.
type application struct {
	config    *config.GatewayConfig
	logger    observability.Logger
	gateway   *gateway.Gateway
	validator *jwt.Validator
	secrets   secrets.Provider
	metrics   *observability.Metrics
	tracer    *observability.Tracer

	// stopWatch ends the secret rotation watch.
	stopWatch context.CancelFunc
}

// initApplication builds every component from cfg.
func initApplication(
	ctx context.Context,
	cfg *config.GatewayConfig,
	logger observability.Logger,
) (*application, error) {
	app := &application{config: cfg, logger: logger, stopWatch: func() {}}
	obs := cfg.Spec.Observability

	if obs.Metrics.Enabled {
		app.metrics = observability.NewMetrics(obs.Metrics.Namespace)
	}

	tracer, err := observability.NewTracer(ctx, obs.TracerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	app.tracer = tracer

	provider, err := secrets.NewProvider(cfg.Spec.Secrets, logger)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("failed to initialize secrets provider: %w", err)
	}
	app.secrets = provider

	watchCtx, stopWatch := context.WithCancel(context.Background())
	app.stopWatch = stopWatch

	validator, err := buildValidator(ctx, watchCtx, cfg, provider, app.metrics, logger)
	if err != nil {
		app.close(ctx)
		return nil, err
	}
	app.validator = validator

	checker := health.NewChecker(version, health.WithLogger(logger))
	if url := cfg.Spec.Auth.JWT.JWKSURL; url != "" {
		checker.AddCheck(health.HTTPCheck("jwks", url, &http.Client{Timeout: jwksCheckTimeout}))
	}

	opts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithHealthChecker(checker),
		gateway.WithTracer(tracer),
	}
	if app.metrics != nil {
		opts = append(opts, gateway.WithMetrics(app.metrics))
	}

	gw, err := gateway.New(cfg, validator, opts...)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	app.gateway = gw

	return app, nil
}

// buildValidator creates the JWT validator, loading the HMAC secret from
// the secrets provider. When the JWT config asks for it and the provider
// supports it, secret changes are pushed into the validator until watchCtx
// is cancelled.
func buildValidator(
	ctx, watchCtx context.Context,
	cfg *config.GatewayConfig,
	provider secrets.Provider,
	metrics *observability.Metrics,
	logger observability.Logger,
) (*jwt.Validator, error) {
	jwtCfg := cfg.Spec.Auth.JWT
	ref := jwtCfg.SecretRef

	opts := []jwt.ValidatorOption{jwt.WithValidatorLogger(logger)}
	if metrics != nil {
		jm := jwt.NewMetrics(cfg.Spec.Observability.Metrics.Namespace)
		jm.MustRegister(metrics.Registry())
		opts = append(opts, jwt.WithValidatorMetrics(jm))
	}

	if !ref.IsZero() {
		secret, err := secrets.Resolve(ctx, provider, ref)
		switch {
		case err == nil:
			opts = append(opts, jwt.WithSecret(secret))
		case jwtCfg.JWKSURL != "":
			logger.Warn("hmac secret unavailable, relying on jwks",
				observability.String("path", ref.Path),
				observability.Error(err),
			)
		default:
			return nil, fmt.Errorf("failed to load jwt secret %q: %w", ref.Path, err)
		}
	}

	validator, err := jwt.NewValidator(jwtCfg.ValidatorConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create jwt validator: %w", err)
	}

	if !jwtCfg.WatchSecret || ref.IsZero() {
		return validator, nil
	}

	watcher, ok := provider.(secrets.Watcher)
	if !ok {
		_ = validator.Close()
		return nil, fmt.Errorf("%w: %s", secrets.ErrWatchUnsupported, provider.Type())
	}

	err = watcher.Watch(watchCtx, ref.Path, func(s *secrets.Secret) {
		secret, err := s.Get(ref.Key)
		if err == nil {
			err = validator.SetSecret(secret)
		}
		if err != nil {
			logger.Error("jwt secret rotation rejected",
				observability.String("path", ref.Path),
				observability.Error(err),
			)
		}
	})
	if err != nil {
		_ = validator.Close()
		return nil, fmt.Errorf("failed to watch jwt secret: %w", err)
	}

	return validator, nil
}

// shutdown stops the gateway and releases every component.
func (a *application) shutdown() error {
	timeout := a.config.Spec.Listener.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if a.gateway != nil && a.gateway.IsRunning() {
		if err := a.gateway.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop gateway: %w", err))
		}
	}
	a.close(ctx)

	a.logger.Info("gateway stopped")
	return errors.Join(errs...)
}

// close releases everything except the gateway listener.
func (a *application) close(ctx context.Context) {
	a.stopWatch()

	if a.validator != nil {
		_ = a.validator.Close()
	}
	if a.secrets != nil {
		if err := a.secrets.Close(); err != nil {
			a.logger.Error("failed to close secrets provider", observability.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}
}
