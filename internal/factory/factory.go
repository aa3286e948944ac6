// Package factory assembles a configured Dispatcher with its REST planes, metrics and journal.
package factory

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"agentcore/pkg/agentcore"
	"agentcore/pkg/config"
	"agentcore/pkg/journal"
	"agentcore/pkg/logx"
	"agentcore/pkg/middleware/metrics"
	"agentcore/pkg/middleware/timeout"
	"agentcore/pkg/restplane"
	"agentcore/pkg/servicemodel"
)

// Options carries collaborators that do not come from the config file.
type Options struct {
	// Registerer receives the dispatch metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// HTTPClient overrides the shared plane HTTP client.
	HTTPClient *http.Client
	// TokenSource overrides the credential lookup through config.GetSecret.
	TokenSource restplane.TokenSource
	Logger      *logx.Logger
}

// Client bundles a dispatcher with the resources it owns.
type Client struct {
	*agentcore.Dispatcher

	Recorder *metrics.PrometheusRecorder // nil when metrics are disabled
	Journal  *journal.Journal            // nil when the journal is disabled
}

// NewClient builds a Dispatcher from cfg. Planes are REST clients over the configured
// (or embedded) service models; their models are loaded lazily on first use, so a bad
// model file surfaces as a plane construction failure rather than here.
func NewClient(cfg *config.Config, opts Options) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logx.NewLogger("agentcore")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	tokens := opts.TokenSource
	if tokens == nil {
		tokens = restplane.SecretToken(cfg.TokenEnv)
	}

	client := &Client{}
	dispatcherOpts := []agentcore.Option{
		agentcore.WithLogger(logger),
		agentcore.WithMiddleware(timeout.Middleware(cfg.Timeout())),
		agentcore.WithControlPlane(planeFactory(config.ControlPlaneService, cfg.Models.Control, cfg.Endpoints.Control, httpClient, tokens)),
		agentcore.WithDataPlane(planeFactory(config.DataPlaneService, cfg.Models.Data, cfg.Endpoints.Data, httpClient, tokens)),
	}
	if region := configuredRegion(cfg); region != "" {
		dispatcherOpts = append(dispatcherOpts, agentcore.WithRegion(region))
	}

	if opts.Registerer != nil {
		client.Recorder = metrics.NewPrometheusRecorder(opts.Registerer)
		dispatcherOpts = append(dispatcherOpts,
			agentcore.WithObserver(client.Recorder),
			agentcore.WithMiddleware(metrics.Middleware(client.Recorder, logger)),
		)
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		client.Journal = j
		dispatcherOpts = append(dispatcherOpts, agentcore.WithMiddleware(journal.Middleware(j, logger.WithComponent("journal"))))
	}

	client.Dispatcher = agentcore.New(dispatcherOpts...)
	return client, nil
}

// Close releases the journal, if any.
func (c *Client) Close() error {
	if c.Journal == nil {
		return nil
	}
	return c.Journal.Close()
}

// configuredRegion returns the config file's region, or the region of a non-default
// profile named in the config. Empty leaves the choice to the dispatcher.
func configuredRegion(cfg *config.Config) string {
	if cfg.Region != "" {
		return cfg.Region
	}
	if cfg.Profile != "" && cfg.Profile != config.DefaultProfile {
		return config.SessionRegionFor(cfg.Profile)
	}
	return ""
}

// planeFactory returns a factory that loads the plane's model and builds its REST client.
func planeFactory(service, modelPath, endpoint string, httpClient *http.Client, tokens restplane.TokenSource) agentcore.Factory {
	return func(region string) (agentcore.Delegate, error) {
		model, err := servicemodel.LoadOrBuiltin(modelPath, service)
		if err != nil {
			return nil, fmt.Errorf("load %s service model: %w", service, err)
		}
		if model.Service != service {
			return nil, fmt.Errorf("service model %s describes %s, expected %s", modelPath, model.Service, service)
		}

		opts := []restplane.Option{
			restplane.WithHTTPClient(httpClient),
			restplane.WithTokenSource(tokens),
		}
		if endpoint != "" {
			opts = append(opts, restplane.WithEndpoint(endpoint))
		}
		return restplane.Factory(model, opts...)(region)
	}
}
