package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"agentcore/internal/factory"
	"agentcore/pkg/agentcore"
	"agentcore/pkg/config"
	"agentcore/pkg/journal"
	"agentcore/pkg/logx"
	"agentcore/pkg/metrics"
)

// secretsPasswordEnv supplies the secrets file password non-interactively.
const secretsPasswordEnv = "AGENTCORE_SECRETS_PASSWORD"

// commonFlags are accepted by every subcommand that builds a client.
type commonFlags struct {
	configPath string
	region     string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Config file (.json or .toml)")
	fs.StringVar(&c.region, "region", "", "Region override")
}

// load reads the config file (if any) and applies the region override.
func (c *commonFlags) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	if c.region != "" {
		cfg.Region = c.region
	}
	return cfg, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseFlags parses args allowing flags after positional arguments.
func parseFlags(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, usageError(err.Error())
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func newClient(cfg *config.Config, reg prometheus.Registerer, stderr io.Writer) (*factory.Client, error) {
	if err := unlockSecrets(cfg, stderr); err != nil {
		return nil, err
	}
	return factory.NewClient(cfg, factory.Options{
		Registerer: reg,
		Logger:     logx.NewLoggerWithWriter("agentcorectl", stderr),
	})
}

func runCall(args []string, stdout, stderr io.Writer) error {
	var (
		common      commonFlags
		pairs       stringList
		jsonBody    string
		query       string
		metricsAddr string
		linger      time.Duration
	)
	fs := newFlagSet("call", stderr)
	common.register(fs)
	fs.Var(&pairs, "arg", "Argument as key=value (repeatable; key is a JSON path)")
	fs.StringVar(&jsonBody, "json", "", "Arguments as a JSON object")
	fs.StringVar(&query, "query", "", "gjson path selecting part of the result")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus /metrics on this address")
	fs.DurationVar(&linger, "linger", 0, "Keep serving /metrics for this long after the call")

	positional, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return usageError("call requires exactly one operation name")
	}
	operation := positional[0]

	callArgs, err := buildArgs(jsonBody, pairs)
	if err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.ListenAddr
	}

	var reg *prometheus.Registry
	if metricsAddr != "" {
		reg = prometheus.NewRegistry()
		stop, err := serveMetrics(metricsAddr, reg, stderr)
		if err != nil {
			return err
		}
		defer stop()
	}

	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}
	client, err := newClient(cfg, registerer, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	result, callErr := client.Call(ctx, operation, callArgs)
	if callErr == nil {
		err = writeJSON(stdout, result, query)
	}

	if reg != nil && linger > 0 {
		fmt.Fprintf(stderr, "Serving metrics on %s for %s\n", metricsAddr, linger)
		select {
		case <-time.After(linger):
		case <-ctx.Done():
		}
	}

	if callErr != nil {
		return callErr
	}
	return err
}

func runWhich(args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("which", stderr)
	common.register(fs)

	positional, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return usageError("which requires exactly one operation name")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, nil, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	delegate, err := client.ClientFor(positional[0])
	if err != nil {
		return err
	}
	plane, err := client.PlaneFor(positional[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\t%s\n", plane, delegate.Service())
	return nil
}

func runOps(args []string, stdout, stderr io.Writer) error {
	var (
		common commonFlags
		plane  string
	)
	fs := newFlagSet("ops", stderr)
	common.register(fs)
	fs.StringVar(&plane, "plane", "all", "Plane to list: control, data or all")

	if _, err := parseFlags(fs, args); err != nil {
		return err
	}
	planes, err := parsePlanes(plane)
	if err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, nil, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, p := range planes {
		names, err := client.Operations(p)
		if err != nil {
			return fmt.Errorf("%s plane: %w", p, err)
		}
		for _, name := range names {
			fmt.Fprintf(tw, "%s\t%s\n", p, name)
		}
	}
	return tw.Flush()
}

// parsePlanes maps a --plane value to planes in resolution order.
func parsePlanes(value string) ([]agentcore.Plane, error) {
	switch strings.ToLower(value) {
	case "control":
		return []agentcore.Plane{agentcore.ControlPlane}, nil
	case "data":
		return []agentcore.Plane{agentcore.DataPlane}, nil
	case "all", "":
		return []agentcore.Plane{agentcore.ControlPlane, agentcore.DataPlane}, nil
	default:
		return nil, usageError(fmt.Sprintf("invalid plane '%s', must be control, data or all", value))
	}
}

func runJournal(args []string, stdout, stderr io.Writer) error {
	var (
		common  commonFlags
		path    string
		limit   int
		asJSON  bool
		onlyErr bool
	)
	fs := newFlagSet("journal", stderr)
	common.register(fs)
	fs.StringVar(&path, "path", "", "Journal database (default: config journal.path)")
	fs.IntVar(&limit, "limit", 20, "Maximum entries to show (0 = all)")
	fs.BoolVar(&asJSON, "json", false, "Print entries as JSON")
	fs.BoolVar(&onlyErr, "errors", false, "Only show failed calls")

	if _, err := parseFlags(fs, args); err != nil {
		return err
	}
	if path == "" {
		cfg, err := common.load()
		if err != nil {
			return err
		}
		path = cfg.Journal.Path
	}
	if path == "" {
		return usageError("no journal configured; set journal.path, AGENTCORE_JOURNAL or --path")
	}

	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	entries, err := j.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if onlyErr {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Status == journal.StatusError {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if asJSON {
		return writeJSON(stdout, entries, "")
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tOPERATION\tPLANE\tDURATION\tSTATUS\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime), e.Operation, e.Plane, e.Duration, e.Status, e.ErrorType)
	}
	return tw.Flush()
}

func runStats(args []string, stdout, stderr io.Writer) error {
	var (
		common        commonFlags
		prometheusURL string
		operation     string
	)
	fs := newFlagSet("stats", stderr)
	common.register(fs)
	fs.StringVar(&prometheusURL, "prometheus", "", "Prometheus server URL (default: config metrics.prometheus_url)")
	fs.StringVar(&operation, "operation", "", "Show stats for a single operation")

	if _, err := parseFlags(fs, args); err != nil {
		return err
	}
	if prometheusURL == "" {
		cfg, err := common.load()
		if err != nil {
			return err
		}
		prometheusURL = cfg.Metrics.PrometheusURL
	}
	if prometheusURL == "" {
		return usageError("no Prometheus server configured; set metrics.prometheus_url or --prometheus")
	}

	q, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if operation != "" {
		stats, err := q.GetOperationStats(ctx, operation)
		if err != nil {
			return err
		}
		return writeJSON(stdout, stats, "")
	}

	stats, err := q.GetPlaneStats(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLANE\tCALLS\tERRORS\tRESOLUTIONS\tINIT FAILURES")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", s.Plane, s.Calls, s.Errors, s.Resolutions, s.InitFailures)
	}
	return tw.Flush()
}

func runSecrets(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return usageError("secrets requires a subcommand: set or list")
	}
	action := args[0]

	var (
		common commonFlags
		file   string
	)
	fs := newFlagSet("secrets "+action, stderr)
	common.register(fs)
	fs.StringVar(&file, "file", "", "Secrets file (default: config secrets_file)")

	positional, err := parseFlags(fs, args[1:])
	if err != nil {
		return err
	}
	if file == "" {
		cfg, err := common.load()
		if err != nil {
			return err
		}
		file = cfg.SecretsFile
	}
	if file == "" {
		return usageError("no secrets file configured; set secrets_file or --file")
	}

	switch action {
	case "list":
		password, err := readPassword("Secrets password: ", stderr)
		if err != nil {
			return err
		}
		secrets, err := config.DecryptSecretsFile(file, password)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(secrets))
		for name := range secrets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintln(stdout, name)
		}
		return nil

	case "set":
		if len(positional) != 1 {
			return usageError("secrets set requires a secret name")
		}
		password, err := readPassword("Secrets password: ", stderr)
		if err != nil {
			return err
		}
		secrets := map[string]string{}
		if _, statErr := os.Stat(file); statErr == nil {
			secrets, err = config.DecryptSecretsFile(file, password)
			if err != nil {
				return err
			}
		}
		value, err := readPassword(fmt.Sprintf("Value for %s: ", positional[0]), stderr)
		if err != nil {
			return err
		}
		secrets[positional[0]] = value
		if err := config.EncryptSecretsFile(file, password, secrets); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Stored %s in %s\n", positional[0], file)
		return nil

	default:
		return usageError(fmt.Sprintf("unknown secrets subcommand '%s'", action))
	}
}

// unlockSecrets decrypts the configured secrets file so credentials resolve from it.
func unlockSecrets(cfg *config.Config, stderr io.Writer) error {
	if cfg.SecretsFile == "" {
		return nil
	}
	if _, err := os.Stat(cfg.SecretsFile); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	password, err := readPassword("Secrets password: ", stderr)
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(cfg.SecretsFile, password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

// readPassword reads from AGENTCORE_SECRETS_PASSWORD or prompts on the terminal.
func readPassword(prompt string, stderr io.Writer) (string, error) {
	if password := os.Getenv(secretsPasswordEnv); password != "" {
		return password, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; set %s", secretsPasswordEnv)
	}
	fmt.Fprint(stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

// writeJSON prints v as JSON, colorized when w is a terminal.
func writeJSON(w io.Writer, v any, query string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	out, err := formatOutput(raw, query, isTerminal(w))
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// serveMetrics exposes reg on addr until the returned stop function is called.
func serveMetrics(addr string, reg *prometheus.Registry, stderr io.Writer) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "metrics server: %v\n", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
