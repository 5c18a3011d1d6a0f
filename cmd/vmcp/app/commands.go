// Package app provides the cobra command tree for the gateway's CLI
// entry point, generalized from the teacher's cmd/vmcp/app (load
// profile -> validate -> wire subsystems -> serve) to this gateway's
// own connection manager / catalog / semantic index / sandbox stack
// instead of the teacher's k8s-aware backend discovery and HTTP
// router.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcpvgw/vgateway/pkg/audit"
	"github.com/mcpvgw/vgateway/pkg/catalog"
	"github.com/mcpvgw/vgateway/pkg/confirm"
	"github.com/mcpvgw/vgateway/pkg/connmgr"
	"github.com/mcpvgw/vgateway/pkg/egress"
	"github.com/mcpvgw/vgateway/pkg/gateway"
	"github.com/mcpvgw/vgateway/pkg/gwconfig"
	"github.com/mcpvgw/vgateway/pkg/gwtransport"
	"github.com/mcpvgw/vgateway/pkg/health"
	"github.com/mcpvgw/vgateway/pkg/internaltool"
	"github.com/mcpvgw/vgateway/pkg/logger"
	"github.com/mcpvgw/vgateway/pkg/security"
	"github.com/mcpvgw/vgateway/pkg/semantic"
	"github.com/mcpvgw/vgateway/pkg/telemetry"
)

// defaultHealthCheckInterval polls every tracked provider's state this
// often to feed its circuit breaker. Unlike the call/handshake
// timeouts this isn't part of a provider's own wire protocol, so it
// has no analog among gwconfig's per-provider knobs.
const defaultHealthCheckInterval = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:               "vgateway",
	DisableAutoGenTag: true,
	Short:             "Aggregating gateway for the Model Context Protocol",
	Long: `vgateway is a long-lived MCP server that aggregates many downstream MCP
servers (stdio subprocesses or HTTP/SSE endpoints) behind one stdio endpoint.
Instead of exposing every downstream tool, it synthesizes a small high-level
surface: semantic discovery ("find"), dispatch ("run"), and sandboxed script
execution ("code"), so an LLM client never has to hold hundreds of raw tool
schemas in its prompt.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates the root command for the gateway CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the gateway's provider profile (YAML)")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway: load the provider profile, spawn/dial every
configured downstream, warm up the semantic index, and serve the
synthesized find/run/code surface over stdio.`,
		RunE: runServe,
	}
	cmd.Flags().Bool("enable-audit", false, "Enable per-call audit logging with default configuration")
	cmd.Flags().Bool("enable-metrics", false, "Enable Prometheus metrics collection")
	cmd.Flags().String("metrics-addr", ":9090", "Address the Prometheus scrape endpoint listens on, when metrics are enabled")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("vgateway version: %s", getVersion())
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a provider profile",
		RunE: func(_ *cobra.Command, _ []string) error {
			configPath := viper.GetString("config")
			if configPath == "" {
				return fmt.Errorf("no profile specified, use --config flag")
			}
			cfg, err := loadAndValidateConfig(configPath)
			if err != nil {
				return err
			}
			logger.Infof("valid profile %q: %d provider(s), surface mode %s", cfg.Name, len(cfg.Providers), cfg.SurfaceMode)
			return nil
		},
	}
}

func getVersion() string {
	return "dev"
}

func loadAndValidateConfig(configPath string) (*gwconfig.Config, error) {
	logger.Infof("loading profile from: %s", configPath)
	loader := gwconfig.NewYAMLLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	if err := gwconfig.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating profile: %w", err)
	}
	return cfg, nil
}

//nolint:gocyclo // subsystem wiring is inherently a long linear sequence
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	configPath := viper.GetString("config")
	if configPath == "" {
		return fmt.Errorf("no profile specified, use --config flag")
	}

	cfg, err := loadAndValidateConfig(configPath)
	if err != nil {
		return err
	}

	enableAudit, _ := cmd.Flags().GetBool("enable-audit")
	var auditor *audit.Auditor
	if enableAudit {
		auditor, err = audit.NewAuditor(audit.DefaultConfig())
		if err != nil {
			return fmt.Errorf("starting auditor: %w", err)
		}
		defer func() { _ = auditor.Close() }()
		logger.Info("audit logging enabled")
	}

	enableMetrics, _ := cmd.Flags().GetBool("enable-metrics")
	teleCfg := telemetry.DefaultConfig()
	teleCfg.MetricsEnabled = enableMetrics
	teleCfg.ServiceName = nameOr(cfg.Name, teleCfg.ServiceName)
	telemetryProvider, err := telemetry.NewProvider(ctx, teleCfg)
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}
	var recorder *telemetry.Recorder
	if enableMetrics {
		recorder, err = telemetry.NewRecorder(telemetryProvider)
		if err != nil {
			return fmt.Errorf("starting telemetry recorder: %w", err)
		}
		addr, _ := cmd.Flags().GetString("metrics-addr")
		metricsSrv := &http.Server{Addr: addr, Handler: telemetryProvider.Handler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
		logger.Infof("metrics enabled on %s", addr)
	}

	lazyConfirmer := &confirm.LazyRequester{}
	confirmChannel := confirm.New(lazyConfirmer)

	secValidator := security.NewValidator(security.DefaultAllowedCommands)
	cat := catalog.New(catalog.ConflictResolution(cfg.ConflictStrategy), cfg.ConflictPriority)

	internalHost := internaltool.NewHost()
	transportFactory := internaltool.Factory(internalHost, gwtransport.New)

	manager := connmgr.New(cfg.Connection, secValidator, cat, transportFactory)

	monitor, err := health.NewMonitor(manager, defaultHealthCheckInterval, health.DefaultCircuitBreakerConfig())
	if err != nil {
		return fmt.Errorf("starting health monitor: %w", err)
	}
	manager.SetHealthMonitor(monitor)
	monitor.Start(ctx)
	defer monitor.Stop()

	internalHost.Register(internaltool.NewManagementPlugin(manager, monitor, confirmChannel))

	store, err := semantic.OpenStore(semanticStoreDSN(cfg))
	if err != nil {
		return fmt.Errorf("opening semantic index store: %w", err)
	}
	defer func() { _ = store.Close() }()

	index := semantic.New(store, semantic.NewLexicalEmbedder(), cfg.SemanticIndex.WarmUpConcurrency, cfg.SemanticIndex.QueryBudget)
	index.SetPreferredProvider(cat.PreferredProvider)
	if err := index.LoadPersisted(ctx); err != nil {
		logger.Warnf("loading persisted semantic index: %v", err)
	}
	cat.Subscribe(index.Listener(ctx))

	logger.Infof("starting %d provider(s)", len(cfg.Providers))
	if err := manager.Start(ctx, cfg.Providers); err != nil {
		return fmt.Errorf("starting providers: %w", err)
	}

	egressPolicy := egress.New(cfg.Egress, confirmChannel)

	gw, err := gateway.New(cfg, manager, index, egressPolicy, auditor, recorder)
	if err != nil {
		return fmt.Errorf("constructing gateway server: %w", err)
	}
	lazyConfirmer.Set(confirm.NewSDKRequester(gw.MCPServer()))

	logger.Infof("gateway %q serving surface %s over stdio", nameOr(cfg.Name, "vgateway"), cfg.SurfaceMode)
	serveErr := gw.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Connection.ShutdownGrace+time.Second)
	defer cancel()
	if shutdownErr := manager.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Errorf("error shutting down providers: %v", shutdownErr)
	}

	return serveErr
}

func semanticStoreDSN(cfg *gwconfig.Config) string {
	if cfg.StateDir == "" {
		return "file::memory:?cache=shared"
	}
	name := cfg.ProfileRef
	if name == "" {
		name = "default"
	}
	return "file:" + filepath.Join(cfg.StateDir, "cache", name+"-tools.db")
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
