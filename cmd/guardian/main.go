package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parentline/guardian/pkg/apiserver"
	"github.com/parentline/guardian/pkg/config"
	"github.com/parentline/guardian/pkg/crisis"
	"github.com/parentline/guardian/pkg/dispatch"
	"github.com/parentline/guardian/pkg/emotion"
	"github.com/parentline/guardian/pkg/models"
	"github.com/parentline/guardian/pkg/observability/logging"
	"github.com/parentline/guardian/pkg/pii"
	"github.com/parentline/guardian/pkg/pipeline"
	"github.com/parentline/guardian/pkg/policy"
	"github.com/parentline/guardian/pkg/session"
)

func main() {
	var (
		configPath  = flag.String("config", "config/config.yaml", "Path to the configuration file")
		port        = flag.Int("port", 0, "API port (overrides config)")
		metricsPort = flag.Int("metrics-port", 0, "Prometheus metrics port (overrides config)")
	)
	flag.Parse()

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	if _, err := logging.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
	}
	defer logging.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatalf("Failed to load config %s: %v", *configPath, err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort != 0 {
		cfg.Server.MetricsPort = *metricsPort
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logging.Infof("Starting metrics server on %s", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			logging.Errorf("Metrics server error: %v", err)
		}
	}()

	policies, err := policy.NewManager(cfg.Policy.Dir)
	if err != nil {
		// No reviewed guardrails means no service.
		logging.Fatalf("Failed to load policy rule sets: %v", err)
	}

	stop := make(chan struct{})
	if cfg.Policy.Watch {
		if err := policies.Watch(stop); err != nil {
			logging.Fatalf("Failed to watch policy dir: %v", err)
		}
	}

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		logging.Fatalf("Failed to initialize session store: %v", err)
	}
	defer closeStore()

	client := models.NewClient(cfg.Models)
	scrubber := pii.NewScrubber(
		pii.WithMaxInputLength(cfg.PII.MaxInputLength),
		pii.WithConfidenceThreshold(cfg.PII.ConfidenceThreshold),
	)

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Store:        store,
		Scrubber:     scrubber,
		Detector:     crisis.NewDetector(client, crisis.NewKeywordScorer(nil, 0), cfg.Crisis.Threshold, cfg.CrisisTimeout()),
		Classifier:   emotion.NewClassifier(client, cfg.EmotionTimeout()),
		Policies:     policies,
		Dispatcher:   dispatch.NewDispatcher(client, scrubber, cfg.DispatchTimeout()),
		RetryBackoff: cfg.PersistRetryBackoff(),
	})

	archiverCtx, cancelArchiver := context.WithCancel(context.Background())
	archiver := session.NewArchiver(store, cfg.InactivityTimeout(), cfg.ArchiveSweepInterval())
	go archiver.Run(archiverCtx)

	go func() {
		for newCfg := range config.UpdateChannel() {
			logging.LogEvent("config_reloaded", map[string]interface{}{
				"default_locale":   newCfg.PII.DefaultLocale,
				"crisis_threshold": newCfg.Crisis.Threshold,
			})
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			// SIGHUP re-reads the config file; settings read per request,
			// like the default locale, take effect without a restart.
			if sig == syscall.SIGHUP {
				newCfg, err := config.Parse(*configPath)
				if err != nil {
					logging.Errorf("Config reload rejected, keeping current config: %v", err)
					continue
				}
				config.Replace(newCfg)
				continue
			}
			logging.Infof("Received %v, shutting down", sig)
			cancelArchiver()
			close(stop)
			logging.Sync()
			os.Exit(0)
		}
	}()

	srv := apiserver.New(orch, policies, cfg)
	if err := srv.Run(); err != nil {
		logging.Fatalf("API server error: %v", err)
	}
}

func buildStore(cfg *config.GuardianConfig) (session.Store, func(), error) {
	switch cfg.Session.Store {
	case "redis":
		rs, err := session.NewRedisStore(cfg.Session.Redis)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { rs.Close() }, nil
	default:
		return session.NewMemoryStore(), func() {}, nil
	}
}
