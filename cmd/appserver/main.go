// Command appserver wires every collaborator (storage, provider
// adapters, DNS, mail, docs, the orchestrator, and the HTTP API) into a
// single running process. Grounded on the teacher's cmd/appserver_ref,
// generalized from its multi-service app.New/app.Stores composition to
// this orchestrator's narrower Config-struct wiring.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/wopr-systems/beacon-orchestrator/internal/dns"
	"github.com/wopr-systems/beacon-orchestrator/internal/docgen"
	"github.com/wopr-systems/beacon-orchestrator/internal/dunning"
	"github.com/wopr-systems/beacon-orchestrator/internal/httpapi"
	"github.com/wopr-systems/beacon-orchestrator/internal/mail"
	"github.com/wopr-systems/beacon-orchestrator/internal/orchestrator"
	"github.com/wopr-systems/beacon-orchestrator/internal/platform/database"
	"github.com/wopr-systems/beacon-orchestrator/internal/platform/migrations"
	"github.com/wopr-systems/beacon-orchestrator/internal/progress"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider/adapters"
	"github.com/wopr-systems/beacon-orchestrator/internal/provider/registry"
	"github.com/wopr-systems/beacon-orchestrator/internal/store"
	"github.com/wopr-systems/beacon-orchestrator/internal/store/jsonstore"
	"github.com/wopr-systems/beacon-orchestrator/internal/store/postgres"
	"github.com/wopr-systems/beacon-orchestrator/pkg/config"
	"github.com/wopr-systems/beacon-orchestrator/pkg/logger"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or :8080)")
	configPath := flag.String("config", "", "path to a YAML configuration file")
	runMigrations := flag.Bool("migrate", true, "apply database migrations on startup (ignored for filesystem JSON storage)")
	apiTokensFlag := flag.String("api-tokens", "", "comma-separated API tokens for HTTP authentication")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	rootCtx := context.Background()

	jobs, beacons, failures, counter, notifier, closeFn := buildStores(rootCtx, cfg, log, *runMigrations)
	defer closeFn()

	reg := registry.New(counter)
	registerProviders(reg, cfg)

	dnsReg := buildDNS(cfg)
	mailer := buildMailer(cfg, log)
	docs := docgen.NoopGenerator{}
	catalog := docgen.StaticCatalog{}

	dunningEngine := dunning.New(beacons, failures, reg, dnsReg, mailer, log)

	orch := orchestrator.New(orchestrator.Config{
		Jobs:       jobs,
		Beacons:    beacons,
		Registry:   reg,
		DNS:        dnsReg,
		Mailer:     mailer,
		Docs:       docs,
		Catalog:    catalog,
		Notifier:   notifier,
		BaseDomain: cfg.Beacon.BaseDomain,
		Log:        log,
	})

	listenAddr := determineAddr(*addr, cfg)
	tokens := resolveAPITokens(*apiTokensFlag, cfg)

	httpSvc := httpapi.NewService(listenAddr, httpapi.Config{
		Jobs:          jobs,
		Beacons:       beacons,
		Registry:      reg,
		Notifier:      notifier,
		Dispatcher:    orch,
		WebhookJobs:   jobs,
		Dunning:       dunningEngine,
		WebhookSecret: cfg.Beacon.StripeWebhookSecret,
		Tokens:        tokens,
		JWTValidator:  httpapi.NewStaticJWTValidator(cfg.Auth.JWTSecret),
		BaseDomain:    cfg.Beacon.BaseDomain,
		Installer:     httpapi.NewInstallerArchive(cfg.Beacon.InstallerDir),
		Log:           log,
	})

	if err := orch.Start(rootCtx); err != nil {
		log.WithField("error", err.Error()).Error("orchestrator failed to start")
		os.Exit(1)
	}
	if err := httpSvc.Start(rootCtx); err != nil {
		log.WithField("error", err.Error()).Error("http server failed to start")
		os.Exit(1)
	}
	log.WithField("addr", listenAddr).Info("beacon orchestrator listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSvc.Stop(shutdownCtx); err != nil {
		log.WithField("error", err.Error()).Error("http server shutdown error")
	}
	if err := orch.Stop(shutdownCtx); err != nil {
		log.WithField("error", err.Error()).Error("orchestrator shutdown error")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return config.LoadFile(trimmed)
	}
	return config.Load()
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagAddr); trimmed != "" {
		return trimmed
	}
	if cfg.Server.Port != 0 {
		host := cfg.Server.Host
		if host == "" {
			host = "0.0.0.0"
		}
		return host + ":" + strconv.Itoa(cfg.Server.Port)
	}
	return ":8080"
}

func resolveAPITokens(flagTokens string, cfg *config.Config) []string {
	var tokens []string
	tokens = append(tokens, splitTokens(flagTokens)...)
	tokens = append(tokens, cfg.Auth.Tokens...)
	if env := strings.TrimSpace(os.Getenv("API_TOKENS")); env != "" {
		tokens = append(tokens, splitTokens(env)...)
	}
	return tokens
}

func splitTokens(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// buildStores chooses Postgres-backed storage when a database DSN is
// configured, adding a Redis notifier only when REDIS_ADDR is also set;
// otherwise it falls back to filesystem JSON storage with no notifier,
// so progress streams rely on polling — the same
// DSN-presence switch the teacher's cmd/appserver_ref uses to pick
// between postgres.New and an in-memory store.
func buildStores(ctx context.Context, cfg *config.Config, log *logger.Logger, runMigrations bool) (store.JobStore, store.BeaconStore, store.PaymentFailureStore, registry.Counter, progress.Notifier, func()) {
	dsn := strings.TrimSpace(cfg.Database.DSN)
	if dsn == "" {
		if cfg.Beacon.DataDir == "" {
			cfg.Beacon.DataDir = "./data"
		}
		jobs, err := jsonstore.NewJobStore(cfg.Beacon.DataDir)
		if err != nil {
			log.WithField("error", err.Error()).Error("open job store")
			os.Exit(1)
		}
		beacons, err := jsonstore.NewBeaconStore(cfg.Beacon.DataDir)
		if err != nil {
			log.WithField("error", err.Error()).Error("open beacon store")
			os.Exit(1)
		}
		failures, err := jsonstore.NewPaymentFailureStore(cfg.Beacon.DataDir)
		if err != nil {
			log.WithField("error", err.Error()).Error("open payment failure store")
			os.Exit(1)
		}
		state, err := jsonstore.NewStateStore(cfg.Beacon.DataDir)
		if err != nil {
			log.WithField("error", err.Error()).Error("open state store")
			os.Exit(1)
		}
		return jobs, beacons, failures, store.NewRRCounter(state), nil, func() {}
	}

	db, err := database.Open(ctx, dsn)
	if err != nil {
		log.WithField("error", err.Error()).Error("connect to postgres")
		os.Exit(1)
	}
	if runMigrations {
		if err := migrations.Apply(db); err != nil {
			log.WithField("error", err.Error()).Error("apply migrations")
			os.Exit(1)
		}
	}
	sqlxDB := sqlx.NewDb(db, "postgres")

	var notifier progress.Notifier
	if redisAddr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		notifier = progress.NewRedisNotifier(client)
	}

	return postgres.NewJobStore(sqlxDB), postgres.NewBeaconStore(sqlxDB), postgres.NewPaymentFailureStore(sqlxDB),
		store.NewRRCounter(postgres.NewStateStore(sqlxDB)), notifier, func() { db.Close() }
}

func registerProviders(reg *registry.Registry, cfg *config.Config) {
	hc := &http.Client{Timeout: 30 * time.Second}
	if t := strings.TrimSpace(cfg.Providers.HetznerToken); t != "" {
		reg.Register(adapters.NewHetzner(t, hc), 3)
	}
	if t := strings.TrimSpace(cfg.Providers.DigitalOceanToken); t != "" {
		reg.Register(adapters.NewDigitalOcean(t, hc), 3)
	}
	if t := strings.TrimSpace(cfg.Providers.LinodeToken); t != "" {
		reg.Register(adapters.NewLinode(t, hc), 2)
	}
	if t := strings.TrimSpace(cfg.Providers.OVHToken); t != "" {
		reg.Register(adapters.NewOVH(t, hc), 2)
	}
	if t := strings.TrimSpace(cfg.Providers.UpCloudAuth); t != "" {
		reg.Register(adapters.NewUpCloud(t, hc), 1)
	}
}

func buildDNS(cfg *config.Config) dns.Registrar {
	if strings.TrimSpace(cfg.DNS.CloudflareToken) == "" {
		return nil
	}
	return dns.NewCloudflare(cfg.DNS.CloudflareToken, cfg.DNS.ZoneID, cfg.DNS.ZoneName, &http.Client{Timeout: 15 * time.Second})
}

func buildMailer(cfg *config.Config, log *logger.Logger) mail.Sender {
	if strings.TrimSpace(cfg.Mail.HTTPURL) == "" && strings.TrimSpace(cfg.Mail.SMTPHost) == "" {
		return nil
	}
	httpCfg := mail.HTTPConfig{
		Endpoint: cfg.Mail.HTTPURL,
		APIKey:   cfg.Mail.HTTPToken,
		FromAddr: cfg.Mail.SMTPFrom,
	}
	smtpCfg := mail.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUser,
		Password: cfg.Mail.SMTPPass,
		FromAddr: cfg.Mail.SMTPFrom,
	}
	return mail.NewHTTPThenSMTPSender(httpCfg, smtpCfg, nil, log)
}
