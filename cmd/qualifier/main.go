package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/qualifier/internal/auth"
	"github.com/pavelanni/qualifier/internal/cache"
	"github.com/pavelanni/qualifier/internal/catalog"
	"github.com/pavelanni/qualifier/internal/handler"
	appI18n "github.com/pavelanni/qualifier/internal/i18n"
	"github.com/pavelanni/qualifier/internal/llm"
	"github.com/pavelanni/qualifier/internal/llm/prompts"
	"github.com/pavelanni/qualifier/internal/model"
	"github.com/pavelanni/qualifier/internal/mongostore"
	"github.com/pavelanni/qualifier/internal/session"
	"github.com/pavelanni/qualifier/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qualifier",
		Short: "Adaptive lead qualification questionnaire and scoring service",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), scoreCmd(), validateCmd(), tokenCmd(),
		leadsCmd(), staleCmd(), hashPasswordCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `qualifier --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addBackendFlags(f *pflag.FlagSet) {
	f.String("db", "qualifier.db", "SQLite database path")
	f.String("mongo-uri", "", "MongoDB connection URI (replaces SQLite when set)")
	f.String("mongo-db", "qualifier", "MongoDB database name")
}

func addCatalogFlag(f *pflag.FlagSet) {
	f.StringP("catalog", "c", "", "Question catalog file, YAML or JSON (default: built-in catalog)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP questionnaire server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addBackendFlags(f)
	addCatalogFlag(f)
	f.String("redis-addr", "", "Redis address for the session cache (disabled when empty)")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("cache-ttl", cache.DefaultTTL, "Session cache TTL")
	f.StringP("lang", "l", "en", "Default language for messages (en, ru)")
	f.String("token-secret", "", "HMAC secret for respondent tokens (or set QUALIFIER_TOKEN_SECRET)")
	f.Duration("token-ttl", 30*24*time.Hour, "Lifetime of respondent tokens")
	f.String("admin-user", "admin", "Admin username for /admin routes")
	f.String("admin-hash", "", "bcrypt hash of the admin password (see `qualifier hash-password`)")
	f.Duration("stale-after", 72*time.Hour, "Default inactivity before a session is reported as abandoned")
	f.String("llm-url", "", "OpenAI-compatible API base URL for lead briefs (disabled when empty)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("brief-variant", string(prompts.VariantConcise), "Lead brief prompt variant (concise, detailed)")
	addLogFlags(f)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUALIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("qualifier")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/qualifier")
	v.AddConfigPath("/etc/qualifier")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// leadBackend is a durable session store. Both the SQLite and the MongoDB
// stores satisfy it.
type leadBackend interface {
	session.Store
	handler.LeadStore
	ExportAllSessions(ctx context.Context, questions model.QuestionLookup) ([]model.LeadResult, error)
}

// openBackend opens MongoDB when a URI is configured and SQLite otherwise.
// The returned func releases the connection.
func openBackend(ctx context.Context, v *viper.Viper) (leadBackend, *store.Store, func(), error) {
	if uri := v.GetString("mongo-uri"); uri != "" {
		ms, err := mongostore.Connect(ctx, uri, v.GetString("mongo-db"))
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Debug("using mongo backend", "db", v.GetString("mongo-db"))
		return ms, nil, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Close(closeCtx)
		}, nil
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	return db, db, func() { db.Close() }, nil
}

// withCache puts a Redis cache in front of next when redis-addr is set.
// An unreachable Redis disables the cache instead of failing startup.
func withCache(ctx context.Context, v *viper.Viper, next session.Store) (session.Store, func()) {
	addr := v.GetString("redis-addr")
	if addr == "" {
		return next, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: v.GetString("redis-password"),
		DB:       v.GetInt("redis-db"),
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, session cache disabled", "addr", addr, "error", err)
		_ = client.Close()
		return next, func() {}
	}
	slog.Info("session cache enabled", "addr", addr, "ttl", v.GetDuration("cache-ttl"))
	return cache.NewSessionCache(next, client, v.GetDuration("cache-ttl")), func() { _ = client.Close() }
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	cat, err := loadCatalog(v.GetString("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	backend, db, closeBackend, err := openBackend(ctx, v)
	if err != nil {
		return err
	}
	defer closeBackend()

	if db != nil {
		prev, err := db.RecordCatalogVersion(ctx, cat.Version)
		if err != nil {
			return fmt.Errorf("record catalog version: %w", err)
		}
		if prev != "" && prev != cat.Version {
			slog.Warn("catalog version changed, sessions will be migrated on their next visit",
				"from", prev, "to", cat.Version)
		}
	}

	sessions, closeCache := withCache(ctx, v, backend)
	defer closeCache()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	tokens, err := auth.NewTokens(v.GetString("token-secret"), v.GetDuration("token-ttl"))
	if err != nil {
		return fmt.Errorf("token service: %w (set --token-secret or QUALIFIER_TOKEN_SECRET)", err)
	}

	admin := auth.NewAdmin(v.GetString("admin-user"), v.GetString("admin-hash"))
	if !admin.Enabled() {
		slog.Warn("admin credentials not configured, /admin routes will reject every request")
	}

	cfg := model.ServiceConfig{
		AdminUser:    v.GetString("admin-user"),
		AdminHash:    v.GetString("admin-hash"),
		TokenSecret:  v.GetString("token-secret"),
		TokenTTL:     v.GetDuration("token-ttl"),
		StaleAfter:   v.GetDuration("stale-after"),
		DefaultLang:  lang,
		BriefVariant: strings.ToLower(strings.TrimSpace(v.GetString("brief-variant"))),
	}
	if !prompts.IsValidVariant(cfg.BriefVariant) {
		slog.Warn("invalid brief-variant, using concise", "variant", cfg.BriefVariant)
		cfg.BriefVariant = string(prompts.VariantConcise)
	}

	var briefer handler.Briefer
	if url := v.GetString("llm-url"); url != "" {
		if err := prompts.Load(prompts.Templates); err != nil {
			return fmt.Errorf("load prompts: %w", err)
		}
		briefer = llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"))
		cfg.LLMEnabled = true
	}

	h, err := handler.New(session.NewManager(sessions, cat), backend, briefer, tokens, admin, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"catalog", cat.Version,
		"questions", cat.Len(),
		"lang", lang,
		"mongo", v.GetString("mongo-uri") != "",
		"cache", v.GetString("redis-addr") != "",
		"llm", cfg.LLMEnabled,
		"brief_variant", cfg.BriefVariant,
	)
	return http.ListenAndServe(addr, r)
}
