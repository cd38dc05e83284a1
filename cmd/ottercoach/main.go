package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/saxo751/ottercoach.ai-sub000/internal/api"
	"github.com/saxo751/ottercoach.ai-sub000/internal/flow"
	"github.com/saxo751/ottercoach.ai-sub000/internal/genai"
	"github.com/saxo751/ottercoach.ai-sub000/internal/messaging"
	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	"github.com/saxo751/ottercoach.ai-sub000/internal/scheduler"
	"github.com/saxo751/ottercoach.ai-sub000/internal/store"
	"github.com/saxo751/ottercoach.ai-sub000/internal/twiliosms"
	"github.com/saxo751/ottercoach.ai-sub000/internal/util"
	"github.com/saxo751/ottercoach.ai-sub000/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for OtterCoach state data
	DefaultStateDir = "/var/lib/ottercoach"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "ottercoach.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

// Config holds environment configuration.
type Config struct {
	DatabaseURL     string
	WhatsAppDSN     string
	StateDir        string
	OpenAIKey       string
	OpenAIModel     string
	APIAddr         string
	WhatsAppEnabled bool
	SMSEnabled      bool
}

func main() {
	initializeLogger()
	config := loadEnvironmentConfig()

	qrOutput := flag.String("qr-output", "", "write WhatsApp login QR code to this file (stdout if empty)")
	numericCode := flag.Bool("numeric-code", false, "print a numeric WhatsApp login code instead of a QR code")
	stateDir := flag.String("state-dir", config.StateDir, "state directory")
	dbDSN := flag.String("db", config.DatabaseURL, "database DSN (PostgreSQL URL or SQLite path)")
	openaiKey := flag.String("openai-key", config.OpenAIKey, "OpenAI API key")
	openaiModel := flag.String("model", config.OpenAIModel, "OpenAI chat model")
	apiAddr := flag.String("addr", config.APIAddr, "HTTP listen address")
	enableWhatsApp := flag.Bool("whatsapp", config.WhatsAppEnabled, "enable the WhatsApp channel")
	enableSMS := flag.Bool("sms", config.SMSEnabled, "enable the Twilio SMS channel")
	flag.Parse()

	if err := os.MkdirAll(*stateDir, 0o755); err != nil {
		slog.Error("failed to create state directory", "error", err, "dir", *stateDir)
		os.Exit(1)
	}

	st, err := openStore(*dbDSN, *stateDir)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	aiClient, err := genai.NewClient(genai.WithAPIKey(*openaiKey), genai.WithModel(*openaiModel))
	if err != nil {
		slog.Error("failed to create GenAI client", "error", err)
		os.Exit(1)
	}

	// The registry delivers inbound messages to the engine and the engine
	// sends replies back through the registry.
	var engine *flow.Engine
	dispatch := func(ctx context.Context, msg models.InboundMessage) {
		engine.HandleInbound(ctx, msg)
	}
	registry := messaging.NewRegistry(dispatch)
	engine = flow.NewEngine(st, aiClient, registry)

	apiOpts := []api.Option{api.WithAddr(*apiAddr)}

	if *enableWhatsApp {
		waDSN := config.WhatsAppDSN
		if waDSN == "" {
			waDSN = filepath.Join(*stateDir, DefaultWhatsAppDBFileName)
		}
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(waDSN)}
		if *qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*qrOutput))
		}
		if *numericCode {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			slog.Error("failed to create WhatsApp client", "error", err)
			os.Exit(1)
		}
		if err := registry.Register(waClient); err != nil {
			slog.Error("failed to register WhatsApp channel", "error", err)
			os.Exit(1)
		}
	}

	if *enableSMS {
		smsClient, err := twiliosms.NewClient()
		if err != nil {
			slog.Error("failed to create Twilio SMS client", "error", err)
			os.Exit(1)
		}
		if err := registry.Register(smsClient); err != nil {
			slog.Error("failed to register SMS channel", "error", err)
			os.Exit(1)
		}
		apiOpts = append(apiOpts, api.WithSMSReceiver(smsClient))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := registry.Start(ctx); err != nil {
		slog.Error("failed to start channel registry", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(st, engine)
	if err := sched.Start(); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(st, dispatch, apiOpts...)
	server.Start()

	slog.Info("OtterCoach running", "addr", *apiAddr, "whatsapp", *enableWhatsApp, "sms", *enableSMS)
	<-ctx.Done()
	slog.Info("shutting down")

	if err := server.Shutdown(context.Background()); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	sched.Stop()
	if err := registry.Stop(); err != nil {
		slog.Error("channel registry stop failed", "error", err)
	}
	slog.Info("OtterCoach exited")
}

// initializeLogger sets up structured logging.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and a
// .env file if present.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:        os.Getenv("OTTERCOACH_STATE_DIR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     os.Getenv("OPENAI_MODEL"),
		APIAddr:         os.Getenv("API_ADDR"),
		WhatsAppEnabled: util.ParseBoolEnv("WHATSAPP_ENABLED", true),
		SMSEnabled:      util.ParseBoolEnv("SMS_ENABLED", false),
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	return config
}

// openStore picks the backend by DSN shape; an empty DSN means SQLite in the
// state directory.
func openStore(dsn, stateDir string) (store.Store, error) {
	if dsn == "" {
		dsn = filepath.Join(stateDir, DefaultDBFileName)
	}
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}
