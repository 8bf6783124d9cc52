package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"miyako-bot/config"
	"miyako-bot/internal/command"
	"miyako-bot/internal/commands"
	"miyako-bot/internal/discord"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/health"
	"miyako-bot/internal/history"
	"miyako-bot/internal/hitokoto"
	"miyako-bot/internal/ipapi"
	"miyako-bot/internal/llm"
	"miyako-bot/internal/logsink"
	"miyako-bot/internal/mcstatus"
	"miyako-bot/internal/models"
	"miyako-bot/internal/modules"
	"miyako-bot/internal/music"
	"miyako-bot/internal/panel"
	"miyako-bot/internal/reply"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	var (
		configPath   = flag.String("config", "config.yaml", "Path to configuration file")
		commandsPath = flag.String("commands", "commands.yaml", "Path to commands configuration file")
		modulesPath  = flag.String("modules", "modules.yaml", "Path to modules configuration file")
		envPath      = flag.String("env", ".env", "Path to environment file")
		debug        = flag.Bool("debug", false, "Enable debug logging")
		historyCmd   = flag.String("history", "", "History command (list, show, delete)")
		commandsCmd  = flag.String("cmds", "", "Slash command maintenance (list, register, clear)")
		auditCmd     = flag.Bool("audit", false, "Print recent command log entries then exit")
	)
	flag.Parse()

	args := flag.Args()

	// Initialize logger
	var logger *zap.Logger
	var err error

	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}

	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load environment file", zap.String("path", *envPath), zap.Error(err))
	}

	logger.Info("Starting Miyako", zap.String("config", *configPath))

	// Load configuration
	cfg, err := config.LoadConfig(*configPath, *commandsPath, *modulesPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded successfully",
		zap.Int("models", len(cfg.Commands.Chat.Models)),
		zap.Bool("keywords", cfg.Modules.Keywords.Enabled),
		zap.String("guild", cfg.Discord.GuildID),
	)

	// Handle CLI commands
	if *historyCmd != "" {
		cmdArgs := append([]string{*historyCmd}, args...)
		if err := handleHistoryCommand(cmdArgs, cfg, logger); err != nil {
			logger.Fatal("History command failed", zap.Error(err))
		}
		return
	}

	if *commandsCmd != "" {
		cmdArgs := append([]string{*commandsCmd}, args...)
		if err := handleCommandsCommand(cmdArgs, cfg); err != nil {
			logger.Fatal("Commands command failed", zap.Error(err))
		}
		return
	}

	// Initialize database
	db, err := initDatabase(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	if *auditCmd {
		if err := handleAuditCommand(args, db); err != nil {
			logger.Fatal("Audit command failed", zap.Error(err))
		}
		return
	}

	if cfg.Discord.Token == "" {
		logger.Fatal("Discord token is not configured (set discord.token or DISCORD_TOKEN)")
	}

	session, err := discord.NewSession(cfg.Discord)
	if err != nil {
		logger.Fatal("Failed to initialize Discord session", zap.Error(err))
	}
	gw := gateway.FromSession(session)

	sink := logsink.NewSink(gw, cfg.Logger.ChannelID, cfg.Logger.UTCOffset, cfg.Logger.QueueSize, logger.Named("logsink"))

	deps, player, err := buildDeps(cfg, gw, db, sink, logger)
	if err != nil {
		logger.Fatal("Failed to initialize commands", zap.Error(err))
	}
	player.OnChange(deps.MusicChanged)

	registry, err := command.NewRegistry(commands.All(deps)...)
	if err != nil {
		logger.Fatal("Failed to build command registry", zap.Error(err))
	}
	router := command.NewRouter(registry, gw, deps.Replies, sink, db, logger.Named("router"), cfg.Discord.HandlerTimeout)

	bot := discord.NewBot(session, cfg, logger, discord.Options{
		Registry: registry,
		Router:   router,
		Modules:  modules.New(cfg, gw, sink, logger.Named("modules")),
		Sink:     sink,
		Quotes:   deps.Quotes,
		Panels:   []*panel.Manager{deps.MusicPanels, deps.ConsultPanels},
		OnStop:   []func(){player.Shutdown},
	})

	// Initialize health server
	healthServer := health.NewServer(cfg, db, logger, health.Sources{
		Router: router,
		Panels: map[string]health.PanelStats{"music": deps.MusicPanels, "consult": deps.ConsultPanels},
		Sink:   sink,
		Voice:  player,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start services
	logger.Info("Starting services...")

	if err := healthServer.Start(ctx); err != nil {
		logger.Fatal("Failed to start health server", zap.Error(err))
	}

	if err := bot.Start(ctx); err != nil {
		logger.Fatal("Failed to start Discord bot", zap.Error(err))
	}
	defer bot.Stop()

	logger.Info("All services started successfully", zap.Int("commands", len(registry.Names())))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received, stopping services...")

	cancel() // This will stop all services
	logger.Info("Miyako stopped")
}

// buildDeps wires the adapters, stores and panels the command handlers use
func buildDeps(cfg *config.Config, gw gateway.Session, db *gorm.DB, sink logsink.Logger, logger *zap.Logger) (*commands.Deps, *music.Player, error) {
	chatCfg, consultCfg := cfg.Commands.Chat, cfg.Commands.Consult

	chatStore, err := history.NewStore(chatCfg.ArchiveDir, history.NewCounter(chatCfg.SessionLimit), logger.Named("chat"))
	if err != nil {
		return nil, nil, err
	}
	consultStore, err := history.NewStore(consultCfg.ArchiveDir, history.NewCounter(consultCfg.SessionLimit), logger.Named("consult"))
	if err != nil {
		return nil, nil, err
	}

	chatPrompt, err := history.LoadPrompts(chatCfg.PromptFiles, chatCfg.SystemPrompt)
	if err != nil {
		return nil, nil, err
	}
	consultPrompt, err := history.LoadPrompts(consultCfg.PromptFiles, consultCfg.SystemPrompt)
	if err != nil {
		return nil, nil, err
	}

	quotes, err := hitokoto.NewClient(cfg.API.Hitokoto, cfg.API.Timeout, logger.Named("hitokoto"))
	if err != nil {
		return nil, nil, err
	}

	musicCfg := cfg.Commands.Music
	player := music.NewPlayer(musicCfg, voiceJoiner(gw),
		music.NewDCAStreamer(musicCfg.Volume, logger.Named("stream")),
		logger.Named("player"))

	deps := &commands.Deps{
		Config:        cfg,
		Replies:       reply.NewFormatter(cfg.Embed, cfg.About, logger.Named("reply")),
		Sink:          sink,
		Logger:        logger.Named("commands"),
		Chat:          chatStore,
		Consult:       consultStore,
		ChatPrompt:    chatPrompt,
		ConsultPrompt: consultPrompt,
		Models:        llm.NewClient(cfg.AI, logger.Named("llm")),
		Quotes:        quotes,
		IPs:           ipapi.NewClient(cfg.API.IPAPI, cfg.API.Timeout, logger.Named("ipapi")),
		Servers:       mcstatus.NewClient(cfg.API.MCStatus, cfg.API.Timeout, logger.Named("mcstatus")),
		Tracks:        music.NewResolver(logger.Named("resolver")),
		Player:        player,
		MusicPanels:   panel.NewManager("music", gw, db, logger.Named("panel"), musicCfg.RefreshInterval),
		ConsultPanels: panel.NewManager("consult", gw, db, logger.Named("panel"), time.Hour),
	}
	return deps, player, nil
}

// errNoVoice is returned when the session cannot carry voice
var errNoVoice = errors.New("voice is not available on this session")

// noVoice refuses every join
type noVoice struct{}

func (noVoice) JoinVoice(guildID, channelID string) (music.VoiceConn, error) {
	return nil, errNoVoice
}

// voiceJoiner joins voice through the live session behind gw
func voiceJoiner(gw gateway.Session) music.VoiceJoiner {
	if d, ok := gw.(*gateway.Discord); ok {
		return music.DiscordVoice{Session: d.S}
	}
	return noVoice{}
}

// initDatabase initializes the database connection and creates tables
func initDatabase(dbPath string, logger *zap.Logger) (*gorm.DB, error) {
	logger.Info("Initializing database", zap.String("path", dbPath))

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize tables
	if err := models.InitDB(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}

	logger.Info("Database initialized successfully")
	return db, nil
}
