package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"miyako-bot/config"
	"miyako-bot/internal/command"
	"miyako-bot/internal/commands"
	"miyako-bot/internal/gateway/gatewaytest"
	"miyako-bot/internal/health"
	"miyako-bot/internal/history"
	"miyako-bot/internal/logsink"
	"miyako-bot/internal/models"
	"miyako-bot/internal/music"

	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Discord: config.DiscordConfig{Token: "test-token", ClientID: "app"},
		AI:      config.AIConfig{APIKey: "sk-test"},
		Health:  config.HealthConfig{Enabled: true, Path: "/health"},
		API: config.APIConfig{
			Hitokoto: "http://127.0.0.1:1/hitokoto",
			IPAPI:    "http://127.0.0.1:1/ip",
			MCStatus: "http://127.0.0.1:1/mc",
			Timeout:  time.Second,
		},
	}
	cfg.Commands.Chat.ArchiveDir = filepath.Join(dir, "chat")
	cfg.Commands.Chat.SystemPrompt = "你是 Miyako。"
	cfg.Commands.Chat.SessionLimit = 3
	cfg.Commands.Consult.ArchiveDir = filepath.Join(dir, "consult")
	cfg.Commands.Consult.SystemPrompt = "你是諮詢師。"
	cfg.Commands.Music.RefreshInterval = 10 * time.Second
	return cfg
}

func TestBuildDeps(t *testing.T) {
	cfg := testConfig(t)
	logger := zaptest.NewLogger(t)

	db, err := initDatabase(":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	fake := gatewaytest.NewFake()
	deps, player, err := buildDeps(cfg, fake, db, logsink.Nop{}, logger)
	if err != nil {
		t.Fatalf("Failed to build deps: %v", err)
	}
	defer player.Shutdown()

	if deps.ChatPrompt != "你是 Miyako。" || deps.ConsultPrompt != "你是諮詢師。" {
		t.Errorf("Expected configured prompts, got %q / %q", deps.ChatPrompt, deps.ConsultPrompt)
	}
	if deps.Player != player {
		t.Error("Expected the player to be shared with the command deps")
	}

	registry, err := command.NewRegistry(commands.All(deps)...)
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}
	if got := len(registry.Names()); got != 12 {
		t.Errorf("Expected 12 commands, got %d: %v", got, registry.Names())
	}

	server := health.NewServer(cfg, db, logger, health.Sources{
		Panels: map[string]health.PanelStats{"music": deps.MusicPanels, "consult": deps.ConsultPanels},
		Voice:  player,
	})

	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
}

func TestBuildDepsMissingPromptFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Commands.Chat.PromptFiles = []string{filepath.Join(t.TempDir(), "missing.txt")}
	cfg.Commands.Chat.SystemPrompt = ""

	logger := zaptest.NewLogger(t)
	db, err := initDatabase(":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	if _, _, err := buildDeps(cfg, gatewaytest.NewFake(), db, logsink.Nop{}, logger); err == nil {
		t.Error("Expected an error for a missing prompt file")
	}
}

func TestVoiceJoinerWithoutLiveSession(t *testing.T) {
	j := voiceJoiner(gatewaytest.NewFake())
	if j == nil {
		t.Fatal("Expected a joiner for a session without voice")
	}

	conn, err := j.JoinVoice("guild", "voice")
	if !errors.Is(err, errNoVoice) {
		t.Errorf("Expected errNoVoice, got %v", err)
	}
	if conn != nil {
		t.Errorf("Expected no connection, got %T", conn)
	}
}

func TestPlayWithoutVoice(t *testing.T) {
	cfg := testConfig(t)
	logger := zaptest.NewLogger(t)
	player := music.NewPlayer(cfg.Commands.Music, voiceJoiner(gatewaytest.NewFake()),
		music.NewDCAStreamer(cfg.Commands.Music.Volume, logger), logger)
	defer player.Shutdown()

	_, err := player.Play(context.Background(), "guild", "voice", &music.Track{Title: "A", URL: "a"})
	if !errors.Is(err, errNoVoice) {
		t.Errorf("Expected errNoVoice from Play, got %v", err)
	}
	if player.Sessions() != 0 {
		t.Errorf("Expected no voice session, got %d", player.Sessions())
	}
}

func TestHandleAuditCommand(t *testing.T) {
	logger := zaptest.NewLogger(t)
	db, err := initDatabase(":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	// Empty log
	if err := handleAuditCommand(nil, db); err != nil {
		t.Errorf("Expected no error on an empty log, got %v", err)
	}

	entries := []models.CommandLog{
		{Command: "ping", Kind: "slash", UserID: "user", Outcome: "ok", DurationMs: 12},
		{Command: "music_skip", Kind: "button", UserID: "user", Outcome: "user_input", DurationMs: 3},
	}
	if err := db.Create(&entries).Error; err != nil {
		t.Fatalf("Failed to insert command logs: %v", err)
	}

	if err := handleAuditCommand([]string{"1"}, db); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	for _, bad := range []string{"0", "-3", "ten"} {
		if err := handleAuditCommand([]string{bad}, db); err == nil {
			t.Errorf("Expected an error for count %q", bad)
		}
	}
}

func TestHandleHistoryCommand(t *testing.T) {
	cfg := testConfig(t)
	logger := zaptest.NewLogger(t)

	store, err := history.NewStore(cfg.Commands.Consult.ArchiveDir, history.NewCounter(0), logger)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := store.Save("user", []history.Message{{Role: "user", Content: "你好"}}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	if err := handleHistoryCommand([]string{"list", "consult"}, cfg, logger); err != nil {
		t.Errorf("Expected list to succeed, got %v", err)
	}
	if err := handleHistoryCommand([]string{"show", "user", "consult"}, cfg, logger); err != nil {
		t.Errorf("Expected show to succeed, got %v", err)
	}
	if err := handleHistoryCommand([]string{"show", "user"}, cfg, logger); err != nil {
		t.Errorf("Expected an empty chat transcript, got %v", err)
	}
	if err := handleHistoryCommand([]string{"show", "../etc"}, cfg, logger); err == nil {
		t.Error("Expected an invalid user id to be rejected")
	}
	if err := handleHistoryCommand([]string{"show"}, cfg, logger); err == nil {
		t.Error("Expected a usage error without a user id")
	}
	if err := handleHistoryCommand([]string{"rename"}, cfg, logger); err == nil {
		t.Error("Expected an error for an unknown subcommand")
	}
	if err := handleHistoryCommand(nil, cfg, logger); err == nil {
		t.Error("Expected an error without a subcommand")
	}
}

func TestHandleCommandsCommand(t *testing.T) {
	cfg := testConfig(t)

	if err := handleCommandsCommand([]string{"list"}, cfg); err != nil {
		t.Errorf("Expected list to succeed, got %v", err)
	}

	cfg.Discord.ClientID = ""
	if err := handleCommandsCommand([]string{"register"}, cfg); err == nil {
		t.Error("Expected register to fail without a client id")
	}
	if err := handleCommandsCommand([]string{"sync"}, cfg); err == nil {
		t.Error("Expected an error for an unknown subcommand")
	}
}
