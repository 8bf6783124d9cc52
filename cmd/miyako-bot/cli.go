package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"miyako-bot/config"
	"miyako-bot/internal/command"
	"miyako-bot/internal/commands"
	"miyako-bot/internal/discord"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/history"
	"miyako-bot/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CLI commands for offline history and command maintenance

func handleHistoryCommand(args []string, cfg *config.Config, logger *zap.Logger) error {
	if len(args) < 1 {
		return fmt.Errorf("history command requires a subcommand (list, show, delete)")
	}

	store, err := openHistory(args[1:], cfg, logger)
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		return handleHistoryList(store)
	case "show":
		return handleHistoryShow(args[1:], store)
	case "delete":
		return handleHistoryDelete(args[1:], store)
	default:
		return fmt.Errorf("unknown history command: %s", args[0])
	}
}

// openHistory opens the chat store, or the consult store when the last
// argument is "consult"
func openHistory(args []string, cfg *config.Config, logger *zap.Logger) (*history.Store, error) {
	dir := cfg.Commands.Chat.ArchiveDir
	if len(args) > 0 && args[len(args)-1] == "consult" {
		dir = cfg.Commands.Consult.ArchiveDir
	}
	store, err := history.NewStore(dir, history.NewCounter(0), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	return store, nil
}

func handleHistoryList(store *history.Store) error {
	users, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list transcripts: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No transcripts found")
		return nil
	}

	fmt.Printf("%-22s %-8s\n", "USER", "ENTRIES")
	fmt.Println(strings.Repeat("-", 32))

	for _, user := range users {
		messages, err := store.Get(user)
		if err != nil {
			fmt.Printf("%-22s %-8s\n", user, "error")
			continue
		}
		fmt.Printf("%-22s %-8d\n", user, len(messages))
	}

	return nil
}

func handleHistoryShow(args []string, store *history.Store) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: history show <user-id> [chat|consult]")
	}

	messages, err := store.Get(args[0])
	if err != nil {
		return err
	}

	if len(messages) == 0 {
		fmt.Println("Transcript is empty")
		return nil
	}

	for _, m := range messages {
		fmt.Printf("[%s]\n%s\n\n", m.Role, m.Content)
	}
	return nil
}

func handleHistoryDelete(args []string, store *history.Store) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: history delete <user-id> [chat|consult]")
	}

	fmt.Printf("This will delete the transcript of %s\n", args[0])
	fmt.Print("Are you sure? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)

	if confirm != "yes" {
		fmt.Println("Delete cancelled")
		return nil
	}

	if err := store.Delete(args[0]); err != nil {
		return err
	}
	fmt.Println("✅ Transcript deleted")
	return nil
}

func handleCommandsCommand(args []string, cfg *config.Config) error {
	if len(args) < 1 {
		return fmt.Errorf("commands command requires a subcommand (list, register, clear)")
	}

	registry, err := command.NewRegistry(commands.All(&commands.Deps{Config: cfg})...)
	if err != nil {
		return fmt.Errorf("failed to build command registry: %w", err)
	}

	switch args[0] {
	case "list":
		return handleCommandsList(registry)
	case "register":
		return handleCommandsRegister(registry, cfg)
	case "clear":
		return handleCommandsClear(cfg)
	default:
		return fmt.Errorf("unknown commands command: %s", args[0])
	}
}

func handleCommandsList(registry *command.Registry) error {
	fmt.Printf("%-12s %-8s %s\n", "NAME", "OPTIONS", "DESCRIPTION")
	fmt.Println(strings.Repeat("-", 72))

	for _, def := range registry.Definitions() {
		fmt.Printf("%-12s %-8d %s\n", def.Name, len(def.Options), def.Description)
	}
	return nil
}

// restSession returns a session usable for REST calls without connecting
// to the gateway
func restSession(cfg *config.Config) (gateway.Session, error) {
	if cfg.Discord.Token == "" || cfg.Discord.ClientID == "" {
		return nil, fmt.Errorf("discord token and client id are required")
	}
	session, err := discord.NewSession(cfg.Discord)
	if err != nil {
		return nil, err
	}
	return gateway.FromSession(session), nil
}

func handleCommandsRegister(registry *command.Registry, cfg *config.Config) error {
	session, err := restSession(cfg)
	if err != nil {
		return err
	}

	n, err := registry.Publish(session, cfg.Discord.ClientID, cfg.Discord.GuildID)
	if err != nil {
		return err
	}

	scope := "globally"
	if cfg.Discord.GuildID != "" {
		scope = "to guild " + cfg.Discord.GuildID
	}
	fmt.Printf("✅ Registered %d commands %s\n", n, scope)
	return nil
}

func handleCommandsClear(cfg *config.Config) error {
	session, err := restSession(cfg)
	if err != nil {
		return err
	}

	if err := command.Clear(session, cfg.Discord.ClientID, cfg.Discord.GuildID); err != nil {
		return err
	}
	fmt.Println("✅ All commands removed")
	return nil
}

func handleAuditCommand(args []string, db *gorm.DB) error {
	limit := 20
	if len(args) >= 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("usage: -audit [count]")
		}
		limit = n
	}

	var logs []models.CommandLog
	if err := db.Order("created_at desc").Limit(limit).Find(&logs).Error; err != nil {
		return fmt.Errorf("failed to read command log: %w", err)
	}

	if len(logs) == 0 {
		fmt.Println("No commands recorded")
		return nil
	}

	fmt.Printf("%-20s %-24s %-7s %-20s %-12s %s\n", "TIME", "COMMAND", "KIND", "USER", "OUTCOME", "DURATION")
	fmt.Println(strings.Repeat("-", 100))

	for _, l := range logs {
		fmt.Printf("%-20s %-24s %-7s %-20s %-12s %s\n",
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			l.Command,
			l.Kind,
			l.UserID,
			l.Outcome,
			time.Duration(l.DurationMs)*time.Millisecond,
		)
	}
	return nil
}
