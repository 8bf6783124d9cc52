package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"
)

func main() {
	var (
		token     = flag.String("token", "", "Discord bot token")
		channelID = flag.String("channel", "", "Log channel ID")
		guildID   = flag.String("guild", "", "Guild ID commands are published to (optional)")
	)
	flag.Parse()

	if *token == "" || *channelID == "" {
		fmt.Println("Usage: go run test-discord.go -token YOUR_TOKEN -channel LOG_CHANNEL_ID [-guild GUILD_ID]")
		fmt.Println("\nThis script checks the bot setup before running Miyako.")
		fmt.Println("It will:")
		fmt.Println("  1. Connect to Discord and wait for the ready event")
		fmt.Println("  2. List the guilds the bot is in")
		fmt.Println("  3. Send a test embed to the log channel")
		fmt.Println("  4. List the slash commands currently published")
		os.Exit(1)
	}

	dg, err := discordgo.New("Bot " + *token)
	if err != nil {
		log.Fatal("Error creating Discord session: ", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	ready := make(chan *discordgo.Ready, 1)
	dg.AddHandlerOnce(func(s *discordgo.Session, r *discordgo.Ready) {
		ready <- r
	})

	if err := dg.Open(); err != nil {
		log.Fatal("❌ Error opening Discord connection: ", err)
	}
	defer dg.Close()

	var r *discordgo.Ready
	select {
	case r = <-ready:
	case <-time.After(30 * time.Second):
		log.Fatal("⏰ No ready event within 30 seconds, check the token and intents")
	}

	log.Printf("✅ Logged in as %s (ID: %s)", r.User.Username, r.User.ID)
	log.Printf("Guilds: %d", len(r.Guilds))
	for _, g := range r.Guilds {
		name := g.Name
		if guild, err := dg.Guild(g.ID); err == nil {
			name = guild.Name
		}
		log.Printf("  - %s (%s)", name, g.ID)
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🤖 ┃ Miyako 連線測試",
		Description: "如果您看得到這則訊息，代表機器人可以寫入日誌頻道。",
		Color:       0x00ff00,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if _, err := dg.ChannelMessageSendEmbed(*channelID, embed); err != nil {
		log.Printf("❌ Error sending to the log channel: %v", err)
		log.Printf("This might indicate:")
		log.Printf("  - Wrong channel ID")
		log.Printf("  - Bot doesn't have 'Send Messages' or 'Embed Links' permission")
		log.Printf("  - Bot isn't in the server")
	} else {
		log.Printf("✅ Test embed sent to the log channel")
	}

	cmds, err := dg.ApplicationCommands(r.User.ID, *guildID)
	if err != nil {
		log.Printf("❌ Error listing commands: %v", err)
	} else if len(cmds) == 0 {
		log.Printf("⚠️ No slash commands published yet, run miyako-bot -cmds register")
	} else {
		log.Printf("✅ %d slash commands published:", len(cmds))
		for _, c := range cmds {
			log.Printf("  /%s  %s", c.Name, c.Description)
		}
	}

	log.Printf("Discord test complete!")
}
