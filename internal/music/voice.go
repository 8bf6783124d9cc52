package music

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DiscordVoice joins voice channels through a discordgo session
type DiscordVoice struct {
	Session *discordgo.Session
}

func (d DiscordVoice) JoinVoice(guildID, channelID string) (VoiceConn, error) {
	vc, err := d.Session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel %s: %w", channelID, err)
	}
	return &discordConn{vc: vc}, nil
}

type discordConn struct {
	vc *discordgo.VoiceConnection
}

func (c *discordConn) Speaking(on bool) error {
	return c.vc.Speaking(on)
}

func (c *discordConn) Send(ctx context.Context, frame []byte) error {
	// The gateway drains OpusSend at one frame per 20ms; a stalled
	// connection must not block playback forever
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()

	select {
	case c.vc.OpusSend <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("voice connection stalled")
	}
}

func (c *discordConn) Disconnect() error {
	return c.vc.Disconnect()
}
