package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"miyako-bot/internal/apperr"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"
	"miyako-bot/internal/music"
	"miyako-bot/internal/panel"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	musicPlayButton   = "music_play_button"
	musicRepeatButton = "music_repeat_button"
	musicPauseButton  = "music_pause_button"
	musicSkipButton   = "music_skip_button"
	musicPlayModal    = "music_play_modal"
)

const noResultsMessage = "沒有找到結果… 再試一次？\n" +
	"-# 由於機器人伺服器位置與您所在地可能不同，導致受到地區限制，建議更換關鍵字或使用其他連結。"

func (d *Deps) music() *command.Descriptor {
	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:              "music",
			NameLocalizations: localized("音樂"),
			Description:       "召喚一個音樂控制面板到目前頻道",
		},
		Handler: d.handleMusic,
		Buttons: map[string]command.Handler{
			musicPlayButton:   d.handleMusicPlayButton,
			musicRepeatButton: d.handleMusicRepeat,
			musicPauseButton:  d.handleMusicPause,
			musicSkipButton:   d.handleMusicSkip,
		},
		Modals: map[string]command.Handler{musicPlayModal: d.handleMusicPlayModal},
	}
}

// MusicView renders the guild's music panel. The activity is ongoing while
// a track is loaded.
func (d *Deps) MusicView(guildID string) panel.RenderFunc {
	return func() (panel.View, bool) {
		cfg := d.Config.Commands.Music
		state, _ := d.Player.Snapshot(guildID)

		embed := d.embed(fmt.Sprintf("%s ┃ 音樂控制面板", cfg.Emoji))
		if t := state.Current; t != nil {
			if t.Thumbnail != "" {
				embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.Thumbnail}
			}
			embed.Description = fmt.Sprintf("**[%s](%s)**\n%s", t.Title, t.URL, music.ProgressBar(cfg.ProgressBar, state.Elapsed, t.Duration))
			if list := queuePreview(state.Upcoming, cfg.QueuePreview); list != "" {
				embed.Fields = []*discordgo.MessageEmbedField{{Name: "待播清單", Value: truncateField(list)}}
			}
		} else {
			embed.Description = "**目前沒有播放中的音樂**"
		}

		return panel.View{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: d.musicButtons(state),
		}, state.Playing()
	}
}

func queuePreview(upcoming []*music.Track, limit int) string {
	if len(upcoming) == 0 {
		return ""
	}
	if limit <= 0 {
		limit = 5
	}
	var b strings.Builder
	for i, t := range upcoming {
		if i == limit {
			fmt.Fprintf(&b, "-# 還有 %d 首歌曲在序列中…", len(upcoming)-limit)
			break
		}
		fmt.Fprintf(&b, "- [%s](%s)\n", t.Title, t.URL)
	}
	return b.String()
}

func (d *Deps) musicButtons(state music.State) []discordgo.MessageComponent {
	icons := d.Config.Commands.Music.Buttons

	repeatStyle := discordgo.SecondaryButton
	if state.Repeat {
		repeatStyle = discordgo.SuccessButton
	}
	pauseLabel, pauseIcon := "暫停", icons.Pause
	if state.Paused {
		pauseLabel, pauseIcon = "繼續", icons.Resume
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: musicPlayButton, Label: "點播音樂", Style: discordgo.PrimaryButton, Emoji: emoji(icons.Play)},
			discordgo.Button{CustomID: musicRepeatButton, Label: "重複播放", Style: repeatStyle, Emoji: emoji(icons.Repeat)},
			discordgo.Button{CustomID: musicPauseButton, Label: pauseLabel, Style: discordgo.SecondaryButton, Emoji: emoji(pauseIcon)},
			discordgo.Button{CustomID: musicSkipButton, Label: "跳過", Style: discordgo.SecondaryButton, Emoji: emoji(icons.Skip)},
		}},
	}
}

func emoji(name string) *discordgo.ComponentEmoji {
	if name == "" {
		return nil
	}
	return &discordgo.ComponentEmoji{Name: name}
}

// MusicChanged refreshes the guild's panel after the player moves on
func (d *Deps) MusicChanged(guildID string) {
	if err := d.MusicPanels.UpdatePanel(context.Background(), guildID, d.MusicView(guildID)); err != nil {
		d.Logger.Warn("Failed to update music panel", zap.String("guild", guildID), zap.Error(err))
	}
}

func (d *Deps) handleMusic(ctx context.Context, it *gateway.Interaction) error {
	if err := it.Defer(true); err != nil {
		return err
	}
	if _, err := d.MusicPanels.CreatePanel(ctx, it.GuildID, it.ChannelID, d.MusicView(it.GuildID)); err != nil {
		return apperr.Externalf(err, "無法在目前頻道建立音樂控制面板")
	}
	d.Replies.InfoReply(it, "**已召喚一個音樂控制面板到目前頻道！**")
	return nil
}

func (d *Deps) handleMusicPlayButton(_ context.Context, it *gateway.Interaction) error {
	return it.ShowModal(musicPlayModal, "點播音樂", &discordgo.TextInput{
		CustomID:    "songInput",
		Label:       "音樂連結或關鍵字",
		Style:       discordgo.TextInputShort,
		Placeholder: "例如: https://youtu.be/... 或 歌曲名稱",
		MaxLength:   100,
		Required:    true,
	})
}

// musicControl applies a player control then acknowledges the click. With
// nothing playing the click is acknowledged silently.
func (d *Deps) musicControl(ctx context.Context, it *gateway.Interaction, apply func(guildID string) error) error {
	if err := apply(it.GuildID); err != nil {
		if errors.Is(err, music.ErrNothingPlaying) {
			return it.DeferUpdate()
		}
		return err
	}
	if err := d.MusicPanels.UpdatePanel(ctx, it.GuildID, d.MusicView(it.GuildID)); err != nil {
		d.Logger.Warn("Failed to update music panel", zap.String("guild", it.GuildID), zap.Error(err))
	}
	return it.DeferUpdate()
}

func (d *Deps) handleMusicRepeat(ctx context.Context, it *gateway.Interaction) error {
	return d.musicControl(ctx, it, func(guildID string) error {
		_, err := d.Player.ToggleRepeat(guildID)
		return err
	})
}

func (d *Deps) handleMusicPause(ctx context.Context, it *gateway.Interaction) error {
	return d.musicControl(ctx, it, func(guildID string) error {
		_, err := d.Player.TogglePause(guildID)
		return err
	})
}

func (d *Deps) handleMusicSkip(ctx context.Context, it *gateway.Interaction) error {
	return d.musicControl(ctx, it, d.Player.Skip)
}

func (d *Deps) handleMusicPlayModal(ctx context.Context, it *gateway.Interaction) error {
	if err := it.Defer(true); err != nil {
		return err
	}

	voiceChannel, ok := it.Session().VoiceChannel(it.GuildID, it.UserID())
	if !ok {
		return apperr.UserInputf("請先加入一個語音頻道！")
	}

	track, err := d.Tracks.Resolve(ctx, it.ModalValue("songInput"), it.Caller().Username)
	if err != nil {
		if errors.Is(err, music.ErrNoResults) {
			return apperr.Wrap(apperr.UserInput, noResultsMessage, err)
		}
		return apperr.Externalf(err, noResultsMessage)
	}

	if _, err := d.Player.Play(ctx, it.GuildID, voiceChannel, track); err != nil {
		return apperr.Externalf(err, "我無法加入語音頻道… 再試一次？")
	}

	d.Replies.InfoReply(it, fmt.Sprintf("**載入 [%s](%s) 到序列中…**", track.Title, track.URL))

	if _, err := d.MusicPanels.CreatePanel(ctx, it.GuildID, it.ChannelID, d.MusicView(it.GuildID)); err != nil {
		d.Logger.Warn("Failed to recreate music panel", zap.String("guild", it.GuildID), zap.Error(err))
	}
	return nil
}
