package commands

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"miyako-bot/internal/apperr"
	"miyako-bot/internal/command"
	"miyako-bot/internal/gateway"

	"github.com/bwmarrin/discordgo"
)

const timestampModal = "timestamp_modal"

var (
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockPattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)
	zonePattern  = regexp.MustCompile(`^[+-]?\d{1,2}$`)
)

var (
	errDateFormat  = apperr.UserInputf("日期格式錯誤，請使用 YYYY-MM-DD，例如：2020-03-24")
	errClockFormat = apperr.UserInputf("時間格式錯誤，請使用 HH:MM:SS，例如：23:59:59")
	errZoneFormat  = apperr.UserInputf("時區格式錯誤，請輸入類似 +8、-5")
	errZoneRange   = apperr.UserInputf("時區超出範圍，請輸入 -12 ~ +14 之間的數字")
)

func (d *Deps) timestamp() *command.Descriptor {
	return &command.Descriptor{
		Definition: &discordgo.ApplicationCommand{
			Name:              "timestamp",
			NameLocalizations: localized("時間戳"),
			Description:       "產生可在訊息中顯示本地時間的時間戳語法",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:              discordgo.ApplicationCommandOptionSubCommand,
					Name:              "now",
					NameLocalizations: *localized("現在時間"),
					Description:       "取得現在時間的時間戳",
				},
				{
					Type:              discordgo.ApplicationCommandOptionSubCommand,
					Name:              "custom",
					NameLocalizations: *localized("指定時間"),
					Description:       "輸入日期與時間以取得時間戳",
				},
			},
		},
		Handler: d.handleTimestamp,
		Modals:  map[string]command.Handler{timestampModal: d.handleTimestampModal},
	}
}

func (d *Deps) handleTimestamp(_ context.Context, it *gateway.Interaction) error {
	sub, _ := it.Subcommand()
	if sub == "custom" {
		return it.ShowModal(timestampModal, "輸入指定時間",
			&discordgo.TextInput{
				CustomID:    "dateInput",
				Label:       "日期 (YYYY-MM-DD)",
				Style:       discordgo.TextInputShort,
				Placeholder: "例如：2020-03-24",
				MaxLength:   10,
				Required:    true,
			},
			&discordgo.TextInput{
				CustomID:    "timeInput",
				Label:       "時間 (HH:MM:SS)",
				Style:       discordgo.TextInputShort,
				Placeholder: "例如：23:59:59",
				MaxLength:   8,
				Required:    true,
			},
			&discordgo.TextInput{
				CustomID:    "timezoneInput",
				Label:       fmt.Sprintf("您的時區 (UTC±X，不填則預設為 %s)", formatOffset(d.Config.Commands.Timestamp.DefaultOffset)),
				Style:       discordgo.TextInputShort,
				Placeholder: "例如：+8",
				MaxLength:   3,
				Required:    false,
			},
		)
	}

	return respondEmbeds(it, true, d.timestampEmbed("現在時間", d.now()))
}

func (d *Deps) handleTimestampModal(_ context.Context, it *gateway.Interaction) error {
	t, err := parseTimestamp(
		it.ModalValue("dateInput"),
		it.ModalValue("timeInput"),
		it.ModalValue("timezoneInput"),
		d.Config.Commands.Timestamp.DefaultOffset,
	)
	if err != nil {
		return err
	}
	return respondEmbeds(it, true, d.timestampEmbed("指定時間", t))
}

func (d *Deps) timestampEmbed(label string, t time.Time) *discordgo.MessageEmbed {
	token := fmt.Sprintf("<t:%d>", t.Unix())
	embed := d.embed(fmt.Sprintf("%s ┃ 時間戳 - %s", d.Config.Commands.Timestamp.Emoji, label))
	embed.Description = token
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "桌面端可直接從下方複製語法", Value: "```\n" + token + "\n```"},
	}
	return embed
}

// parseTimestamp reads a wall clock time at a whole-hour UTC offset. An
// empty zone uses defaultOffset.
func parseTimestamp(date, clock, zone string, defaultOffset int) (time.Time, error) {
	date, clock, zone = strings.TrimSpace(date), strings.TrimSpace(clock), strings.TrimSpace(zone)

	if !datePattern.MatchString(date) {
		return time.Time{}, errDateFormat
	}
	if !clockPattern.MatchString(clock) {
		return time.Time{}, errClockFormat
	}

	offset := defaultOffset
	if zone != "" {
		if !zonePattern.MatchString(zone) {
			return time.Time{}, errZoneFormat
		}
		n, err := strconv.Atoi(zone)
		if err != nil {
			return time.Time{}, errZoneFormat
		}
		offset = n
	}
	if offset < -12 || offset > 14 {
		return time.Time{}, errZoneRange
	}

	loc := time.FixedZone(formatOffset(offset), offset*3600)
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return time.Time{}, errDateFormat
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, errClockFormat
	}
	return t, nil
}

func formatOffset(offset int) string {
	if offset >= 0 {
		return fmt.Sprintf("UTC+%d", offset)
	}
	return fmt.Sprintf("UTC%d", offset)
}
