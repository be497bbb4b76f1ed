package utils

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"proxy-bot/model"

	"github.com/bwmarrin/discordgo"
)

type LogLevel string

const (
	Info  LogLevel = "INFO"
	Warn  LogLevel = "WARN"
	Error LogLevel = "ERROR"
)

// maxEmbedDescription is the platform limit for an embed description.
const maxEmbedDescription = 4096

func getColor(level LogLevel) int {
	switch level {
	case Info:
		return 3066993 // Green
	case Warn:
		return 15105570 // Orange
	case Error:
		return 15158332 // Red
	default:
		return 3447003 // Blue
	}
}

// MessageLink returns the jump link of a guild message.
func MessageLink(guildID, channelID, messageID int64) string {
	return fmt.Sprintf("https://discord.com/channels/%d/%d/%d", guildID, channelID, messageID)
}

// BuildLogEmbed renders the log-channel entry of a relayed message. Entries
// without an original are colored as warnings; otherwise the member color
// wins when it parses.
func BuildLogEmbed(entry model.LogEntry) *discordgo.MessageEmbed {
	level := Info
	if entry.OriginalID == 0 {
		level = Warn
	}

	color := getColor(level)
	if member, ok := ParseHexColor(entry.Color); ok && level == Info {
		color = member
	}

	content := entry.Content
	if utf8.RuneCountInString(content) > maxEmbedDescription {
		content = string([]rune(content)[:maxEmbedDescription-1]) + "…"
	}

	footer := []string{
		"System ID: " + entry.SystemHID,
		"Member ID: " + entry.MemberHID,
		fmt.Sprintf("Sender: %d", entry.SenderID),
		fmt.Sprintf("Message ID: %d", entry.RelayedID),
	}
	if entry.OriginalID != 0 {
		footer = append(footer, fmt.Sprintf("Original Message ID: %d", entry.OriginalID))
	}

	embed := &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name:    fmt.Sprintf("%s (%s)", entry.MemberName, entry.SystemName),
			IconURL: entry.AvatarURL,
		},
		Description: content,
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Channel", Value: fmt.Sprintf("<#%d>", entry.ChannelID), Inline: true},
			{Name: "Message", Value: fmt.Sprintf("[Jump](%s)", MessageLink(entry.GuildID, entry.ChannelID, entry.RelayedID)), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: strings.Join(footer, " | ")},
		Timestamp: model.SnowflakeTime(entry.RelayedID).Format(time.RFC3339),
	}
	if entry.Attachments > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Attachments",
			Value:  fmt.Sprintf("%d", entry.Attachments),
			Inline: true,
		})
	}
	return embed
}
