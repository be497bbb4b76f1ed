package handlers

import (
	"context"
	"time"

	"proxy-bot/bot"
	"proxy-bot/model"
	"proxy-bot/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const deleteTimeout = 10 * time.Second

func Register(b *bot.Bot) {
	logger := b.Logger.Named("gateway")

	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("Logged in",
			zap.String("user", r.User.Username),
			zap.Int("guilds", len(r.Guilds)))
	})
	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		ev, ok := toMessageCreated(m.Message)
		if !ok {
			return
		}
		if !b.Orchestrator.Dispatch(ev) {
			logger.Debug("Dropped message during shutdown", zap.Int64("message", ev.ID))
		}
	})
	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageDelete) {
		if m.Message == nil {
			return
		}
		handleDeleted(b, logger, m.ChannelID, []string{m.ID})
	})
	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageDeleteBulk) {
		handleDeleted(b, logger, m.ChannelID, m.Messages)
	})
}

func handleDeleted(b *bot.Bot, logger *zap.Logger, channel string, ids []string) {
	ev, err := toMessageDeleted(channel, ids)
	if err != nil {
		logger.Warn("Ignoring malformed delete event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	b.Orchestrator.HandleDeleted(ctx, ev)
}

// toMessageCreated converts a gateway message. Messages from bots, webhooks
// and direct messages, and system messages, are skipped.
func toMessageCreated(m *discordgo.Message) (model.MessageCreated, bool) {
	if m == nil || m.Author == nil || m.Author.Bot || m.WebhookID != "" || m.GuildID == "" {
		return model.MessageCreated{}, false
	}
	if m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply {
		return model.MessageCreated{}, false
	}

	ids, err := utils.ParseIDs([]string{m.ID, m.ChannelID, m.GuildID, m.Author.ID})
	if err != nil {
		return model.MessageCreated{}, false
	}
	ev := model.MessageCreated{
		ID:        ids[0],
		ChannelID: ids[1],
		GuildID:   ids[2],
		AuthorID:  ids[3],
		Content:   m.Content,
	}
	for _, a := range m.Attachments {
		id, err := utils.ParseID(a.ID)
		if err != nil {
			return model.MessageCreated{}, false
		}
		ev.Attachments = append(ev.Attachments, model.Attachment{
			ID:          id,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			URL:         a.URL,
			Size:        a.Size,
		})
	}
	return ev, true
}

func toMessageDeleted(channel string, ids []string) (model.MessageDeleted, error) {
	channelID, err := utils.ParseID(channel)
	if err != nil {
		return model.MessageDeleted{}, err
	}
	parsed, err := utils.ParseIDs(ids)
	if err != nil {
		return model.MessageDeleted{}, err
	}
	return model.MessageDeleted{ChannelID: channelID, IDs: parsed}, nil
}
