package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"proxy-bot/model"
	"proxy-bot/proxy"
	"proxy-bot/utils"

	"github.com/bwmarrin/discordgo"
)

// Platform implements proxy.Platform on a discordgo session.
type Platform struct {
	session *discordgo.Session
}

var _ proxy.Platform = (*Platform)(nil)

func NewPlatform(session *discordgo.Session) *Platform {
	return &Platform{session: session}
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID int64) error {
	err := p.session.ChannelMessageDelete(utils.FormatID(channelID), utils.FormatID(messageID), discordgo.WithContext(ctx))
	return translateError(err)
}

func (p *Platform) CreateChannelWebhook(ctx context.Context, channelID int64, name string) (model.Webhook, error) {
	hook, err := p.session.WebhookCreate(utils.FormatID(channelID), name, "", discordgo.WithContext(ctx))
	if err != nil {
		return model.Webhook{}, translateError(err)
	}
	id, err := utils.ParseID(hook.ID)
	if err != nil {
		return model.Webhook{}, err
	}
	return model.Webhook{ChannelID: channelID, ID: id, Token: hook.Token}, nil
}

func (p *Platform) ExecuteWebhook(ctx context.Context, hook model.Webhook, msg model.WebhookMessage) (int64, error) {
	params := &discordgo.WebhookParams{
		Content:   msg.Content,
		Username:  msg.Username,
		AvatarURL: msg.AvatarURL,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{
				discordgo.AllowedMentionTypeUsers,
				discordgo.AllowedMentionTypeRoles,
			},
		},
	}
	for _, f := range msg.Files {
		params.Files = append(params.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}

	sent, err := p.session.WebhookExecute(utils.FormatID(hook.ID), hook.Token, true, params, discordgo.WithContext(ctx))
	if err != nil {
		return 0, translateError(err)
	}
	return utils.ParseID(sent.ID)
}

func (p *Platform) SendLogEntry(ctx context.Context, logChannelID int64, entry model.LogEntry) error {
	_, err := p.session.ChannelMessageSendEmbed(utils.FormatID(logChannelID), utils.BuildLogEmbed(entry), discordgo.WithContext(ctx))
	return translateError(err)
}

// translateError maps platform failures onto the proxy error set. Errors it
// does not recognise are returned unchanged and treated as transient.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) && rl.RateLimit != nil && rl.TooManyRequests != nil {
		return &proxy.RateLimitedError{RetryAfter: rl.RetryAfter}
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownWebhook:
			return fmt.Errorf("%w: %v", proxy.ErrUnknownWebhook, err)
		case discordgo.ErrCodeUnknownMessage:
			return fmt.Errorf("%w: %v", proxy.ErrUnknownMessage, err)
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return fmt.Errorf("%w: %v", proxy.ErrPermission, err)
		}
	}
	if rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %v", proxy.ErrPermission, err)
	}
	return err
}
