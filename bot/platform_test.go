package bot

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"proxy-bot/proxy"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "error"},
	}
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "unknown webhook", err: restError(http.StatusNotFound, discordgo.ErrCodeUnknownWebhook), want: proxy.ErrUnknownWebhook},
		{name: "unknown message", err: restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage), want: proxy.ErrUnknownMessage},
		{name: "missing permissions", err: restError(http.StatusForbidden, discordgo.ErrCodeMissingPermissions), want: proxy.ErrPermission},
		{name: "missing access", err: restError(http.StatusForbidden, discordgo.ErrCodeMissingAccess), want: proxy.ErrPermission},
		{name: "forbidden without code", err: restError(http.StatusForbidden, 0), want: proxy.ErrPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateError(tt.err), tt.want)
		})
	}

	t.Run("rate limit", func(t *testing.T) {
		err := &discordgo.RateLimitError{RateLimit: &discordgo.RateLimit{
			TooManyRequests: &discordgo.TooManyRequests{RetryAfter: 1500 * time.Millisecond},
			URL:             "https://discord.com/api/webhooks/1/t",
		}}
		var rl *proxy.RateLimitedError
		require.ErrorAs(t, translateError(err), &rl)
		assert.Equal(t, 1500*time.Millisecond, rl.RetryAfter)
	})

	t.Run("server errors pass through", func(t *testing.T) {
		err := restError(http.StatusBadGateway, 0)
		assert.Same(t, err, translateError(err))

		other := errors.New("connection reset")
		assert.Same(t, other, translateError(other))
	})
}
