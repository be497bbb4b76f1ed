package proxy

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPermission means the bot may not manage webhooks or messages in a channel.
	ErrPermission = errors.New("missing permissions in channel")
	// ErrUnknownWebhook means a stored webhook no longer exists on the platform.
	ErrUnknownWebhook = errors.New("unknown webhook")
	// ErrUnknownMessage means the platform has no message with the given id.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrOriginalGone means the original message was deleted before it could be relayed.
	ErrOriginalGone = errors.New("original message deleted before relay")
	// ErrSwitchTimestampTaken means the system already has a switch at that instant.
	ErrSwitchTimestampTaken = errors.New("system already has a switch at this timestamp")
	// ErrDuplicateSwitchMember means a switch lists the same member more than once.
	ErrDuplicateSwitchMember = errors.New("member listed twice in switch")
)

// RateLimitedError is returned by the platform when a request must wait
// RetryAfter before being attempted again.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
