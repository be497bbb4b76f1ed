package model

import (
	"errors"
	"strings"
)

// ErrEmptyProxyTag is returned when a proxy tag has neither a prefix nor a suffix.
var ErrEmptyProxyTag = errors.New("proxy tag needs a prefix or a suffix")

// ProxyTag is a prefix/suffix pair marking a message as written by a member.
// An empty string means the marker is absent.
type ProxyTag struct {
	Prefix string `json:"prefix,omitempty"`
	Suffix string `json:"suffix,omitempty"`
}

// NewProxyTag builds a validated ProxyTag.
func NewProxyTag(prefix, suffix string) (ProxyTag, error) {
	tag := ProxyTag{Prefix: prefix, Suffix: suffix}
	if err := tag.Validate(); err != nil {
		return ProxyTag{}, err
	}
	return tag, nil
}

// Validate rejects degenerate tags. Whitespace-only markers count as absent.
func (t ProxyTag) Validate() error {
	if strings.TrimSpace(t.Prefix) == "" && strings.TrimSpace(t.Suffix) == "" {
		return ErrEmptyProxyTag
	}
	return nil
}

// String renders the tag the way users write it, with "text" marking the body.
func (t ProxyTag) String() string {
	return t.Prefix + "text" + t.Suffix
}
