package proxy

import (
	"strings"

	"proxy-bot/model"
)

// TagMatch is the result of a successful proxy tag match.
type TagMatch struct {
	Tag   model.ProxyTag
	Inner string // text with the markers and their separating spaces stripped
	Text  string // trimmed text, markers included
}

// Content returns the text to relay. Members with keep_proxy keep their markers.
func (m TagMatch) Content(keepProxy bool) string {
	if keepProxy {
		return m.Text
	}
	return m.Inner
}

// Match tests tags in declaration order against the trimmed text and returns
// the first one whose prefix and suffix both hold. The stripped body must be
// non-empty unless the message carries attachments, in which case a text made
// of the bare markers also matches.
func Match(text string, hasAttachments bool, tags []model.ProxyTag) (TagMatch, bool) {
	trimmed := strings.TrimSpace(text)
	for _, tag := range tags {
		if tag.Validate() != nil {
			continue
		}
		if inner, ok := matchTag(trimmed, tag); ok {
			if strings.TrimSpace(inner) != "" || hasAttachments {
				return TagMatch{Tag: tag, Inner: inner, Text: trimmed}, true
			}
			continue
		}
		if hasAttachments && trimmed == strings.TrimSpace(tag.Prefix+tag.Suffix) {
			return TagMatch{Tag: tag, Text: trimmed}, true
		}
	}
	return TagMatch{}, false
}

func matchTag(text string, tag model.ProxyTag) (string, bool) {
	if len(text) < len(tag.Prefix)+len(tag.Suffix) {
		return "", false
	}
	if !strings.HasPrefix(text, tag.Prefix) || !strings.HasSuffix(text, tag.Suffix) {
		return "", false
	}
	inner := text[len(tag.Prefix) : len(text)-len(tag.Suffix)]
	if strings.TrimSpace(inner) == "" {
		return "", true
	}
	// Only the separator next to each marker goes; line breaks and
	// indentation in the body are kept.
	return strings.Trim(inner, " \t"), true
}

// MemberMatch is a tag match attributed to a member.
type MemberMatch struct {
	TagMatch
	Member model.Member
}

// Content returns the text to relay for the matched member.
func (m MemberMatch) Content() string {
	return m.TagMatch.Content(m.Member.KeepProxy)
}

// MatchMembers matches text against every member of a system. When several
// members match, the first-registered one (lowest id) wins and the others are
// returned as collisions.
func MatchMembers(text string, hasAttachments bool, members []model.Member) (match MemberMatch, collisions []model.Member, ok bool) {
	for _, m := range members {
		tm, matched := Match(text, hasAttachments, m.ProxyTags)
		if !matched {
			continue
		}
		switch {
		case !ok:
			match, ok = MemberMatch{TagMatch: tm, Member: m}, true
		case m.ID < match.Member.ID:
			collisions = append(collisions, match.Member)
			match = MemberMatch{TagMatch: tm, Member: m}
		default:
			collisions = append(collisions, m)
		}
	}
	return match, collisions, ok
}
