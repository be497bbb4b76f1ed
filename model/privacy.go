package model

import "fmt"

// PrivacyLevel controls who can see a field of a system, member or group.
type PrivacyLevel int

const (
	PrivacyPublic  PrivacyLevel = 1
	PrivacyPrivate PrivacyLevel = 2
)

// ParsePrivacyLevel converts a stored integer into a PrivacyLevel.
func ParsePrivacyLevel(v int) (PrivacyLevel, error) {
	switch PrivacyLevel(v) {
	case PrivacyPublic, PrivacyPrivate:
		return PrivacyLevel(v), nil
	default:
		return 0, fmt.Errorf("unknown privacy level %d", v)
	}
}

func (p PrivacyLevel) String() string {
	switch p {
	case PrivacyPublic:
		return "public"
	case PrivacyPrivate:
		return "private"
	default:
		return fmt.Sprintf("PrivacyLevel(%d)", int(p))
	}
}

// AutoproxyMode selects the persona used when a message carries no proxy tag.
type AutoproxyMode int

const (
	AutoproxyOff    AutoproxyMode = 1
	AutoproxyFront  AutoproxyMode = 2
	AutoproxyLatch  AutoproxyMode = 3
	AutoproxyMember AutoproxyMode = 4
)

// ParseAutoproxyMode converts a stored integer into an AutoproxyMode.
func ParseAutoproxyMode(v int) (AutoproxyMode, error) {
	switch AutoproxyMode(v) {
	case AutoproxyOff, AutoproxyFront, AutoproxyLatch, AutoproxyMember:
		return AutoproxyMode(v), nil
	default:
		return 0, fmt.Errorf("unknown autoproxy mode %d", v)
	}
}

func (m AutoproxyMode) String() string {
	switch m {
	case AutoproxyOff:
		return "off"
	case AutoproxyFront:
		return "front"
	case AutoproxyLatch:
		return "latch"
	case AutoproxyMember:
		return "member"
	default:
		return fmt.Sprintf("AutoproxyMode(%d)", int(m))
	}
}
