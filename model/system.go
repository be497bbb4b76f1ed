package model

import "time"

// System is one chat account owning a set of members.
type System struct {
	ID           int64
	HID          string
	Name         string
	Description  string
	Tag          string
	AvatarURL    string
	Token        string
	Created      time.Time
	UITimezone   string
	PingsEnabled bool

	DescriptionPrivacy  PrivacyLevel
	MemberListPrivacy   PrivacyLevel
	FrontPrivacy        PrivacyLevel
	FrontHistoryPrivacy PrivacyLevel
	GroupListPrivacy    PrivacyLevel
}

// Account links a platform user to the system it proxies for.
type Account struct {
	UserID   int64
	SystemID int64
}

// SystemGuild holds the per-guild proxy settings of a system.
type SystemGuild struct {
	SystemID        int64
	GuildID         int64
	ProxyEnabled    bool
	AutoproxyMode   AutoproxyMode
	AutoproxyMember int64 // only meaningful when AutoproxyMode is AutoproxyMember
}

// DefaultSystemGuild returns the settings used when a system has none stored for a guild.
func DefaultSystemGuild(systemID, guildID int64) SystemGuild {
	return SystemGuild{
		SystemID:      systemID,
		GuildID:       guildID,
		ProxyEnabled:  true,
		AutoproxyMode: AutoproxyOff,
	}
}

// Server is the per-guild bot configuration.
type Server struct {
	ID                int64
	LogChannel        int64
	LogBlacklist      []int64
	Blacklist         []int64
	LogCleanupEnabled bool
}

// IsBlacklisted reports whether proxying is disabled in channelID.
func (s Server) IsBlacklisted(channelID int64) bool {
	return containsID(s.Blacklist, channelID)
}

// ShouldLog reports whether relays in channelID are reported to the log channel.
func (s Server) ShouldLog(channelID int64) bool {
	return s.LogChannel != 0 && !containsID(s.LogBlacklist, channelID)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
