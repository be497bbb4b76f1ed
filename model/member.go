package model

import "time"

// Member is one persona within a System.
type Member struct {
	ID           int64
	HID          string
	SystemID     int64
	Name         string
	DisplayName  string
	Color        string
	AvatarURL    string
	Birthday     *time.Time
	Pronouns     string
	Description  string
	ProxyTags    []ProxyTag
	KeepProxy    bool
	Created      time.Time
	MessageCount int

	DescriptionPrivacy PrivacyLevel
	NamePrivacy        PrivacyLevel
	AvatarPrivacy      PrivacyLevel
	BirthdayPrivacy    PrivacyLevel
	PronounPrivacy     PrivacyLevel
	MetadataPrivacy    PrivacyLevel
}

// MemberGuild overrides a member's name and avatar inside one guild.
type MemberGuild struct {
	MemberID    int64
	GuildID     int64
	DisplayName string
	AvatarURL   string
}

// Group is a named collection of members, used for display only.
type Group struct {
	ID          int64
	HID         string
	SystemID    int64
	Name        string
	DisplayName string
	Description string
	Icon        string
	Created     time.Time
	Members     []int64

	DescriptionPrivacy PrivacyLevel
	IconPrivacy        PrivacyLevel
	ListPrivacy        PrivacyLevel
	Visibility         PrivacyLevel
}
