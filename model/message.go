package model

// Message is the record linking a relayed message to the member who spoke and
// the original message it replaced.
type Message struct {
	RelayedID  int64
	ChannelID  int64
	MemberID   int64
	SenderID   int64
	OriginalID int64 // 0 when the original could not be resolved
	GuildID    int64
}

// HasOriginal reports whether the original message id is known.
func (m Message) HasOriginal() bool {
	return m.OriginalID != 0
}

// Attachment is a file attached to an incoming message.
type Attachment struct {
	ID          int64
	Filename    string
	ContentType string
	URL         string
	Size        int
}

// File is an attachment's raw bytes, ready to be uploaded again.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// MessageCreated is an incoming chat message event.
type MessageCreated struct {
	ID          int64
	ChannelID   int64
	GuildID     int64
	AuthorID    int64
	Content     string
	Attachments []Attachment
}

// MessageDeleted is a platform notification that messages are gone.
type MessageDeleted struct {
	ChannelID int64
	IDs       []int64
}

// WebhookMessage is what gets posted through a webhook.
type WebhookMessage struct {
	Username  string
	AvatarURL string
	Content   string
	Files     []File
}

// LogEntry describes a relayed message for a guild's log channel.
type LogEntry struct {
	GuildID     int64
	ChannelID   int64
	RelayedID   int64
	OriginalID  int64
	SenderID    int64
	SystemHID   string
	SystemName  string
	MemberHID   string
	MemberName  string
	Content     string
	AvatarURL   string
	Color       string
	Attachments int
}
