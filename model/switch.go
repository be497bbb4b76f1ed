package model

import "time"

// Switch records a change of front. Members is ordered, primary fronter first;
// an empty list means nobody is fronting.
type Switch struct {
	ID        int64
	SystemID  int64
	Timestamp time.Time
	Members   []int64
}

// Primary returns the first fronting member.
func (s Switch) Primary() (int64, bool) {
	if len(s.Members) == 0 {
		return 0, false
	}
	return s.Members[0], true
}

// Webhook is the impersonation channel owned by the bot in one chat channel.
type Webhook struct {
	ChannelID int64
	ID        int64
	Token     string
}
