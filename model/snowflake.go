package model

import (
	"crypto/rand"
	"math/big"
	"time"
)

// discordEpoch is the first millisecond of 2015, in unix milliseconds.
const discordEpoch int64 = 1420070400000

// SnowflakeTime extracts the creation time encoded in a platform id.
func SnowflakeTime(id int64) time.Time {
	return time.UnixMilli((id >> 22) + discordEpoch).UTC()
}

// SnowflakeAt returns the smallest id that could have been created at t.
func SnowflakeAt(t time.Time) int64 {
	ms := t.UnixMilli() - discordEpoch
	if ms < 0 {
		return 0
	}
	return ms << 22
}

const (
	hidLength   = 5
	hidAlphabet = "abcdefghijklmnopqrstuvwxyz"
)

// NewHID returns a random short id of lowercase letters.
func NewHID() (string, error) {
	buf := make([]byte, hidLength)
	max := big.NewInt(int64(len(hidAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = hidAlphabet[n.Int64()]
	}
	return string(buf), nil
}
