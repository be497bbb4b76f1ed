package utils

import (
	"strconv"
	"strings"
)

// ParseHexColor parses a member color such as "#facf24" or "facf24" into an
// embed color. ok is false for empty or malformed input.
func ParseHexColor(hexColor string) (int, bool) {
	hexColor = strings.TrimPrefix(strings.TrimSpace(hexColor), "#")
	if len(hexColor) != 6 {
		return 0, false
	}

	colorInt, err := strconv.ParseInt(hexColor, 16, 32)
	if err != nil {
		return 0, false
	}
	return int(colorInt), true
}
