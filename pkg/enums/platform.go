package enums

import "fmt"

// Platform identifies an external publishing destination.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
)

var validPlatforms = []Platform{
	PlatformYouTube,
	PlatformInstagram,
}

// String returns the literal string for the platform.
func (p Platform) String() string {
	return string(p)
}

// IsValid reports whether the platform is known.
func (p Platform) IsValid() bool {
	for _, candidate := range validPlatforms {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlatform converts raw input into a Platform.
func ParsePlatform(value string) (Platform, error) {
	for _, candidate := range validPlatforms {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid platform %q", value)
}
