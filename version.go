package snapodata

import (
	"fmt"
	"strings"
)

// ProtocolVersion represents an OData protocol version.
// This type is shared across all packages
type ProtocolVersion int

const (
	VersionUnknown ProtocolVersion = iota
	Version40
	Version401
)

// LatestVersion is the newest protocol version the client can speak.
const LatestVersion = Version401

func (v ProtocolVersion) String() string {
	switch v {
	case Version40:
		return "4.0"
	case Version401:
		return "4.01"
	default:
		return "unknown"
	}
}

// AtLeast reports whether v is the same as or newer than other.
func (v ProtocolVersion) AtLeast(other ProtocolVersion) bool {
	return v >= other
}

// MaxVersion returns the newer of two versions.
func MaxVersion(a, b ProtocolVersion) ProtocolVersion {
	if a > b {
		return a
	}

	return b
}

// ParseProtocolVersion parses the OData-Version header form ("4.0", "4.01").
func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	switch strings.TrimSpace(s) {
	case "4.0", "4":
		return Version40, nil
	case "4.01":
		return Version401, nil
	default:
		return VersionUnknown, fmt.Errorf("unknown protocol version %q", s)
	}
}
