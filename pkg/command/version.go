package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a firmware version as carried on the wire.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint16
}

// Uint32 packs the version as major<<24 | minor<<16 | patch.
func (v Version) Uint32() uint32 {
	return uint32(v.Major)<<24 | uint32(v.Minor)<<16 | uint32(v.Patch)
}

// VersionFromUint32 unpacks a version packed by Uint32.
func VersionFromUint32(u uint32) Version {
	return Version{Major: uint8(u >> 24), Minor: uint8(u >> 16), Patch: uint16(u)}
}

// Newer reports whether v is strictly newer than other.
func (v Version) Newer(other Version) bool {
	return v.Uint32() > other.Uint32()
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses major.minor.patch.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("version must be major.minor.patch")
	}
	major, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return Version{}, fmt.Errorf("major: %w", err)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return Version{}, fmt.Errorf("minor: %w", err)
	}
	patch, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("patch: %w", err)
	}
	return Version{Major: uint8(major), Minor: uint8(minor), Patch: uint16(patch)}, nil
}
