// Package mixer implements the mixer graph (channels, buses, routing) and
// its processing algorithm — component D of the engine.
package mixer

import (
	"fmt"
	"regexp"
)

// Kind distinguishes a ChannelId from a BusId so the two id spaces never
// collide even if the same string is used for both.
type Kind int

const (
	KindChannel Kind = iota
	KindBus
)

func (k Kind) String() string {
	if k == KindBus {
		return "bus"
	}
	return "channel"
}

const maxIDLength = 100

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ChannelId identifies a channel. It is the pair (kind, string); equality
// and hashing (via Go's native map/comparison semantics, since ChannelId is
// a plain comparable struct) are over the full pair.
type ChannelId struct {
	kind  Kind
	value string
}

// BusId identifies a bus, symmetric to ChannelId.
type BusId struct {
	kind  Kind
	value string
}

// NewChannelId validates and constructs a ChannelId. The id must be
// non-empty, at most 100 code units, and restricted to
// alphanumeric/hyphen/underscore.
func NewChannelId(id string) (ChannelId, error) {
	if err := validateIdentifier(id); err != nil {
		return ChannelId{}, err
	}
	return ChannelId{kind: KindChannel, value: id}, nil
}

// NewBusId validates and constructs a BusId.
func NewBusId(id string) (BusId, error) {
	if err := validateIdentifier(id); err != nil {
		return BusId{}, err
	}
	return BusId{kind: KindBus, value: id}, nil
}

// String returns the id's underlying string value.
func (c ChannelId) String() string { return c.value }

// String returns the id's underlying string value.
func (b BusId) String() string { return b.value }

// MasterChannelID is the well-known id that marks a channel as the master.
// NewChannel sets the channel's explicit IsMaster flag from this id or a
// display name of "master" (case-insensitive); the rest of the engine
// reads the flag rather than matching strings.
const MasterChannelID = "master"

func validateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("mixer: identifier must not be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("mixer: identifier %q exceeds %d characters", id, maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("mixer: identifier %q must be alphanumeric, hyphen, or underscore only", id)
	}
	return nil
}

// ValidateName checks that a display name is non-empty and within the same
// length limit as an identifier. Unlike an identifier, its character set is
// not restricted (display names are shown verbatim to the UI and aren't
// required to be machine-safe tokens).
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("mixer: display name must not be empty")
	}
	if len(name) > maxIDLength {
		return fmt.Errorf("mixer: display name %q exceeds %d characters", name, maxIDLength)
	}
	return nil
}
