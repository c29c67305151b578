package types

import (
	"fmt"
	"strconv"
	"strings"
)

// PeerID identifies a connected peer. NoPeer is never assigned.
type PeerID uint32

// NoPeer is the empty identity.
const NoPeer PeerID = 0

// EntityID names one independently-owned sync channel.
type EntityID string

const (
	// TableEntity is the entity carrying the table game state
	TableEntity EntityID = "table"

	seatEntityPrefix = "seat/"
	cueEntityPrefix  = "cue/"
)

// SeatEntity returns the entity id for seat index.
func SeatEntity(index int) EntityID {
	return EntityID(seatEntityPrefix + strconv.Itoa(index))
}

// CueEntity returns the entity id for cue index.
func CueEntity(index int) EntityID {
	return EntityID(cueEntityPrefix + strconv.Itoa(index))
}

// EntityKind is the kind of channel an entity id addresses.
type EntityKind uint8

const (
	EntityKindUnknown EntityKind = iota
	EntityKindTable
	EntityKindSeat
	EntityKindCue
)

// Parse splits an entity id into its kind and index.
func (e EntityID) Parse() (EntityKind, int, error) {
	s := string(e)
	switch {
	case e == TableEntity:
		return EntityKindTable, 0, nil
	case strings.HasPrefix(s, seatEntityPrefix):
		index, err := strconv.Atoi(strings.TrimPrefix(s, seatEntityPrefix))
		if err != nil {
			return EntityKindUnknown, 0, fmt.Errorf("invalid seat entity %q: %v", s, err)
		}
		return EntityKindSeat, index, nil
	case strings.HasPrefix(s, cueEntityPrefix):
		index, err := strconv.Atoi(strings.TrimPrefix(s, cueEntityPrefix))
		if err != nil {
			return EntityKindUnknown, 0, fmt.Errorf("invalid cue entity %q: %v", s, err)
		}
		return EntityKindCue, index, nil
	default:
		return EntityKindUnknown, 0, fmt.Errorf("unknown entity %q", s)
	}
}
