package common

import (
	"fmt"
	"strconv"
)

const (
	PrefixLength = 4
)

// RoleType defines the actor role in the realtime system.
type RoleType string

const (
	RoleUser  RoleType = "user"
	RoleGuest RoleType = "guest"
)

// Actor represents a platform identity that maps to a realtime user id.
// Guests exist only for the duration of an anonymous connection and may
// subscribe to the global stream only.
type Actor struct {
	Id   int64
	Role RoleType
}

// ToRealtimeUserId converts an Actor to the realtime system's string user id.
//
//	Actor{Id: 42, Role: RoleUser}.ToRealtimeUserId()  => "u___42"
//	Actor{Id: 7, Role: RoleGuest}.ToRealtimeUserId()  => "g___7"
func (a *Actor) ToRealtimeUserId() (string, error) {
	switch a.Role {
	case RoleUser:
		return fmt.Sprintf("u___%d", a.Id), nil
	case RoleGuest:
		return fmt.Sprintf("g___%d", a.Id), nil
	default:
		return "", fmt.Errorf("failed to transfer actor to user id, role: %s", a.Role)
	}
}

// FromRealtimeUserId parses a realtime user id string back into an Actor.
// Returns an error if the format is unrecognised.
func (a *Actor) FromRealtimeUserId(userId string) error {
	if a == nil {
		return fmt.Errorf("actor is nil")
	}
	if len(userId) < PrefixLength+1 {
		return fmt.Errorf("invalid userId: %q", userId)
	}
	prefix := userId[:PrefixLength]
	idStr := userId[PrefixLength:]
	switch prefix {
	case "u___":
		a.Role = RoleUser
	case "g___":
		a.Role = RoleGuest
	default:
		return fmt.Errorf("unknown prefix: %q", prefix)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id: %q", idStr)
	}
	a.Id = id
	return nil
}

// IsGuest reports whether the user id denotes an anonymous guest actor.
func IsGuest(userId string) bool {
	return len(userId) >= PrefixLength && userId[:PrefixLength] == "g___"
}
