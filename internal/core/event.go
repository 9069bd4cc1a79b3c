package core

import (
	"strconv"
	"strings"
)

// EventKind labels the outbound notices the core emits.
type EventKind int

const (
	// EventArrival announces a newly authenticated member.
	EventArrival EventKind = iota
	// EventDeparture announces a member that left or was pruned.
	EventDeparture
	// EventChat is a relayed chat envelope.
	EventChat
	// EventDirectory is the private reply to !who.
	EventDirectory
)

func (k EventKind) String() string {
	switch k {
	case EventArrival:
		return "arrival"
	case EventDeparture:
		return "departure"
	case EventChat:
		return "chat"
	case EventDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// ArrivalNotice is broadcast after a session is registered.
func ArrivalNotice(id Identity) string {
	return id.Username + " entered the chat!"
}

// DepartureNotice is broadcast after a session is removed, whatever the cause.
func DepartureNotice(id Identity) string {
	return id.Username + " disconnected"
}

// DirectoryListing renders "<N> USERS ONLINE:" followed by one username per line.
func DirectoryListing(ids []Identity) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(ids)))
	b.WriteString(" USERS ONLINE:")
	for _, id := range ids {
		b.WriteByte('\n')
		b.WriteString(id.Username)
	}
	return b.String()
}
