package membership

import "errors"

var (
	// ErrStaleWrite means a conditional update matched no row: the membership
	// changed between read and write.
	ErrStaleWrite = errors.New("stale membership write")
	// ErrInvalidTransition is returned when the current status does not allow
	// the requested change, e.g. paying on a canceled membership.
	ErrInvalidTransition = errors.New("invalid membership transition")
	// ErrNotFound is returned for unknown memberships, teams or join codes.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyMember is returned when a player joins a team twice.
	ErrAlreadyMember = errors.New("player already joined this team")
)
