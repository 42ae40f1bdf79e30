package game

import "errors"

// Precondition failures. Every one of them leaves room state untouched;
// the transport decides whether the caller gets an answer or the command
// is silently dropped.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrUnauthorized      = errors.New("caller is not the room host")
	ErrNameTaken         = errors.New("name already in use in this room")
	ErrHostOnline        = errors.New("host is already online in this room")
	ErrInvalidHostSecret = errors.New("missing or wrong host secret")
	ErrGameStarted       = errors.New("game already started")
	ErrGameNotStarted    = errors.New("game not started")
	ErrInsufficientRoles = errors.New("not enough roles for the players present")
	ErrVotingClosed      = errors.New("voting is not open")
	ErrNotAPlayer        = errors.New("caller is not a living player in this room")
)
