package meetings

import "errors"

// Business errors of the meeting lifecycle. Every failure of a lifecycle
// operation is one of these (or ledger.ErrInsufficientPoints), so the API
// layer can branch on a closed set instead of probing messages.
var (
	ErrNotFound       = errors.New("meeting not found")
	ErrNotJoinable    = errors.New("meeting is not joinable")
	ErrMeetingFull    = errors.New("meeting is full")
	ErrAlreadyJoined  = errors.New("already joined this meeting")
	ErrNotParticipant = errors.New("not a participant of this meeting")
	ErrNotHost        = errors.New("only the host may do this")
	ErrNotCancellable = errors.New("meeting cannot be cancelled")
	ErrEmptyReason    = errors.New("cancellation reason required")
	ErrNotStarted     = errors.New("meeting has not started yet")
	ErrCheckedIn      = errors.New("participant already checked in")
	ErrInvalidMeeting = errors.New("invalid meeting parameters")
)
