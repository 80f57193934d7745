package model

import "errors"

var (
	// ErrRoomNotFound is returned when the referenced room does not exist,
	// typically a stale client racing a disconnect or reset.
	ErrRoomNotFound = errors.New("room not found")

	// ErrParticipantNotFound is returned when the referenced participant is
	// not a member of the room.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrInvalidVote is returned when a vote value is outside the scale.
	ErrInvalidVote = errors.New("vote value not on estimation scale")

	// ErrInvalidRole is returned when a role string is neither voter nor observer.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidRoomID is returned when a room identifier fails format validation.
	ErrInvalidRoomID = errors.New("invalid room id")

	// ErrObserverCannotVote is returned by the router when a participant with
	// the observer role attempts to vote.
	ErrObserverCannotVote = errors.New("observers cannot vote")
)
