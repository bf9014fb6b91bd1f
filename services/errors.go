package services

import "errors"

// Sentinel errors shared across services and mapped to HTTP statuses at the
// handler boundary.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Access control
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("operation not allowed for the current user")

	// Validation and business rules
	ErrValidationFailed        = errors.New("validation failed")
	ErrNameRequired            = errors.New("name is required")
	ErrEmailRequired           = errors.New("email is required")
	ErrPasswordTooShort        = errors.New("password must be at least 8 characters")
	ErrInvalidTournamentType   = errors.New("invalid tournament type")
	ErrInvalidRankedBy         = errors.New("invalid ranking method")
	ErrInvalidByeStrategy      = errors.New("invalid bye strategy")
	ErrInvalidGrandFinals      = errors.New("invalid grand finals modifier")
	ErrInvalidSwissRounds      = errors.New("swiss rounds must be at least 1")
	ErrInvalidSeed             = errors.New("seed is out of range")
	ErrInvalidScore            = errors.New("score must not be negative")
	ErrWinnerNotInMatch        = errors.New("winner is not a player in this match")
	ErrParticipantNotInMatch   = errors.New("participant is not a player in this match")
	ErrTiedScoreNeedsWinner    = errors.New("tied score requires an explicit winner")
	ErrNotEnoughParticipants   = errors.New("not enough active participants to start")
	ErrSwissRoundIncomplete    = errors.New("current swiss round is not complete")
	ErrSwissRoundsExhausted    = errors.New("all scheduled swiss rounds have been generated")
	ErrTournamentNotInSignup   = errors.New("tournament is not accepting signups")
	ErrSignupCapReached        = errors.New("tournament signup cap reached")
	ErrMatchNotOpen            = errors.New("match is not open for results")
	ErrMatchNotComplete        = errors.New("match is not complete")
	ErrMatchNotUnderway        = errors.New("match is not underway")
	ErrMatchIsBye              = errors.New("operation not valid for a bye match")
	ErrDownstreamComplete      = errors.New("a later match depending on this one is already complete")
	ErrStationBusy             = errors.New("station is already assigned to another live match")
	ErrNothingToUndo           = errors.New("nothing to undo")
	ErrTournamentNotPending    = errors.New("tournament has already started")
	ErrTournamentNotUnderway   = errors.New("tournament is not underway")
	ErrTournamentNotResettable = errors.New("tournament has completed matches and cannot be reset")
	ErrMatchesIncomplete       = errors.New("tournament still has incomplete matches")

	// Conflicts
	ErrUserEmailConflict       = errors.New("email address is already in use")
	ErrSlugConflict            = errors.New("tournament url is already in use")
	ErrParticipantNameConflict = errors.New("a participant with this name is already registered")
	ErrAlreadyCheckedIn        = errors.New("participant is already checked in")
	ErrAlreadyOnWaitlist       = errors.New("email is already on the waitlist")
	ErrStationNameConflict     = errors.New("a station with this name already exists")

	// Authentication
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Entity lookups
	ErrUserNotFound          = errors.New("user not found")
	ErrTournamentNotFound    = errors.New("tournament not found")
	ErrParticipantNotFound   = errors.New("participant not found")
	ErrMatchNotFound         = errors.New("match not found")
	ErrStationNotFound       = errors.New("station not found")
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	ErrNoDeployment          = errors.New("no tournament is currently deployed")
)
