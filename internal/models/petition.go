package models

import "time"

// PetitionState is the lifecycle state of a petition as stored.
type PetitionState string

const (
	PetitionDraft               PetitionState = "Draft"
	PetitionOpen                PetitionState = "Open"
	PetitionAwaitingGovernment  PetitionState = "Awaiting government"
	PetitionGovernmentResponses PetitionState = "Government responses"
	PetitionAwaitingDebate      PetitionState = "Awaiting a debate"
	PetitionDebated             PetitionState = "Debated in Parliament"
	PetitionNotDebated          PetitionState = "Not debated"
	PetitionClosed              PetitionState = "Closed"
	PetitionClosedExpired       PetitionState = "Closed (Expired)"
	PetitionRejected            PetitionState = "Rejected"
)

const (
	// PetitionThreshold is the upvote count at which a post becomes a petition.
	PetitionThreshold = 10
	// DefaultTargetSignatures applies when a petition does not set a target.
	DefaultTargetSignatures = 100
	// DefaultPetitionDuration is the deadline given to auto-created petitions.
	DefaultPetitionDuration = 30 * 24 * time.Hour
)

// Signature is one anonymous signature on a petition.
type Signature struct {
	PostID    string    `json:"postId" validate:"required"`
	AnonID    string    `json:"anonId"`
	Name      string    `json:"name,omitempty" validate:"max=100"`
	Timestamp time.Time `json:"timestamp"`
}

// Petition is created from a post once it gathers enough support.
type Petition struct {
	ID               string        `json:"id" validate:"required"`
	PostID           string        `json:"postId"`
	Title            string        `json:"title" validate:"required,notblank"`
	Goal             string        `json:"goal" validate:"required,notblank"`
	Deadline         *time.Time    `json:"deadline,omitempty"`
	State            PetitionState `json:"state"`
	TargetSignatures int           `json:"targetSignatures"`
	Signatures       []Signature   `json:"signatures"`
}

// DisplayState derives the state shown to readers. An open petition whose
// deadline has passed reads as "Closed (Expired)"; the stored state is not
// changed.
func (p Petition) DisplayState(now time.Time) PetitionState {
	state := p.State
	if state == "" {
		state = PetitionOpen
	}
	if state == PetitionOpen && p.Deadline != nil && now.After(*p.Deadline) {
		return PetitionClosedExpired
	}
	return state
}

// Target returns the signature goal, falling back to the default.
func (p Petition) Target() int {
	if p.TargetSignatures > 0 {
		return p.TargetSignatures
	}
	return DefaultTargetSignatures
}

// Progress is the percentage of the target reached, capped at 100.
func (p Petition) Progress() int {
	pct := len(p.Signatures) * 100 / p.Target()
	if pct > 100 {
		return 100
	}
	return pct
}

// EligibleForPetition reports whether a tally has crossed the petition threshold.
func EligibleForPetition(t VoteTally) bool {
	return t.Up >= PetitionThreshold
}

// NewPetitionFromPost builds the open petition created when a post crosses
// the threshold.
func NewPetitionFromPost(post Post, now time.Time) Petition {
	deadline := now.Add(DefaultPetitionDuration).UTC()
	return Petition{
		ID:               "petition-" + post.ID,
		PostID:           post.ID,
		Title:            post.Title,
		Goal:             post.Body,
		Deadline:         &deadline,
		State:            PetitionOpen,
		TargetSignatures: DefaultTargetSignatures,
		Signatures:       []Signature{},
	}
}
