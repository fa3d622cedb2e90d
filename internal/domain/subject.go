package domain

import "time"

// Subject is an anonymous or identified participant.
type Subject struct {
	ID        string
	Identity  *string
	CreatedAt time.Time
}

// Principal returns the subject viewed as an Anonymous or Identified principal.
func (s *Subject) Principal() Principal {
	if s.Identity != nil && *s.Identity != "" {
		return Identified{Identity: *s.Identity, SubjectID: s.ID}
	}
	return Anonymous{SubjectID: s.ID}
}

// Principal is either Anonymous or Identified.
type Principal interface {
	PrincipalSubjectID() string
	principal()
}

// Anonymous is a subject known only through its session.
type Anonymous struct {
	SubjectID string
}

func (a Anonymous) PrincipalSubjectID() string { return a.SubjectID }
func (Anonymous) principal()                   {}

// Identified is a subject registered to a durable identity.
type Identified struct {
	Identity  string
	SubjectID string
}

func (i Identified) PrincipalSubjectID() string { return i.SubjectID }
func (Identified) principal()                   {}

// MergeAction tells the resolver what to do with the session's subject.
type MergeAction int

const (
	// MergeNone leaves the session bound to its current subject.
	MergeNone MergeAction = iota
	// MergePromote registers the current subject to the identity.
	MergePromote
	// MergeInto moves the current subject's history into the registered subject and rebinds.
	MergeInto
	// MergeRebind binds the session to the registered subject without moving history.
	MergeRebind
	// MergeFresh binds the session to a new subject registered to the identity.
	MergeFresh
)

func (a MergeAction) String() string {
	switch a {
	case MergeNone:
		return "none"
	case MergePromote:
		return "promote"
	case MergeInto:
		return "merge"
	case MergeRebind:
		return "rebind"
	case MergeFresh:
		return "fresh"
	default:
		return "unknown"
	}
}

// MergeResult is the outcome of PlanMerge.
type MergeResult struct {
	Action   MergeAction
	From     string
	Into     string
	Identity string
}

// PlanMerge decides how a session principal reacts to the identity observed at the end
// of a request. registered is the subject already holding identity, or nil.
//
// A subject identified under a different identity is never merged: its history belongs
// to that other identity, so the session moves to the new identity's subject instead.
func PlanMerge(current Principal, identity string, registered *Subject) MergeResult {
	if current == nil || identity == "" {
		return MergeResult{Action: MergeNone}
	}

	from := current.PrincipalSubjectID()
	if registered != nil && registered.ID == from {
		return MergeResult{Action: MergeNone, Into: from, Identity: identity}
	}

	switch p := current.(type) {
	case Identified:
		if p.Identity == identity {
			return MergeResult{Action: MergeNone, Into: from, Identity: identity}
		}
		if registered == nil {
			return MergeResult{Action: MergeFresh, From: from, Identity: identity}
		}
		return MergeResult{Action: MergeRebind, From: from, Into: registered.ID, Identity: identity}
	default:
		if registered == nil {
			return MergeResult{Action: MergePromote, From: from, Into: from, Identity: identity}
		}
		return MergeResult{Action: MergeInto, From: from, Into: registered.ID, Identity: identity}
	}
}
