package domain

import "errors"

var (
	// ErrUnknownExperiment means no experiment is configured under the requested name.
	ErrUnknownExperiment = errors.New("unknown experiment")
	// ErrNotEnrollable is returned when enrolling into an experiment whose enrollable flag is off.
	ErrNotEnrollable = errors.New("experiment is not enrollable")
	// ErrUnknownVariant is returned when an explicit enrollment names a label the experiment does not declare.
	ErrUnknownVariant = errors.New("unknown variant")
	// ErrUnknownGoal means a funnel step references a goal that was never recorded.
	ErrUnknownGoal = errors.New("unknown goal")
	// ErrUnknownAction is raised when a deferred command has an unrecognized kind.
	ErrUnknownAction = errors.New("unknown queued action")
	// ErrInvalidExperiment is returned by experiment validation.
	ErrInvalidExperiment = errors.New("invalid experiment")
	// ErrInvalidGoal is returned for an empty or overlong goal name.
	ErrInvalidGoal = errors.New("invalid goal")
	// ErrIdentityTaken is returned when promoting a subject to an identity another subject already holds.
	ErrIdentityTaken = errors.New("identity already registered to another subject")
)
