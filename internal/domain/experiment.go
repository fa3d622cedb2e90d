package domain

import (
	"fmt"
	"strings"
	"time"
)

// NameLength is the maximum length of experiment, variant and goal names.
const NameLength = 30

// Experiment is a named test with an ordered, fixed set of variant labels.
type Experiment struct {
	Name       string
	Variants   []string
	Enrollable bool
	CreatedAt  time.Time
}

// HasVariant reports whether label is one of the experiment's declared variants.
func (e *Experiment) HasVariant(label string) bool {
	for _, v := range e.Variants {
		if v == label {
			return true
		}
	}
	return false
}

// Validate checks the name and variant list.
func (e *Experiment) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidExperiment)
	}
	if len(e.Name) > NameLength {
		return fmt.Errorf("%w: name %q is longer than %d characters", ErrInvalidExperiment, e.Name, NameLength)
	}
	if len(e.Variants) == 0 {
		return fmt.Errorf("%w: experiment %q has no variants", ErrInvalidExperiment, e.Name)
	}

	seen := make(map[string]bool, len(e.Variants))
	for _, v := range e.Variants {
		switch {
		case v == "":
			return fmt.Errorf("%w: experiment %q has an empty variant", ErrInvalidExperiment, e.Name)
		case strings.Contains(v, ","):
			return fmt.Errorf("%w: variant %q contains a comma", ErrInvalidExperiment, v)
		case len(v) > NameLength:
			return fmt.Errorf("%w: variant %q is longer than %d characters", ErrInvalidExperiment, v, NameLength)
		case seen[v]:
			return fmt.Errorf("%w: variant %q is declared twice", ErrInvalidExperiment, v)
		}
		seen[v] = true
	}
	return nil
}

// JoinVariants encodes a variant list for storage.
func JoinVariants(variants []string) string {
	return strings.Join(variants, ",")
}

// SplitVariants decodes a stored variant list, dropping empty labels.
func SplitVariants(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Enrollment binds one subject to one variant of one experiment.
type Enrollment struct {
	ID         string
	SubjectID  string
	Experiment string
	Variant    string
	CreatedAt  time.Time
}
