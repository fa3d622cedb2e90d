// Package memory provides an in-process implementation of the storage ports.
// Every repository returned by NewRepositories shares one mutex, so each
// get-or-create and merge is atomic just like the unique constraints of the SQL store.
package memory

import (
	"sort"
	"sync"

	"github.com/emiliopalmerini/splango/internal/domain"
	"github.com/emiliopalmerini/splango/internal/ports"
)

type pairKey struct {
	subject string
	name    string
}

// Store holds all tables.
type Store struct {
	mu          sync.Mutex
	subjects    map[string]*domain.Subject
	identities  map[string]string
	experiments map[string]*domain.Experiment
	enrollments map[pairKey]*domain.Enrollment
	goals       map[string]*domain.Goal
	records     map[pairKey]*domain.GoalRecord
	reports     map[string]*domain.ExperimentReport
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		subjects:    make(map[string]*domain.Subject),
		identities:  make(map[string]string),
		experiments: make(map[string]*domain.Experiment),
		enrollments: make(map[pairKey]*domain.Enrollment),
		goals:       make(map[string]*domain.Goal),
		records:     make(map[pairKey]*domain.GoalRecord),
		reports:     make(map[string]*domain.ExperimentReport),
	}
}

// NewRepositories returns every port backed by a fresh, isolated store.
func NewRepositories() *ports.Repositories {
	return NewStore().Repositories()
}

// Repositories returns every port backed by s.
func (s *Store) Repositories() *ports.Repositories {
	return &ports.Repositories{
		Subjects:    &SubjectRepository{s},
		Experiments: &ExperimentRepository{s},
		Enrollments: &EnrollmentRepository{s},
		Goals:       &GoalRepository{s},
		GoalRecords: &GoalRecordRepository{s},
		Reports:     &ReportRepository{s},
	}
}

func copySubject(s *domain.Subject) *domain.Subject {
	c := *s
	if s.Identity != nil {
		id := *s.Identity
		c.Identity = &id
	}
	return &c
}

func copyExperiment(e *domain.Experiment) *domain.Experiment {
	c := *e
	c.Variants = append([]string(nil), e.Variants...)
	return &c
}

func copyEnrollment(e *domain.Enrollment) *domain.Enrollment {
	c := *e
	return &c
}

func copyRecord(r *domain.GoalRecord) *domain.GoalRecord {
	c := *r
	if r.Extra != nil {
		extra := *r.Extra
		c.Extra = &extra
	}
	return &c
}

func copyReport(r *domain.ExperimentReport) *domain.ExperimentReport {
	c := *r
	c.Funnel = append([]string(nil), r.Funnel...)
	return &c
}

func sortEnrollments(list []*domain.Enrollment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].Experiment < list[j].Experiment
	})
}

func sortRecords(list []*domain.GoalRecord) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].Goal < list[j].Goal
	})
}
