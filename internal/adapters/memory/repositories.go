package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/emiliopalmerini/splango/internal/domain"
)

type SubjectRepository struct{ s *Store }

func (r *SubjectRepository) Create(_ context.Context, subject *domain.Subject) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.subjects[subject.ID]; ok {
		return fmt.Errorf("failed to create subject: id %s already exists", subject.ID)
	}
	if subject.Identity != nil {
		if _, taken := r.s.identities[*subject.Identity]; taken {
			return fmt.Errorf("failed to create subject: %w", domain.ErrIdentityTaken)
		}
		r.s.identities[*subject.Identity] = subject.ID
	}
	r.s.subjects[subject.ID] = copySubject(subject)
	return nil
}

func (r *SubjectRepository) GetByID(_ context.Context, id string) (*domain.Subject, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if s, ok := r.s.subjects[id]; ok {
		return copySubject(s), nil
	}
	return nil, nil
}

func (r *SubjectRepository) GetByIdentity(_ context.Context, identity string) (*domain.Subject, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id, ok := r.s.identities[identity]; ok {
		return copySubject(r.s.subjects[id]), nil
	}
	return nil, nil
}

func (r *SubjectRepository) Promote(_ context.Context, id, identity string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	subject, ok := r.s.subjects[id]
	if !ok {
		return fmt.Errorf("failed to promote subject %s: not found", id)
	}
	if subject.Identity != nil {
		if *subject.Identity == identity {
			return nil
		}
		return domain.ErrIdentityTaken
	}
	if _, taken := r.s.identities[identity]; taken {
		return domain.ErrIdentityTaken
	}
	subject.Identity = &identity
	r.s.identities[identity] = id
	return nil
}

func (r *SubjectRepository) Merge(_ context.Context, from, into string) error {
	if from == into {
		return nil
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for key, e := range r.s.enrollments {
		if key.subject != from {
			continue
		}
		delete(r.s.enrollments, key)
		dest := pairKey{subject: into, name: key.name}
		if _, exists := r.s.enrollments[dest]; !exists {
			e.SubjectID = into
			r.s.enrollments[dest] = e
		}
	}
	for key, rec := range r.s.records {
		if key.subject != from {
			continue
		}
		delete(r.s.records, key)
		dest := pairKey{subject: into, name: key.name}
		if _, exists := r.s.records[dest]; !exists {
			rec.SubjectID = into
			r.s.records[dest] = rec
		}
	}

	if s, ok := r.s.subjects[from]; ok {
		if s.Identity != nil {
			delete(r.s.identities, *s.Identity)
		}
		delete(r.s.subjects, from)
	}
	return nil
}

type ExperimentRepository struct{ s *Store }

func (r *ExperimentRepository) Declare(_ context.Context, experiment *domain.Experiment) (*domain.Experiment, bool, error) {
	if err := experiment.Validate(); err != nil {
		return nil, false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.experiments[experiment.Name]; ok {
		return copyExperiment(existing), false, nil
	}
	stored := copyExperiment(experiment)
	r.s.experiments[experiment.Name] = stored
	return copyExperiment(stored), true, nil
}

func (r *ExperimentRepository) GetByName(_ context.Context, name string) (*domain.Experiment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if e, ok := r.s.experiments[name]; ok {
		return copyExperiment(e), nil
	}
	return nil, nil
}

func (r *ExperimentRepository) List(_ context.Context) ([]*domain.Experiment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	list := make([]*domain.Experiment, 0, len(r.s.experiments))
	for _, e := range r.s.experiments {
		list = append(list, copyExperiment(e))
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].Name < list[j].Name
	})
	return list, nil
}

func (r *ExperimentRepository) SetEnrollable(_ context.Context, name string, enrollable bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.experiments[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownExperiment, name)
	}
	e.Enrollable = enrollable
	return nil
}

type EnrollmentRepository struct{ s *Store }

func (r *EnrollmentRepository) GetOrCreate(_ context.Context, enrollment *domain.Enrollment) (*domain.Enrollment, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.subjects[enrollment.SubjectID]; !ok {
		return nil, false, fmt.Errorf("failed to create enrollment: unknown subject %s", enrollment.SubjectID)
	}
	if _, ok := r.s.experiments[enrollment.Experiment]; !ok {
		return nil, false, fmt.Errorf("failed to create enrollment: %w: %s", domain.ErrUnknownExperiment, enrollment.Experiment)
	}

	key := pairKey{subject: enrollment.SubjectID, name: enrollment.Experiment}
	if existing, ok := r.s.enrollments[key]; ok {
		return copyEnrollment(existing), false, nil
	}
	stored := copyEnrollment(enrollment)
	r.s.enrollments[key] = stored
	return copyEnrollment(stored), true, nil
}

func (r *EnrollmentRepository) Get(_ context.Context, subjectID, experiment string) (*domain.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if e, ok := r.s.enrollments[pairKey{subject: subjectID, name: experiment}]; ok {
		return copyEnrollment(e), nil
	}
	return nil, nil
}

func (r *EnrollmentRepository) ListBySubject(_ context.Context, subjectID string) ([]*domain.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var list []*domain.Enrollment
	for key, e := range r.s.enrollments {
		if key.subject == subjectID {
			list = append(list, copyEnrollment(e))
		}
	}
	sortEnrollments(list)
	return list, nil
}

func (r *EnrollmentRepository) CountByVariant(_ context.Context, experiment, variant string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, e := range r.s.enrollments {
		if e.Experiment == experiment && e.Variant == variant {
			n++
		}
	}
	return n, nil
}

func (r *EnrollmentRepository) CountByVariantWithGoal(_ context.Context, experiment, variant, goal string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, e := range r.s.enrollments {
		if e.Experiment != experiment || e.Variant != variant {
			continue
		}
		if _, ok := r.s.records[pairKey{subject: e.SubjectID, name: goal}]; ok {
			n++
		}
	}
	return n, nil
}

type GoalRepository struct{ s *Store }

func (r *GoalRepository) GetOrCreate(_ context.Context, name string) (*domain.Goal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.goals[name]
	if !ok {
		g = &domain.Goal{Name: name, CreatedAt: time.Now()}
		r.s.goals[name] = g
	}
	c := *g
	return &c, nil
}

func (r *GoalRepository) GetByName(_ context.Context, name string) (*domain.Goal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if g, ok := r.s.goals[name]; ok {
		c := *g
		return &c, nil
	}
	return nil, nil
}

func (r *GoalRepository) List(_ context.Context) ([]*domain.Goal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	list := make([]*domain.Goal, 0, len(r.s.goals))
	for _, g := range r.s.goals {
		c := *g
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

type GoalRecordRepository struct{ s *Store }

func (r *GoalRecordRepository) GetOrCreate(_ context.Context, record *domain.GoalRecord) (*domain.GoalRecord, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.subjects[record.SubjectID]; !ok {
		return nil, false, fmt.Errorf("failed to create goal record: unknown subject %s", record.SubjectID)
	}
	if _, ok := r.s.goals[record.Goal]; !ok {
		return nil, false, fmt.Errorf("failed to create goal record: unknown goal %s", record.Goal)
	}

	key := pairKey{subject: record.SubjectID, name: record.Goal}
	if existing, ok := r.s.records[key]; ok {
		return copyRecord(existing), false, nil
	}
	stored := copyRecord(record)
	r.s.records[key] = stored
	return copyRecord(stored), true, nil
}

func (r *GoalRecordRepository) Get(_ context.Context, subjectID, goal string) (*domain.GoalRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if rec, ok := r.s.records[pairKey{subject: subjectID, name: goal}]; ok {
		return copyRecord(rec), nil
	}
	return nil, nil
}

func (r *GoalRecordRepository) ListBySubject(_ context.Context, subjectID string) ([]*domain.GoalRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var list []*domain.GoalRecord
	for key, rec := range r.s.records {
		if key.subject == subjectID {
			list = append(list, copyRecord(rec))
		}
	}
	sortRecords(list)
	return list, nil
}

func (r *GoalRecordRepository) BackfillExtra(_ context.Context, id, extra string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rec := range r.s.records {
		if rec.ID != id {
			continue
		}
		if rec.HasExtra() {
			return false, nil
		}
		rec.Extra = &extra
		return true, nil
	}
	return false, nil
}

type ReportRepository struct{ s *Store }

func (r *ReportRepository) Create(_ context.Context, report *domain.ExperimentReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.reports[report.ID]; ok {
		return fmt.Errorf("failed to create report: id %s already exists", report.ID)
	}
	if _, ok := r.s.experiments[report.Experiment]; !ok {
		return fmt.Errorf("failed to create report: %w: %s", domain.ErrUnknownExperiment, report.Experiment)
	}
	r.s.reports[report.ID] = copyReport(report)
	return nil
}

func (r *ReportRepository) GetByID(_ context.Context, id string) (*domain.ExperimentReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if rep, ok := r.s.reports[id]; ok {
		return copyReport(rep), nil
	}
	return nil, nil
}

func (r *ReportRepository) ListByExperiment(_ context.Context, experiment string) ([]*domain.ExperimentReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var list []*domain.ExperimentReport
	for _, rep := range r.s.reports {
		if rep.Experiment == experiment {
			list = append(list, copyReport(rep))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}
