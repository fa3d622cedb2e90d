package ports

// Repositories bundles every storage port so services can be wired against one
// backend, real or in-memory.
type Repositories struct {
	Subjects    SubjectRepository
	Experiments ExperimentRepository
	Enrollments EnrollmentRepository
	Goals       GoalRepository
	GoalRecords GoalRecordRepository
	Reports     ReportRepository
}
