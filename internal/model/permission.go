package model

// Permission represents a string code for a specific staff action.
// Permissions are embedded in externally issued staff tokens.
type Permission string

const (
	// PermissionAttemptsRead allows viewing any student's attempt and result.
	PermissionAttemptsRead Permission = "attempts:read"

	// PermissionAttemptsTerminate allows force-terminating or flagging a running attempt.
	PermissionAttemptsTerminate Permission = "attempts:terminate"

	// PermissionResultsGrade allows recording manual grades and re-running aggregation.
	PermissionResultsGrade Permission = "results:grade"

	// PermissionResultsPublish allows releasing results to students.
	PermissionResultsPublish Permission = "results:publish"

	// PermissionProctoringRead allows viewing proctoring logs, stats and the live monitor.
	PermissionProctoringRead Permission = "proctoring:read"
)

// PermissionExamsManage allows refreshing the cached exam definition after edits.
const PermissionExamsManage Permission = "exams:manage"
