package models

// HouseStatus represents the processing status of a house in the ledger database
type HouseStatus string

const (
	HouseStatusUnset    HouseStatus = ""          // Zero value = unset/unknown
	HouseStatusPending  HouseStatus = "pending"   // House listed but not processed yet
	HouseStatusSuccess  HouseStatus = "success"   // House page obtained and extracted
	HouseStatusFailure  HouseStatus = "failure"   // House page could not be obtained or extracted
	HouseStatusNotFound HouseStatus = "not_found" // House not in database
	HouseStatusDBError  HouseStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s HouseStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s HouseStatus) IsValid() bool {
	switch s {
	case HouseStatusPending, HouseStatusSuccess, HouseStatusFailure:
		return true
	}
	return false
}

// ResultStatus tags the outcome of a fetch or extraction step.
type ResultStatus string

const (
	ResultOK       ResultStatus = "ok"
	ResultBlocked  ResultStatus = "blocked"   // Anti-bot challenge page instead of content
	ResultNotFound ResultStatus = "not_found" // No data: missing archive entry in cache-only mode, 4xx page
	ResultFailed   ResultStatus = "failed"    // Content present but unusable; Reason says why
)

// String implements fmt.Stringer for logging
func (s ResultStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// Result is returned explicitly from every fetch and extract call so that
// "blocked", "no data" and "unusable" never travel as booleans or markup scans.
type Result[T any] struct {
	Status ResultStatus
	Value  T
	Reason string
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Status: ResultOK, Value: v}
}

// Blocked reports an anti-bot challenge.
func Blocked[T any](reason string) Result[T] {
	return Result[T]{Status: ResultBlocked, Reason: reason}
}

// NotFound reports that there is no data to work with.
func NotFound[T any](reason string) Result[T] {
	return Result[T]{Status: ResultNotFound, Reason: reason}
}

// Failed reports unusable content.
func Failed[T any](reason string) Result[T] {
	return Result[T]{Status: ResultFailed, Reason: reason}
}

// IsOK is shorthand for Status == ResultOK.
func (r Result[T]) IsOK() bool { return r.Status == ResultOK }
