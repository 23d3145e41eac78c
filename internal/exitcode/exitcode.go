package exitcode

const (
	Success         = 0
	UsageError      = 1
	ValidationError = 2
	DBConnError     = 3
	StageError      = 4
	TransformError  = 5
	PartialSuccess  = 6 // warehouse written but view refresh failed
)
