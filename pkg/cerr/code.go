package cerr

//go:generate go tool stringer -type=Code -output=code_string.go code.go
type Code int

const (
	OK                 = Code(0)
	Conflict           = Code(1)
	NotFound           = Code(2)
	InvalidArgument    = Code(3)
	DeadlineExceeded   = Code(4)
	ExecFailed         = Code(5)
	FailedPrecondition = Code(6)
	Internal           = Code(7)
)

// severe codes get a stack trace attached at construction time.
func (c Code) severe() bool {
	return c == Internal
}
