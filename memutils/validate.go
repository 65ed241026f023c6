package memutils

// Validatable is used by types that can perform internal consistency checks
// on demand. When an implementation is functioning correctly it should not
// be possible for Validate to return an error, but it may assist in
// diagnosing issues with the implementation.
type Validatable interface {
	Validate() error
}
