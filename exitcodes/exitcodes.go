// Package exitcodes defines the standard exit codes used by op-cuke.
package exitcodes

// Exit code constants used by op-cuke
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every mode finished with all units passing
// * TestFailure (1): Used when at least one unit failed
// * RuntimeErr (2): Used when a mode could not complete or the run could not start
const (
	Success     = 0 // All units pass
	TestFailure = 1 // Unit failures
	RuntimeErr  = 2 // Aborted modes, configuration and runtime errors
)
