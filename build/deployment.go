package build

import "fmt"

// DeploymentType is an enum specifying the deployment to compile.
type DeploymentType byte

const (
	// Development builds honor the stdlog and nolog tags and default to
	// the debug log level when built with the debug tag.
	Development DeploymentType = iota

	// Production builds always log through the rotating writer.
	Production
)

// String returns a human readable name for a build type.
func (b DeploymentType) String() string {
	switch b {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return "unknown"
	}
}

// Info describes the build for version strings.
func Info() string {
	return fmt.Sprintf("deployment=%v logging=%v loglevel=%v", Deployment,
		LoggingType, LogLevel)
}
