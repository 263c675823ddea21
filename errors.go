package vizpath

import (
	"errors"
	"fmt"
)

// ConfigError reports invalid SDK configuration. It is the only error the SDK
// raises synchronously to callers: construction fails fast, while transmission
// failures are classified and handled inside the transport and never reach
// instrumented code.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Message)
}

// IsConfigError returns true if the error is a configuration error.
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}
