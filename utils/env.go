package utils

import (
	"os"
	"strconv"

	"go.viam.com/tamp/logging"
)

// GetenvInt returns the integer value of the environment variable, or the default when it is unset
// or malformed.
func GetenvInt(v string, def int) int {
	x := os.Getenv(v)
	if x == "" {
		return def
	}

	i, err := strconv.Atoi(x)
	if err != nil {
		logging.Global().Warnf("bad value for env variable %s: %q, using default %d", v, x, def)
		return def
	}

	return i
}
