//go:build unix

package interrupt

import (
	"os"

	"golang.org/x/sys/unix"
)

// Signals is the set armed by Install.
var Signals = []os.Signal{unix.SIGINT, unix.SIGTERM}
