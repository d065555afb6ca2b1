//go:build !unix

package interrupt

import "os"

// Signals is the set armed by Install. Platforms without POSIX signals only
// deliver os.Interrupt.
var Signals = []os.Signal{os.Interrupt}
