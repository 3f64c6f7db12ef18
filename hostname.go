// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"os"
	"strings"
	"sync"
)

// LocalHostname returns the lowercase name of the executing machine.
//
// The name is computed on first use and never refreshed. When the
// operating system cannot provide a name, it is "localhost".
//
// Override [Config.Hostname] to make parsing independent of the host.
var LocalHostname = sync.OnceValue(func() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return strings.ToLower(name)
})
