// SPDX-License-Identifier: GPL-3.0-or-later

// Command instr parses instrument addresses and probes instruments.
//
// Examples:
//
//	instr parse GPIB0::15::INSTR 'TCPIP::10.0.0.9::5025::SOCKET'
//	instr probe --write '*IDN?' TCPIP0::10.0.0.9::INSTR
//	instr probe --config lab.yaml --fallback scope
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
