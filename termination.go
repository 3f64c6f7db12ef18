// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"encoding/hex"
	"fmt"
	"strings"
)

type terminationKind uint8

const (
	terminationLF terminationKind = iota
	terminationCR
	terminationCRLF
	terminationNone
	terminationCustom
)

// Termination is the byte sequence marking the end of a message.
//
// The zero value is [TerminationLF]. Values are comparable with ==.
type Termination struct {
	kind   terminationKind
	custom string
}

var (
	// TerminationLF terminates messages with "\n".
	TerminationLF = Termination{kind: terminationLF}

	// TerminationCR terminates messages with "\r".
	TerminationCR = Termination{kind: terminationCR}

	// TerminationCRLF terminates messages with "\r\n".
	TerminationCRLF = Termination{kind: terminationCRLF}

	// TerminationNone disables terminator detection. It requires
	// a fixed frame size, see [Conn.SetFrameSize].
	TerminationNone = Termination{kind: terminationNone}
)

// CustomTermination returns a [Termination] using seq.
//
// An empty seq is equivalent to [TerminationNone].
func CustomTermination(seq []byte) Termination {
	if len(seq) == 0 {
		return TerminationNone
	}
	return Termination{kind: terminationCustom, custom: string(seq)}
}

// Bytes returns the terminator bytes, empty for [TerminationNone].
func (t Termination) Bytes() []byte {
	switch t.kind {
	case terminationCR:
		return []byte{'\r'}
	case terminationCRLF:
		return []byte{'\r', '\n'}
	case terminationNone:
		return nil
	case terminationCustom:
		return []byte(t.custom)
	default:
		return []byte{'\n'}
	}
}

// IsNone reports whether terminator detection is disabled.
func (t Termination) IsNone() bool {
	return t.kind == terminationNone
}

// String implements [fmt.Stringer]. The result is accepted by [ParseTermination].
func (t Termination) String() string {
	switch t.kind {
	case terminationCR:
		return "cr"
	case terminationCRLF:
		return "crlf"
	case terminationNone:
		return "none"
	case terminationCustom:
		return "hex:" + hex.EncodeToString([]byte(t.custom))
	default:
		return "lf"
	}
}

// ParseTermination parses "lf", "cr", "crlf", "none" or "hex:<bytes>".
func ParseTermination(name string) (Termination, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "lf", "":
		return TerminationLF, nil
	case "cr":
		return TerminationCR, nil
	case "crlf":
		return TerminationCRLF, nil
	case "none":
		return TerminationNone, nil
	}
	if encoded, ok := strings.CutPrefix(name, "hex:"); ok {
		seq, err := hex.DecodeString(encoded)
		if err != nil {
			return Termination{}, newError(ErrParseFailed, fmt.Sprintf("invalid termination bytes %q", encoded), err)
		}
		return CustomTermination(seq), nil
	}
	return Termination{}, newError(ErrParseFailed, fmt.Sprintf("unknown termination %q", name), nil)
}
