// SPDX-License-Identifier: GPL-3.0-or-later

package instr

// Unit is the input of a [Func] that takes no argument.
type Unit struct{}
