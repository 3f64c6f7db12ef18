// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import "context"

// Func is a generic operation that accepts an input and returns a result.
//
// Func instances can be composed using [Compose2], [Compose3] and
// [Compose4] to build the dial pipelines used by [*ConnectFunc] and
// [*DNSResolver].
//
// When a Func receives a closeable resource as input and returns an
// error, it closes that resource before returning.
type Func[A, B any] interface {
	Call(ctx context.Context, input A) (B, error)
}

// FuncAdapter wraps a function as a [Func] implementation.
type FuncAdapter[A, B any] func(ctx context.Context, input A) (B, error)

// Call implements [Func].
func (f FuncAdapter[A, B]) Call(ctx context.Context, input A) (B, error) {
	return f(ctx, input)
}
