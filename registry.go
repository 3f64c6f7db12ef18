// SPDX-License-Identifier: GPL-3.0-or-later

package instr

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bassosimone/instr/visa"
)

// Loader loads the native driver for a [visa.Variant].
type Loader interface {
	Load(variant visa.Variant) (visa.Driver, error)
}

// LoaderFunc adapts a function to the [Loader] interface.
type LoaderFunc func(variant visa.Variant) (visa.Driver, error)

var _ Loader = LoaderFunc(nil)

// Load implements [Loader].
func (f LoaderFunc) Load(variant visa.Variant) (visa.Driver, error) {
	return f(variant)
}

// Binding is a loaded driver plus its default resource manager session.
//
// A Binding is shared by every connection using the same variant and
// lives until the process exits. Connections never close it.
type Binding struct {
	// Driver is the loaded driver.
	Driver visa.Driver

	// Session is the default resource manager session.
	Session visa.Session

	// Variant is the variant this binding was loaded for.
	Variant visa.Variant
}

// Registry caches one [*Binding] per [visa.Variant].
//
// The first [*Registry.Load] for a variant loads the driver and opens
// the resource manager session. Later calls, including concurrent ones,
// observe the same binding or the same error: failures are memoized
// and never retried.
//
// All fields are safe to modify after construction but before first use.
type Registry struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewRegistry] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Loader loads the driver binary.
	//
	// Set by [NewRegistry] to the user-provided loader.
	Loader Loader

	// Logger is the [SLogger] to use.
	//
	// Set by [NewRegistry] to [DefaultSLogger].
	Logger SLogger

	// TimeNow is the function to get the current time.
	//
	// Set by [NewRegistry] to [time.Now].
	TimeNow func() time.Time

	mu      sync.Mutex
	entries map[visa.Variant]registryEntry
}

type registryEntry struct {
	binding *Binding
	err     error
}

// NewRegistry returns a new [*Registry] using the given [Loader].
func NewRegistry(loader Loader) *Registry {
	return &Registry{
		ErrClassifier: DefaultErrClassifier,
		Loader:        loader,
		Logger:        DefaultSLogger(),
		TimeNow:       time.Now,
	}
}

// DefaultRegistry returns the process-wide [*Registry] backed by [visa.Load].
var DefaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry(LoaderFunc(visa.Load))
})

// Load returns the [*Binding] for variant, loading it on first use.
//
// Errors wrap [ErrBinary] when the library cannot be loaded and
// [ErrOpenSession] when the resource manager session does not open.
//
// The lock is held while loading so each variant is loaded exactly once.
func (r *Registry) Load(variant visa.Variant) (*Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, found := r.entries[variant]; found {
		return entry.binding, entry.err
	}
	entry := r.load(variant)
	if r.entries == nil {
		r.entries = make(map[visa.Variant]registryEntry)
	}
	r.entries[variant] = entry
	return entry.binding, entry.err
}

func (r *Registry) load(variant visa.Variant) (entry registryEntry) {
	t0 := r.TimeNow()
	r.Logger.Info(
		"driverLoadStart",
		slog.String("driverVariant", variant.String()),
		slog.Time("t", t0),
	)
	defer func() {
		r.Logger.Info(
			"driverLoadDone",
			slog.String("driverVariant", variant.String()),
			slog.Any("err", entry.err),
			slog.String("errClass", r.ErrClassifier.Classify(entry.err)),
			slog.Time("t0", t0),
			slog.Time("t", r.TimeNow()),
		)
	}()

	driver, err := r.Loader.Load(variant)
	if err != nil {
		entry.err = newError(ErrBinary, fmt.Sprintf("cannot load the %s driver", variant), err)
		return
	}

	var session visa.Session
	status := driver.OpenDefaultRM(&session)
	if status.Failed() || session == 0 {
		entry.err = newError(ErrOpenSession, fmt.Sprintf(
			"the %s driver loaded but its resource manager did not open (status %d), a dependency of the driver may be missing",
			variant, status), nil)
		return
	}

	entry.binding = &Binding{Driver: driver, Session: session, Variant: variant}
	return
}
