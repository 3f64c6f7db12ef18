//go:build !darwin && !linux && !windows

// SPDX-License-Identifier: GPL-3.0-or-later

package visa

import "fmt"

// Load always fails on platforms without a supported dynamic loader.
func Load(v Variant) (Driver, error) {
	return nil, fmt.Errorf("%w: cannot load %s driver", ErrUnsupportedPlatform, v)
}
