// SPDX-License-Identifier: GPL-3.0-or-later

package visa

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

type variantKind uint8

const (
	kindPrimary variantKind = iota
	kindKeysight
	kindNIVISA
	kindCustom
)

// Variant identifies a distinguishable VISA driver binary.
//
// Variant is comparable and is used as a cache key. Two custom
// variants are equal when their paths are equal.
type Variant struct {
	kind variantKind
	path string
}

var (
	// Primary is whatever VISA implementation is installed as the system
	// default (visa32.dll, libvisa.so). This is the zero value.
	Primary = Variant{kind: kindPrimary}

	// Keysight is the Keysight IO Libraries VISA.
	Keysight = Variant{kind: kindKeysight}

	// NIVISA is the National Instruments VISA.
	NIVISA = Variant{kind: kindNIVISA}
)

// Custom returns a [Variant] loading the binary at path.
func Custom(path string) Variant {
	return Variant{kind: kindCustom, path: path}
}

// ParseVariant returns the named variant.
//
// Accepted names are "primary" (or "default" or the empty string),
// "keysight", and "nivisa" (or "ni-visa"). Use [Custom] for paths.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default", "primary":
		return Primary, nil
	case "keysight":
		return Keysight, nil
	case "nivisa", "ni-visa":
		return NIVISA, nil
	default:
		return Variant{}, fmt.Errorf("visa: unknown driver variant %q", name)
	}
}

// Path returns the custom binary path, or the empty string.
func (v Variant) Path() string {
	return v.path
}

// String implements [fmt.Stringer].
func (v Variant) String() string {
	switch v.kind {
	case kindKeysight:
		return "keysight"
	case kindNIVISA:
		return "nivisa"
	case kindCustom:
		return "custom:" + v.path
	default:
		return "primary"
	}
}

// BinaryName returns the shared library name for the running platform.
func (v Variant) BinaryName() (string, error) {
	return binaryName(v, runtime.GOOS, strconv.IntSize)
}

func binaryName(v Variant, goos string, bits int) (string, error) {
	windows := goos == "windows"
	unix := !windows && isUnix(goos)
	switch v.kind {
	case kindCustom:
		return v.path, nil

	case kindKeysight:
		switch {
		case windows:
			return "ktvisa32.dll", nil
		case unix && bits == 64:
			return "libiovisa.so", nil
		}

	case kindNIVISA:
		switch {
		case windows && bits == 64:
			return "nivisa64.dll", nil
		case windows && bits == 32:
			return "visa32.dll", nil
		case unix && bits == 64:
			return "libvisa.so", nil
		}

	default:
		switch {
		case windows:
			return "visa32.dll", nil
		case unix && bits == 64:
			return "libvisa.so", nil
		case unix && bits == 32:
			return "libvisa32.so", nil
		}
	}
	return "", fmt.Errorf("%w: %s driver on %s/%d-bit", ErrUnsupportedPlatform, v, goos, bits)
}

func isUnix(goos string) bool {
	switch goos {
	case "aix", "android", "darwin", "dragonfly", "freebsd", "illumos",
		"ios", "linux", "netbsd", "openbsd", "solaris":
		return true
	}
	return false
}
