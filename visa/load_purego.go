//go:build darwin || linux

// SPDX-License-Identifier: GPL-3.0-or-later

package visa

import (
	"fmt"

	"github.com/bassosimone/runtimex"
	"github.com/ebitengine/purego"
)

// Load opens the shared library for the given variant and binds
// the entry points of [Driver].
//
// The library stays loaded for the process lifetime.
func Load(v Variant) (Driver, error) {
	name, err := v.BinaryName()
	if err != nil {
		return nil, err
	}
	handle, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("visa: cannot load %s: %w", name, err)
	}
	d := &dlDriver{}
	symbols := []struct {
		name string
		fptr any
	}{
		{"viOpenDefaultRM", &d.openDefaultRM},
		{"viOpen", &d.open},
		{"viClear", &d.clear},
		{"viRead", &d.read},
		{"viWrite", &d.write},
		{"viGetAttribute", &d.getAttribute},
		{"viSetAttribute", &d.setAttribute},
		{"viStatusDesc", &d.statusDesc},
		{"viClose", &d.close},
	}
	for _, sym := range symbols {
		addr, err := purego.Dlsym(handle, sym.name)
		if err != nil {
			_ = purego.Dlclose(handle)
			return nil, fmt.Errorf("visa: %s: missing symbol %s: %w", name, sym.name, err)
		}
		purego.RegisterFunc(sym.fptr, addr)
	}
	return d, nil
}

// dlDriver is a [Driver] bound with purego.
type dlDriver struct {
	openDefaultRM func(session *Session) Status
	open          func(rm Session, resource string, mode uint32, timeout uint32, vi *Session) Status
	clear         func(vi Session) Status
	read          func(vi Session, buf *byte, size uint32, count *uint32) Status
	write         func(vi Session, buf *byte, size uint32, count *uint32) Status
	getAttribute  func(vi Session, attr Attribute, state *uint64) Status
	setAttribute  func(vi Session, attr Attribute, state uint64) Status
	statusDesc    func(vi Session, status Status, desc *byte) Status
	close         func(vi Session) Status
}

var _ Driver = &dlDriver{}

func (d *dlDriver) OpenDefaultRM(session *Session) Status {
	return d.openDefaultRM(session)
}

func (d *dlDriver) Open(rm Session, resource string, mode uint32, timeout uint32, vi *Session) Status {
	return d.open(rm, resource, mode, timeout, vi)
}

func (d *dlDriver) Clear(vi Session) Status {
	return d.clear(vi)
}

func (d *dlDriver) Read(vi Session, buf []byte, count *uint32) Status {
	return d.read(vi, bufferPointer(buf), uint32(len(buf)), count)
}

func (d *dlDriver) Write(vi Session, buf []byte, count *uint32) Status {
	return d.write(vi, bufferPointer(buf), uint32(len(buf)), count)
}

func (d *dlDriver) GetAttribute(vi Session, attr Attribute, state *uint64) Status {
	return d.getAttribute(vi, attr, state)
}

func (d *dlDriver) SetAttribute(vi Session, attr Attribute, state uint64) Status {
	return d.setAttribute(vi, attr, state)
}

func (d *dlDriver) StatusDesc(vi Session, status Status, desc []byte) Status {
	runtimex.Assert(len(desc) >= StatusDescSize)
	return d.statusDesc(vi, status, &desc[0])
}

func (d *dlDriver) Close(vi Session) Status {
	return d.close(vi)
}

func bufferPointer(buf []byte) *byte {
	if len(buf) <= 0 {
		return nil
	}
	return &buf[0]
}
