//go:build windows

// SPDX-License-Identifier: GPL-3.0-or-later

package visa

import (
	"fmt"
	"unsafe"

	"github.com/bassosimone/runtimex"
	"golang.org/x/sys/windows"
)

// Load opens the DLL for the given variant and binds the entry
// points of [Driver].
//
// The DLL stays loaded for the process lifetime.
func Load(v Variant) (Driver, error) {
	name, err := v.BinaryName()
	if err != nil {
		return nil, err
	}
	dll, err := windows.LoadDLL(name)
	if err != nil {
		return nil, fmt.Errorf("visa: cannot load %s: %w", name, err)
	}
	d := &dllDriver{}
	procs := []struct {
		name string
		proc **windows.Proc
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
	for _, p := range procs {
		proc, err := dll.FindProc(p.name)
		if err != nil {
			_ = dll.Release()
			return nil, fmt.Errorf("visa: %s: missing symbol %s: %w", name, p.name, err)
		}
		*p.proc = proc
	}
	return d, nil
}

// dllDriver is a [Driver] bound with LoadDLL.
type dllDriver struct {
	openDefaultRM *windows.Proc
	open          *windows.Proc
	clear         *windows.Proc
	read          *windows.Proc
	write         *windows.Proc
	getAttribute  *windows.Proc
	setAttribute  *windows.Proc
	statusDesc    *windows.Proc
	close         *windows.Proc
}

var _ Driver = &dllDriver{}

func call(proc *windows.Proc, args ...uintptr) Status {
	r1, _, _ := proc.Call(args...)
	return Status(int32(r1))
}

func (d *dllDriver) OpenDefaultRM(session *Session) Status {
	return call(d.openDefaultRM, uintptr(unsafe.Pointer(session)))
}

func (d *dllDriver) Open(rm Session, resource string, mode uint32, timeout uint32, vi *Session) Status {
	name, err := windows.BytePtrFromString(resource)
	if err != nil {
		return StatusErrorInvalidResourceName
	}
	return call(d.open, uintptr(rm), uintptr(unsafe.Pointer(name)),
		uintptr(mode), uintptr(timeout), uintptr(unsafe.Pointer(vi)))
}

func (d *dllDriver) Clear(vi Session) Status {
	return call(d.clear, uintptr(vi))
}

func (d *dllDriver) Read(vi Session, buf []byte, count *uint32) Status {
	return call(d.read, uintptr(vi), uintptr(unsafe.Pointer(bufferPointer(buf))),
		uintptr(len(buf)), uintptr(unsafe.Pointer(count)))
}

func (d *dllDriver) Write(vi Session, buf []byte, count *uint32) Status {
	return call(d.write, uintptr(vi), uintptr(unsafe.Pointer(bufferPointer(buf))),
		uintptr(len(buf)), uintptr(unsafe.Pointer(count)))
}

func (d *dllDriver) GetAttribute(vi Session, attr Attribute, state *uint64) Status {
	return call(d.getAttribute, uintptr(vi), uintptr(attr), uintptr(unsafe.Pointer(state)))
}

// SetAttribute implements [Driver].
//
// ViAttrState is pointer sized on windows, so the state fits a uintptr.
func (d *dllDriver) SetAttribute(vi Session, attr Attribute, state uint64) Status {
	return call(d.setAttribute, uintptr(vi), uintptr(attr), uintptr(state))
}

func (d *dllDriver) StatusDesc(vi Session, status Status, desc []byte) Status {
	runtimex.Assert(len(desc) >= StatusDescSize)
	return call(d.statusDesc, uintptr(vi), uintptr(status), uintptr(unsafe.Pointer(&desc[0])))
}

func (d *dllDriver) Close(vi Session) Status {
	return call(d.close, uintptr(vi))
}

func bufferPointer(buf []byte) *byte {
	if len(buf) <= 0 {
		return nil
	}
	return &buf[0]
}
