// SPDX-License-Identifier: GPL-3.0-or-later

package visa

// FuncDriver is a [Driver] whose methods call the corresponding function
// fields. Calling a method whose field is nil panics.
//
// The zero value is not ready to use: set the fields the code under
// test is expected to call.
type FuncDriver struct {
	OpenDefaultRMFunc func(session *Session) Status
	OpenFunc          func(rm Session, resource string, mode uint32, timeout uint32, vi *Session) Status
	ClearFunc         func(vi Session) Status
	ReadFunc          func(vi Session, buf []byte, count *uint32) Status
	WriteFunc         func(vi Session, buf []byte, count *uint32) Status
	GetAttributeFunc  func(vi Session, attr Attribute, state *uint64) Status
	SetAttributeFunc  func(vi Session, attr Attribute, state uint64) Status
	StatusDescFunc    func(vi Session, status Status, desc []byte) Status
	CloseFunc         func(vi Session) Status
}

var _ Driver = &FuncDriver{}

// OpenDefaultRM implements [Driver].
func (d *FuncDriver) OpenDefaultRM(session *Session) Status {
	return d.OpenDefaultRMFunc(session)
}

// Open implements [Driver].
func (d *FuncDriver) Open(rm Session, resource string, mode uint32, timeout uint32, vi *Session) Status {
	return d.OpenFunc(rm, resource, mode, timeout, vi)
}

// Clear implements [Driver].
func (d *FuncDriver) Clear(vi Session) Status {
	return d.ClearFunc(vi)
}

// Read implements [Driver].
func (d *FuncDriver) Read(vi Session, buf []byte, count *uint32) Status {
	return d.ReadFunc(vi, buf, count)
}

// Write implements [Driver].
func (d *FuncDriver) Write(vi Session, buf []byte, count *uint32) Status {
	return d.WriteFunc(vi, buf, count)
}

// GetAttribute implements [Driver].
func (d *FuncDriver) GetAttribute(vi Session, attr Attribute, state *uint64) Status {
	return d.GetAttributeFunc(vi, attr, state)
}

// SetAttribute implements [Driver].
func (d *FuncDriver) SetAttribute(vi Session, attr Attribute, state uint64) Status {
	return d.SetAttributeFunc(vi, attr, state)
}

// StatusDesc implements [Driver].
func (d *FuncDriver) StatusDesc(vi Session, status Status, desc []byte) Status {
	return d.StatusDescFunc(vi, status, desc)
}

// Close implements [Driver].
func (d *FuncDriver) Close(vi Session) Status {
	return d.CloseFunc(vi)
}
