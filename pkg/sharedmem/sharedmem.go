// Package sharedmem models the one resource the PMU core borrows from its
// external collaborators without owning: a shared memory object vended by
// the physical-memory / address-space manager, and the kernel-side mapping
// of that object while a trace session is active.
//
// The PMU core never allocates this object itself — assign_buffer receives
// one from its caller — so Object is an interface. MemFDObject is the
// concrete implementation used by tests and by the reference command-line
// driver in cmd/ipmctl; a real kernel build would instead hand in whatever
// the platform's memory manager produces.
package sharedmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Object is a reference to a shared memory region, analogous to a VMO or
// memfd handle. It can be mapped into the kernel's address space any number
// of times between init and start.
type Object interface {
	// Size returns the object's size in bytes.
	Size() uintptr

	// Map creates a new, committed, read-write kernel-side mapping of the
	// entire object. Implementations must ensure every page is resident
	// on return so that the interrupt producer never takes a page fault.
	Map() (Mapping, error)
}

// Mapping is a live kernel-side mapping of an Object. It exposes the
// mapped bytes directly so the record encoder can write into it without an
// intermediate copy.
type Mapping interface {
	// Bytes returns the mapped region.
	Bytes() []byte

	// Unmap tears down the mapping. It is only safe to call once, and only
	// after the owning CPU is guaranteed not to be producing records into
	// it (i.e. after the active flag has been cleared).
	Unmap() error
}

// MemFDObject is an Object backed by a Linux memfd, mapped MAP_SHARED so
// that the consuming user-space driver sees every record the interrupt
// producer appends.
type MemFDObject struct {
	fd   int
	size uintptr
}

// NewMemFDObject creates a new anonymous shared memory object of the given
// size. It does not fault in any pages; Map commits them (MAP_POPULATE)
// each time the object is mapped.
func NewMemFDObject(name string, size uintptr) (*MemFDObject, error) {
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, fmt.Errorf("sharedmem: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("sharedmem: ftruncate: %w", err)
	}
	return &MemFDObject{fd: fd, size: size}, nil
}

// Size implements Object.
func (o *MemFDObject) Size() uintptr {
	return o.size
}

// Map implements Object.
func (o *MemFDObject) Map() (Mapping, error) {
	b, err := unix.Mmap(o.fd, 0, int(o.size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("sharedmem: mmap: %w", err)
	}
	return &memFDMapping{data: b}, nil
}

// Close releases the underlying memfd. Analogous to fini() dropping the
// per-CPU slot's shared memory reference.
func (o *MemFDObject) Close() error {
	return unix.Close(o.fd)
}

type memFDMapping struct {
	data []byte
}

// Bytes implements Mapping.
func (m *memFDMapping) Bytes() []byte {
	return m.data
}

// Unmap implements Mapping.
func (m *memFDMapping) Unmap() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
