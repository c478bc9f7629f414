//go:build !unix

package allocator

import (
	"sync"
	"unsafe"
)

// Non-unix targets have no mmap-style raw mapping in this codebase's
// dependency surface, so a slab is instead carved from a heap-allocated
// byte slice and pinned in a registry — the same technique the teacher's
// system allocator uses (allocatedSlices) to keep a manually-managed
// backing array alive independent of Go's escape/root analysis.
var (
	pinnedMu sync.Mutex
	pinned   = make(map[unsafe.Pointer][]byte)
)

func osAlloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	// Over-allocate so the data pointer can be nudged up to Align even
	// though Go's allocator gives no alignment guarantee beyond the
	// platform word size.
	buf := make([]byte, size+Align)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := alignUp(base, Align)
	p := unsafe.Pointer(aligned)

	pinnedMu.Lock()
	pinned[p] = buf
	pinnedMu.Unlock()

	return p
}

func osFree(p unsafe.Pointer) {
	if p == nil {
		return
	}

	pinnedMu.Lock()
	delete(pinned, p)
	pinnedMu.Unlock()
}

func raiseSIGSEGV() {
	var p *int
	_ = *p //nolint:staticcheck // deliberate fault: no signal-raising syscall on this platform
}
