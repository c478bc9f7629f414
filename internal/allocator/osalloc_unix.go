//go:build unix

package allocator

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmap returns no way to recover a mapping's length from its address, so
// osFree needs the original size on hand to call Munmap correctly.
var (
	mmapSizesMu sync.Mutex
	mmapSizes   = make(map[unsafe.Pointer]uintptr)
)

func mmapSize(p unsafe.Pointer) uintptr {
	mmapSizesMu.Lock()
	defer mmapSizesMu.Unlock()

	return mmapSizes[p]
}

// Unix slabs are backed by an anonymous private mmap, the direct analogue
// of posix_memalign for this allocator's "OS collaborator": the mapping is
// already page-aligned, which satisfies Align (16 bytes) trivially, and
// Unmap releases it in one syscall with no Go-heap bookkeeping at all.
func osAlloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil
	}

	p := unsafe.Pointer(&b[0])

	mmapSizesMu.Lock()
	mmapSizes[p] = size
	mmapSizesMu.Unlock()

	return p
}

func osFree(p unsafe.Pointer) {
	if p == nil {
		return
	}

	size := mmapSize(p)
	if size == 0 {
		return
	}

	b := unsafe.Slice((*byte)(p), size)

	mmapSizesMu.Lock()
	delete(mmapSizes, p)
	mmapSizesMu.Unlock()

	_ = unix.Munmap(b)
}

func raiseSIGSEGV() {
	_ = unix.Kill(unix.Getpid(), unix.SIGSEGV)
}
