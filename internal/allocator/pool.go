package allocator

import (
	"log"
	"sync"
	"unsafe"

	mpzerrors "github.com/orizon-lang/mempoolz/internal/errors"
)

// ABIVersion is the binary layout version of Pool's guard/slab encoding,
// checked by tooling that wants to assert compatibility (see
// cmd/mempoolz-bench's --require-abi flag).
const ABIVersion = "1.0.0"

// Pool is the allocator façade: it owns a slab list and a bin array of B
// LIFO free lists, and exposes the pool lifecycle plus alloc/calloc/free.
//
// A Pool is single-owner by default: all operations on one pool must be
// serialized by the caller. Construct with WithThreadSafe to opt into a
// pool-embedded mutex instead. Operations on distinct pools never need to
// synchronize with each other.
type Pool struct {
	bins  [Bins]unsafe.Pointer // head of each bin's LIFO free list (*slot)
	slabs unsafe.Pointer       // head of the doubly-linked slab list

	cfg *poolConfig
	mu  *sync.Mutex // non-nil only when WithThreadSafe is set
}

// NewPool creates an empty pool: every bin is nil and the slab list is
// nil, so the first allocation of any size class pulls a fresh slab from
// the OS.
func NewPool(opts ...PoolOption) *Pool {
	cfg := defaultPoolConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	p := &Pool{cfg: cfg}
	if cfg.threadSafe {
		p.mu = &sync.Mutex{}
	}

	return p
}

func (p *Pool) lock() {
	if p.mu != nil {
		p.mu.Lock()
	}
}

func (p *Pool) unlock() {
	if p.mu != nil {
		p.mu.Unlock()
	}
}

// Alloc returns a data pointer to size bytes of memory from the pool, or
// nil on failure (oversized request or OS allocation failure). A nil pool
// returns nil.
func (p *Pool) Alloc(size uint32) unsafe.Pointer {
	if p == nil {
		return nil
	}

	p.lock()
	defer p.unlock()

	return p.palloc(size, false)
}

// Calloc behaves as Alloc but additionally zero-fills exactly size bytes
// of the returned data region (not the rounded-up slot payload).
func (p *Pool) Calloc(size uint32) unsafe.Pointer {
	if p == nil {
		return nil
	}

	p.lock()
	defer p.unlock()

	return p.palloc(size, true)
}

func (p *Pool) palloc(size uint32, zero bool) unsafe.Pointer {
	requested := size

	if size < MinAlloc {
		size = MinAlloc
	} else if size > MaxAlloc {
		return nil
	}

	size = uint32(alignUp(uintptr(size), SlotAlign))

	var s unsafe.Pointer

	if size > maxPooled {
		slab := p.slabCreate(slotStride(size))
		if slab == nil {
			return nil
		}

		s = slabFirstSlot(slab)
		slotInit(s, size, flagUsed|flagHuge)
	} else {
		idx := binIndex(size)

		if p.bins[idx] == nil {
			slab := p.slabCreate(slotStride(size) * SlabMul)
			if slab == nil {
				return nil
			}

			p.slabInit(slab, size)
		}

		s = p.bins[idx]
		p.bins[idx] = slotNext(s)
		slotInit(s, size, flagUsed)
	}

	data := slotData(s)
	if zero {
		zeroBytes(data, requested)
	}

	return data
}

// Free returns data to its pool. A nil pool or nil data is a no-op.
func (p *Pool) Free(data unsafe.Pointer) {
	if p == nil || data == nil {
		return
	}

	p.lock()
	defer p.unlock()

	s := dataSlot(data)

	head := *slotHead(s)
	size := slotSize(head)
	foot := *slotFoot(s, size)

	if head != foot || head&flagUsed == 0 {
		p.onCorruption(s)
		return
	}

	if head&flagHuge != 0 {
		p.slabRelease(s)
		return
	}

	slotInit(s, size, 0)

	idx := binIndex(size)
	setSlotNext(s, p.bins[idx])
	p.bins[idx] = s
}

func (p *Pool) onCorruption(s unsafe.Pointer) {
	switch p.cfg.corruption {
	case PolicyRaiseSignal:
		raiseSIGSEGV()
	default:
		err := mpzerrors.NullPointer("Pool.Free: guard mismatch or double-free")
		log.Printf("allocator: %s, dropping free for slot %p", err, s)
	}
}

// Reset reclaims every live allocation: huge slabs are released to the
// OS, normal slabs are retained and re-threaded onto their bins so the
// next alloc cycle issues zero OS calls. A nil pool is a no-op.
func (p *Pool) Reset() {
	if p == nil {
		return
	}

	p.lock()
	defer p.unlock()

	p.gc(true)
}

// Destroy releases every slab the pool owns. After Destroy, the Pool must
// not be used again. A nil pool is a no-op.
func (p *Pool) Destroy() {
	if p == nil {
		return
	}

	p.lock()
	p.gc(false)
	p.unlock()
}

// gc is the shared body of Reset (soft=true) and Destroy (soft=false): it
// walks the captured slab list exactly once. Huge slabs are always
// released; normal slabs are released in the hard case and re-threaded
// onto their bin in the soft case.
func (p *Pool) gc(soft bool) {
	// Detach the whole list before touching it: p.slabs is rebuilt from
	// scratch below via slabPush, so it must not still reference any node
	// this loop is about to walk or release.
	slab := p.slabs
	p.slabs = nil

	for i := range p.bins {
		p.bins[i] = nil
	}

	for slab != nil {
		next := slabNext(slab)
		s := slabFirstSlot(slab)
		head := *slotHead(s)

		if !soft || head&flagHuge != 0 {
			osFree(slab)
		} else {
			p.slabPush(slab)
			p.slabInit(slab, slotSize(head))
		}

		slab = next
	}
}

func zeroBytes(p unsafe.Pointer, n uint32) {
	b := unsafe.Slice((*byte)(p), n)
	for i := range b {
		b[i] = 0
	}
}
