package allocator

import "unsafe"

// A slot is the unit of allocation handed to the client. Its memory layout
// is three contiguous regions: a 32-bit head guard, the payload (whose
// leading pointer-sized word doubles as the free-list link when the slot
// is free), and a 32-bit foot guard that must equal the head at all times
// the slot is valid.
//
//	offset 0            : head (uint32)
//	offset 4            : payload (size bytes) / next pointer when free
//	offset 4+size       : foot (uint32)
//
// Slots are never represented by a Go struct type: every access goes
// through unsafe.Pointer arithmetic against the slab's raw backing memory.
//
// A slot's own start is not Align-aligned; slabFirstSlot positions it
// slotLead bytes past the slab header so that offset 4 (the data pointer
// handed to the client) is.

func slotHead(s unsafe.Pointer) *uint32 {
	return (*uint32)(s)
}

func slotFoot(s unsafe.Pointer, size uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(s) + 4 + uintptr(size)))
}

// slotSize reads the payload size packed into a guard word.
func slotSize(head uint32) uint32 {
	return head &^ sizeMask
}

// slotData returns the client-facing pointer for a slot.
func slotData(s unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(s) + 4)
}

// dataSlot recovers the slot start from a client-facing data pointer.
func dataSlot(data unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(data) - 4)
}

// slotInit (re)writes both guard words of a slot in one step, the only
// place a slot's head/foot pair is ever touched. flags is 0 for a slot
// about to be threaded onto a free list, flagUsed (optionally | flagHuge)
// for a slot being handed to a client.
func slotInit(s unsafe.Pointer, size uint32, flags uint32) {
	v := flags | size
	*slotHead(s) = v
	*slotFoot(s, size) = v
}

// slotNext reads/writes the free-list link, which aliases the first
// pointer-sized word of the slot's payload region.
func slotNext(s unsafe.Pointer) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(uintptr(s) + 4))
}

func setSlotNext(s unsafe.Pointer, next unsafe.Pointer) {
	*(*unsafe.Pointer)(unsafe.Pointer(uintptr(s) + 4)) = next
}

// slotStride is the total on-disk footprint of a slot of the given
// payload size: size + slotOverhead.
func slotStride(size uint32) uintptr {
	return uintptr(size) + slotOverhead
}
