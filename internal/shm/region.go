package shm

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is a mapped view of the shared-memory ring: header plus N fixed
// slots. A producer opens it writable via Create; consumers open it
// read-only via Attach.
type Region struct {
	data      []byte
	hdr       *header
	slotSize  uint32
	slotCount uint32
	writable  bool
}

func shmPath(name string) string {
	return "/dev/shm/" + name
}

// Create creates (or truncates, if force) a named region sized for
// slotCount slots of slotSize bytes each, and returns a writable handle.
// slotCount must be a power of two and slotSize a multiple of the larger of
// 8 bytes or the cache line size.
func Create(name string, slotSize, slotCount uint32, force bool) (*Region, error) {
	if slotCount == 0 || slotCount&(slotCount-1) != 0 {
		return nil, fmt.Errorf("shm: slot count %d is not a power of two", slotCount)
	}
	if slotSize%CacheLineSize != 0 {
		return nil, fmt.Errorf("shm: slot size %d is not a multiple of the cache line size (%d)", slotSize, CacheLineSize)
	}
	if int(slotSize) <= SlotHeaderSize {
		return nil, fmt.Errorf("shm: slot size %d too small for slot header (%d)", slotSize, SlotHeaderSize)
	}

	path := shmPath(name)
	flags := os.O_RDWR | os.O_CREATE
	if force {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("shm: region %q already exists (use force to recreate): %w", name, err)
		}
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	defer f.Close()

	size := int64(HeaderSize) + int64(slotSize)*int64(slotCount)
	if err := f.Truncate(size); err != nil {
		return nil, fmt.Errorf("shm: truncate %s to %d: %w", path, size, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	r := &Region{data: data, slotSize: slotSize, slotCount: slotCount, writable: true}
	r.hdr = (*header)(unsafe.Pointer(&data[0]))
	r.hdr.magic = Magic
	r.hdr.version = Version
	r.hdr.slotSize = uint16(slotSize)
	r.hdr.slotCount = slotCount
	r.hdr.producerPID = uint32(os.Getpid())
	r.hdr.createdNs = uint64(time.Now().UnixNano())
	r.hdr.writeCursor = 0
	// zero all slots explicitly; O_TRUNC/ftruncate already zero-fills on
	// Linux, but this keeps the invariant documented and host-portable.
	for i := HeaderSize; i < len(data); i++ {
		data[i] = 0
	}
	return r, nil
}

// Attach opens an existing named region read-only. It fails if the magic
// or version does not match this binary's expectations.
func Attach(name string) (*Region, error) {
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}
	if fi.Size() < HeaderSize {
		return nil, fmt.Errorf("shm: region %q too small to hold a header", name)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	hdr := (*header)(unsafe.Pointer(&data[0]))
	if gotMagic := hdr.magic; gotMagic != Magic {
		unix.Munmap(data)
		return nil, fmt.Errorf("shm: region %q magic mismatch: got 0x%08x, want 0x%08x", name, gotMagic, Magic)
	}
	if gotVersion := hdr.version; gotVersion != Version {
		unix.Munmap(data)
		return nil, fmt.Errorf("shm: region %q version mismatch: got %d, want %d", name, gotVersion, Version)
	}

	expect := int64(HeaderSize) + int64(hdr.slotSize)*int64(hdr.slotCount)
	if fi.Size() < expect {
		unix.Munmap(data)
		return nil, fmt.Errorf("shm: region %q truncated: have %d bytes, want %d", name, fi.Size(), expect)
	}

	return &Region{
		data:      data,
		hdr:       hdr,
		slotSize:  uint32(hdr.slotSize),
		slotCount: hdr.slotCount,
		writable:  false,
	}, nil
}

// Close unmaps the region. On Linux the backing /dev/shm file persists
// until explicitly removed; naming/cleanup discipline is the caller's
// responsibility (see spec.md §4.3).
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}

// Remove unlinks the named region's backing file. Safe to call after Close.
func Remove(name string) error {
	return os.Remove(shmPath(name))
}

func (r *Region) slotSizeU32() uint32  { return r.slotSize }
func (r *Region) slotCountU32() uint32 { return r.slotCount }

func (r *Region) slotOffset(idx uint32) int {
	return HeaderSize + int(idx)*int(r.slotSize)
}
