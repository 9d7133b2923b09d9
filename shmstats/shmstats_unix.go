// shmstats_unix.go - file-backed MAP_SHARED mapping of the statistics block

//go:build unix

package shmstats

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Create builds the backing file at path and maps it.
//
// The file is created or truncated, sized to exactly RegionSize, mapped
// MAP_SHARED, and zeroed. Called once per run by the top-level process,
// before any worker exists; descendants reach the same block via Open.
// Any failure here means the host cannot host the benchmark at all.
func Create(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shmstats: create backing file: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(RegionSize); err != nil {
		return nil, fmt.Errorf("shmstats: size backing file: %w", err)
	}

	r, err := mapFile(f)
	if err != nil {
		return nil, err
	}
	r.path = path
	r.Reset()
	return r, nil
}

// Open maps an existing statistics block created by the top-level process.
// Used by worker and trial processes; the path travels to them on argv.
func Open(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shmstats: open backing file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("shmstats: stat backing file: %w", err)
	}
	if fi.Size() < RegionSize {
		return nil, fmt.Errorf("shmstats: backing file truncated: %d < %d", fi.Size(), RegionSize)
	}

	r, err := mapFile(f)
	if err != nil {
		return nil, err
	}
	r.path = path
	return r, nil
}

// mapFile maps RegionSize bytes of f shared and read-write. The descriptor
// may be closed afterwards; the mapping keeps the file alive.
func mapFile(f *os.File) (*Region, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, RegionSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shmstats: mmap: %w", err)
	}
	s, err := view(mem)
	if err != nil {
		_ = unix.Munmap(mem)
		return nil, err
	}
	return &Region{mem: mem, s: s}, nil
}

// Close unmaps the region. The backing file itself is owned by the caller
// that created it; removal is an operational concern outside this package.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	mem := r.mem
	r.mem, r.s = nil, nil
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("shmstats: munmap: %w", err)
	}
	return nil
}
