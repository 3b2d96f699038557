package serialization

import (
	"fmt"
	"os"
)

// MappedFile is a read-only memory mapping of a whole file.
// Byte slices returned by Bytes are valid until Close.
type MappedFile struct {
	file   *os.File
	data   []byte
	size   int64
	closed bool
}

// MapFile opens path read-only and maps it into memory.
//
// Important: Always call Close() when done to unmap the file (use defer).
func MapFile(path string) (*MappedFile, error) {
	//nolint:gosec // G304: path is user supplied by design
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	m := &MappedFile{file: file, size: stat.Size()}
	if m.size == 0 {
		// Zero-length mappings are rejected by the OS.
		return m, nil
	}

	data, err := mmapFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	m.data = data
	return m, nil
}

// Bytes returns the mapped region.
func (m *MappedFile) Bytes() []byte {
	return m.data
}

// Size returns the file size in bytes.
func (m *MappedFile) Size() int64 {
	return m.size
}

// Name returns the path the file was opened with.
func (m *MappedFile) Name() string {
	return m.file.Name()
}

// Close unmaps and closes the file.
func (m *MappedFile) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var unmapErr error
	if m.data != nil {
		unmapErr = munmapFile(m.data)
		m.data = nil
	}
	closeErr := m.file.Close()

	if unmapErr != nil {
		return fmt.Errorf("munmap failed: %w", unmapErr)
	}
	return closeErr
}
