package sniff

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// OpenWithMagic opens the file and checks that it starts with one of the
// given signatures (at the given offset). The file is rewound before being
// returned. If the signature does not match, the file is closed and
// (nil, false, nil) is returned.
func OpenWithMagic(
	path string,
	offset int,
	signatures ...[]byte,
) (*os.File, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}

	maxLen := 0
	for _, sig := range signatures {
		if len(sig) > maxLen {
			maxLen = len(sig)
		}
	}
	header := make([]byte, offset+maxLen)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		f.Close()
		return nil, false, fmt.Errorf("unable to read the header: %w", err)
	}
	header = header[:n]

	matched := false
	for _, sig := range signatures {
		if len(header) >= offset+len(sig) && bytes.Equal(header[offset:offset+len(sig)], sig) {
			matched = true
			break
		}
	}
	if !matched {
		f.Close()
		return nil, false, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, false, fmt.Errorf("unable to rewind: %w", err)
	}
	return f, true, nil
}

func HasExtension(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range exts {
		if ext == candidate {
			return true
		}
	}
	return false
}
