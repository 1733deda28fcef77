package docbuilder

import (
	"strings"
	"sync"
)

const truncatedMarker = "too much data in the log, truncating it"

// logStorage keeps build output up to a byte ceiling. Once full it keeps the
// oldest content and appends a single truncation marker.
type logStorage struct {
	mu        sync.Mutex
	max       int
	buf       strings.Builder
	truncated bool
}

func newLogStorage(maxSize int) *logStorage {
	return &logStorage{max: maxSize}
}

func (s *logStorage) AddLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.truncated {
		return
	}
	if s.max > 0 && s.buf.Len()+len(line)+1 > s.max {
		s.truncated = true
		s.buf.WriteString(truncatedMarker)
		s.buf.WriteByte('\n')
		return
	}
	s.buf.WriteString(line)
	s.buf.WriteByte('\n')
}

func (s *logStorage) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
