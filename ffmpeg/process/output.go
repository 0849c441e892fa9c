package process

import (
	"bytes"
	"sync"
)

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	locker    sync.Mutex
	limit     int
	buf       []byte
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.locker.Lock()
	defer t.locker.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.truncated = true
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.locker.Lock()
	defer t.locker.Unlock()
	s := t.buf
	if t.truncated {
		// the cut may have happened mid-line
		if idx := bytes.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		}
	}
	return string(s)
}

// lineWriter calls fn for every complete line written to it. ffmpeg
// rewrites its status line with '\r', so both '\r' and '\n' end a line.
type lineWriter struct {
	fn      func(string)
	pending []byte
}

func (w *lineWriter) Write(b []byte) (int, error) {
	for _, c := range b {
		if c != '\n' && c != '\r' {
			w.pending = append(w.pending, c)
			continue
		}
		if len(w.pending) > 0 {
			w.fn(string(w.pending))
			w.pending = w.pending[:0]
		}
	}
	return len(b), nil
}
