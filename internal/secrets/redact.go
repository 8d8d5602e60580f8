package secrets

import (
	"bytes"
	"io"
	"sort"
	"sync"
)

// RedactingWriter masks secret values before they reach the underlying
// writer. Output is buffered per line so a value split across writes is
// still caught; call Close to flush a trailing partial line.
type RedactingWriter struct {
	mu     sync.Mutex
	out    io.Writer
	values [][]byte
	buf    []byte
}

func NewRedactingWriter(out io.Writer, values []string) *RedactingWriter {
	w := &RedactingWriter{out: out}
	for _, v := range values {
		if v != "" {
			w.values = append(w.values, []byte(v))
		}
	}
	// Longest first so a value containing another is masked whole.
	sort.Slice(w.values, func(i, j int) bool { return len(w.values[i]) > len(w.values[j]) })
	return w
}

func (w *RedactingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	idx := bytes.LastIndexByte(w.buf, '\n')
	if idx < 0 {
		return len(p), nil
	}
	line := w.buf[:idx+1]
	if _, err := w.out.Write(w.redact(line)); err != nil {
		return 0, err
	}
	w.buf = append(w.buf[:0], w.buf[idx+1:]...)
	return len(p), nil
}

func (w *RedactingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.out.Write(w.redact(w.buf))
	w.buf = w.buf[:0]
	return err
}

func (w *RedactingWriter) redact(b []byte) []byte {
	out := append([]byte(nil), b...)
	for _, v := range w.values {
		out = bytes.ReplaceAll(out, v, []byte(Mask))
	}
	return out
}

// Redact masks values in s.
func Redact(s string, values []string) string {
	var buf bytes.Buffer
	w := NewRedactingWriter(&buf, values)
	w.Write([]byte(s))
	w.Close()
	return buf.String()
}
