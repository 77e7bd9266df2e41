package process

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Listeners is the callback set attached to one running process.
// After Detach every callback becomes a no-op; the process is still reaped.
type Listeners struct {
	OnExit   func(ExitInfo)
	OnError  func(error)
	OnStderr func(line []byte)

	detached atomic.Bool
}

// Detach disables all callbacks. It is safe to call more than once.
func (l *Listeners) Detach() {
	if l != nil {
		l.detached.Store(true)
	}
}

// Detached reports whether Detach has been called.
func (l *Listeners) Detached() bool {
	return l == nil || l.detached.Load()
}

func (l *Listeners) exit(info ExitInfo) {
	if l.Detached() || l.OnExit == nil {
		return
	}
	l.OnExit(info)
}

func (l *Listeners) fail(err error) {
	if l.Detached() || l.OnError == nil {
		return
	}
	l.OnError(err)
}

func (l *Listeners) stderr(line []byte) {
	if l.Detached() || l.OnStderr == nil {
		return
	}
	l.OnStderr(line)
}

// lineWriter splits a byte stream into lines and hands each one to fn.
type lineWriter struct {
	mu  sync.Mutex
	buf []byte
	fn  func([]byte)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(w.buf[:i], "\r")
		if len(line) > 0 {
			w.fn(append([]byte(nil), line...))
		}
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// flush emits a trailing partial line, if any.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.fn(append([]byte(nil), w.buf...))
		w.buf = nil
	}
}
