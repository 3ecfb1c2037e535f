package nativetest

import (
	"bytes"
	"sync"

	"github.com/wippyai/tanker-go/native"
)

type stream struct {
	src     native.InputSource
	key     []byte
	pending []byte
	mu      sync.Mutex
	pos     int
	reads   int
	eof     bool
}

type readOp struct {
	done chan int64
	size int
}

func (l *Library) readSize(i int) int {
	sizes := l.cfg.readSizes
	if len(sizes) == 0 {
		return 64 * 1024
	}
	if n := sizes[i%len(sizes)]; n > 0 {
		return n
	}
	return 1
}

// pull asks the host for the next input chunk. An empty chunk is EOF.
func (l *Library) pull(st *stream) ([]byte, error) {
	size := l.readSize(st.reads)
	st.reads++
	buf := make([]byte, size)
	op := &readOp{done: make(chan int64, 1), size: size}
	p := l.put(KindReadOp, op)

	st.src(buf, p)
	n := <-op.done
	switch {
	case n < 0:
		return nil, fail(codeIOError, "input stream failed")
	case n > int64(size):
		return nil, fail(codeIOError, "input stream overran its buffer")
	}
	return buf[:n], nil
}

// StreamReadOperationFinish implements native.Library.
func (l *Library) StreamReadOperationFinish(p native.Pointer, n int64) {
	l.enter()
	v, ok := l.drop(p, KindReadOp)
	if !ok {
		l.violation()
		return
	}
	op := v.(*readOp)
	if n > int64(op.size) {
		l.violation()
	}
	op.done <- n
}

func (l *Library) newStream(src native.InputSource, rid [ridSize]byte, key []byte) native.Pointer {
	header := make([]byte, 0, streamHeader)
	header = append(header, streamMagic...)
	header = append(header, rid[:]...)
	return l.put(KindStream, &stream{src: src, key: key, pending: header})
}

// StreamEncrypt implements native.Library.
func (l *Library) StreamEncrypt(p native.Pointer, src native.InputSource, _ *native.EncryptOptions) native.Pointer {
	l.enter()
	return l.run("stream_encrypt", func() (native.Pointer, error) {
		c, err := l.readyCore(p)
		if err != nil {
			return 0, err
		}
		rid, key, err := l.newKey(c)
		if err != nil {
			return 0, err
		}
		return l.newStream(src, rid, key), nil
	})
}

// EncryptionSessionStreamEncrypt implements native.Library.
func (l *Library) EncryptionSessionStreamEncrypt(p native.Pointer, src native.InputSource) native.Pointer {
	l.enter()
	return l.run("encryption_session_stream_encrypt", func() (native.Pointer, error) {
		s, err := l.session(p)
		if err != nil {
			return 0, err
		}
		return l.newStream(src, s.rid, s.key), nil
	})
}

// StreamDecrypt implements native.Library. The stream header is read
// before the future resolves.
func (l *Library) StreamDecrypt(p native.Pointer, src native.InputSource) native.Pointer {
	l.enter()
	return l.run("stream_decrypt", func() (native.Pointer, error) {
		if _, err := l.readyCore(p); err != nil {
			return 0, err
		}
		st := &stream{src: src}
		var head []byte
		for len(head) < streamHeader {
			chunk, err := l.pull(st)
			if err != nil {
				return 0, err
			}
			if len(chunk) == 0 {
				return 0, fail(codeDecryptionFailed, "truncated stream header")
			}
			head = append(head, chunk...)
		}
		if !bytes.Equal(head[:4], streamMagic) {
			return 0, fail(codeDecryptionFailed, "invalid stream header")
		}
		var rid [ridSize]byte
		copy(rid[:], head[4:streamHeader])
		key, ok := l.keyOf(rid)
		if !ok {
			return 0, fail(codeDecryptionFailed, "key not found")
		}
		st.key = key
		body := head[streamHeader:]
		st.pending = make([]byte, len(body))
		xorAt(st.pending, body, key, 0)
		st.pos = len(body)
		return l.put(KindStream, st), nil
	})
}

// StreamRead implements native.Library. It resolves with the number of
// bytes written to buf; zero means the stream is exhausted.
func (l *Library) StreamRead(p, buf native.Pointer, size int64) native.Pointer {
	l.enter()
	return l.run("stream_read", func() (native.Pointer, error) {
		v, ok := l.get(p, KindStream)
		if !ok {
			l.violation()
			return 0, fail(codeInvalidArgument, "invalid stream handle")
		}
		st := v.(*stream)
		st.mu.Lock()
		defer st.mu.Unlock()

		for len(st.pending) == 0 && !st.eof {
			chunk, err := l.pull(st)
			if err != nil {
				return 0, err
			}
			if len(chunk) == 0 {
				st.eof = true
				break
			}
			out := make([]byte, len(chunk))
			xorAt(out, chunk, st.key, st.pos)
			st.pos += len(chunk)
			st.pending = append(st.pending, out...)
		}

		n := min(int(size), len(st.pending))
		if err := l.writeBuffer(buf, st.pending[:n]); err != nil {
			return 0, err
		}
		st.pending = st.pending[n:]
		return native.Pointer(n), nil
	})
}

// StreamClose implements native.Library.
func (l *Library) StreamClose(p native.Pointer) native.Pointer {
	l.enter()
	return l.run("stream_close", func() (native.Pointer, error) {
		if _, ok := l.drop(p, KindStream); !ok {
			l.violation()
			return 0, fail(codeInvalidArgument, "invalid stream handle")
		}
		return 0, nil
	})
}
