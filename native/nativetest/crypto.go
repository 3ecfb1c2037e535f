package nativetest

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/wippyai/tanker-go/native"
)

// Simulated wire format. Not encryption: a keyed XOR under a random
// resource id, enough to round-trip and to detect tampering with the
// header.
var (
	simpleMagic = []byte("TNK1")
	streamMagic = []byte("TNKS")
)

const (
	ridSize       = 16
	streamHeader  = 4 + ridSize
	simpleHeader  = streamHeader + 4
	maxClearSize  = 1 << 30
	paddingFloorN = 2
)

type session struct {
	key []byte
	rid [ridSize]byte
	pad uint32
}

func newResourceID() ([ridSize]byte, error) {
	var rid [ridSize]byte
	_, err := rand.Read(rid[:])
	return rid, err
}

func defaultKey(rid [ridSize]byte) []byte {
	sum := sha256.Sum256(rid[:])
	return sum[:16]
}

func xorAt(dst, src, key []byte, offset int) {
	for i := range src {
		dst[i] = src[i] ^ key[(offset+i)%len(key)]
	}
}

func padded(n uint64, step uint32) uint64 {
	if step < paddingFloorN {
		return n
	}
	s := uint64(step)
	if n == 0 {
		return s
	}
	return (n + s - 1) / s * s
}

// EncryptedSize implements native.Library.
func (l *Library) EncryptedSize(clearSize uint64, paddingStep uint32) uint64 {
	l.enter()
	return simpleHeader + padded(clearSize, paddingStep)
}

// newKey allocates a resource id and its key, fetching the key over HTTP
// when a key lookup is configured.
func (l *Library) newKey(c *core) ([ridSize]byte, []byte, error) {
	rid, err := newResourceID()
	if err != nil {
		return rid, nil, fail(codeInternalError, err.Error())
	}
	key, err := l.fetchKey(c, hex.EncodeToString(rid[:]))
	if err != nil {
		return rid, nil, err
	}
	if key == nil {
		key = defaultKey(rid)
	}
	l.mu.Lock()
	l.keys[rid] = key
	l.mu.Unlock()
	return rid, key, nil
}

func (l *Library) keyOf(rid [ridSize]byte) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k, ok := l.keys[rid]
	return k, ok
}

func seal(rid [ridSize]byte, key, plain []byte, step uint32) []byte {
	total := padded(uint64(len(plain)), step)
	out := make([]byte, simpleHeader+int(total))
	copy(out, simpleMagic)
	copy(out[4:], rid[:])
	binary.LittleEndian.PutUint32(out[streamHeader:], uint32(len(plain)))
	body := make([]byte, total)
	copy(body, plain)
	xorAt(out[simpleHeader:], body, key, 0)
	return out
}

func parseSimple(in []byte) ([ridSize]byte, uint32, error) {
	var rid [ridSize]byte
	if len(in) < simpleHeader || !bytes.Equal(in[:4], simpleMagic) {
		return rid, 0, fail(codeDecryptionFailed, "invalid encrypted data")
	}
	copy(rid[:], in[4:streamHeader])
	n := binary.LittleEndian.Uint32(in[streamHeader:])
	if uint64(n) > uint64(len(in)-simpleHeader) {
		return rid, 0, fail(codeDecryptionFailed, "truncated encrypted data")
	}
	return rid, n, nil
}

func (l *Library) encrypt(out native.Pointer, rid [ridSize]byte, key, in []byte, step uint32) (native.Pointer, error) {
	if len(in) > maxClearSize {
		return 0, fail(codeInvalidArgument, "plain data too large")
	}
	sealed := seal(rid, key, in, step)
	if err := l.writeBuffer(out, sealed); err != nil {
		return 0, err
	}
	return 0, nil
}

// Encrypt implements native.Library.
func (l *Library) Encrypt(p, out native.Pointer, in []byte, opts *native.EncryptOptions) native.Pointer {
	l.enter()
	plain := append([]byte(nil), in...)
	var step uint32
	if opts != nil {
		step = opts.PaddingStep
	}
	return l.run("encrypt", func() (native.Pointer, error) {
		c, err := l.readyCore(p)
		if err != nil {
			return 0, err
		}
		rid, key, err := l.newKey(c)
		if err != nil {
			return 0, err
		}
		return l.encrypt(out, rid, key, plain, step)
	})
}

// DecryptedSize implements native.Library.
func (l *Library) DecryptedSize(in []byte) native.Pointer {
	l.enter()
	data := append([]byte(nil), in...)
	return l.run("decrypted_size", func() (native.Pointer, error) {
		_, n, err := parseSimple(data)
		return native.Pointer(n), err
	})
}

// Decrypt implements native.Library.
func (l *Library) Decrypt(p, out native.Pointer, in []byte) native.Pointer {
	l.enter()
	data := append([]byte(nil), in...)
	return l.run("decrypt", func() (native.Pointer, error) {
		if _, err := l.readyCore(p); err != nil {
			return 0, err
		}
		rid, n, err := parseSimple(data)
		if err != nil {
			return 0, err
		}
		key, ok := l.keyOf(rid)
		if !ok {
			return 0, fail(codeDecryptionFailed, "key not found")
		}
		plain := make([]byte, len(data)-simpleHeader)
		xorAt(plain, data[simpleHeader:], key, 0)
		if err := l.writeBuffer(out, plain[:n]); err != nil {
			return 0, err
		}
		return native.Pointer(n), nil
	})
}

// GetResourceID implements native.Library.
func (l *Library) GetResourceID(in []byte) native.Pointer {
	l.enter()
	data := append([]byte(nil), in...)
	return l.run("get_resource_id", func() (native.Pointer, error) {
		if len(data) < streamHeader ||
			(!bytes.Equal(data[:4], simpleMagic) && !bytes.Equal(data[:4], streamMagic)) {
			return 0, fail(codeInvalidArgument, "invalid encrypted data")
		}
		return l.newString(hex.EncodeToString(data[4:streamHeader])), nil
	})
}

// Share implements native.Library.
func (l *Library) Share(p native.Pointer, resourceIDs []string, opts *native.SharingOptions) native.Pointer {
	l.enter()
	ids := append([]string(nil), resourceIDs...)
	var recipients int
	if opts != nil {
		recipients = len(opts.ShareWithUsers) + len(opts.ShareWithGroups)
	}
	return l.run("share", func() (native.Pointer, error) {
		if _, err := l.readyCore(p); err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, fail(codeInvalidArgument, "no resource to share")
		}
		if recipients == 0 {
			return 0, fail(codeInvalidArgument, "no recipient to share with")
		}
		for _, id := range ids {
			raw, err := hex.DecodeString(id)
			if err != nil || len(raw) != ridSize {
				return 0, fail(codeInvalidArgument, "invalid resource id "+id)
			}
			var rid [ridSize]byte
			copy(rid[:], raw)
			if _, ok := l.keyOf(rid); !ok {
				return 0, fail(codeInvalidArgument, "unknown resource id "+id)
			}
		}
		return 0, nil
	})
}

func (l *Library) session(p native.Pointer) (*session, error) {
	v, ok := l.get(p, KindSession)
	if !ok {
		l.violation()
		return nil, fail(codeInvalidArgument, "invalid encryption session handle")
	}
	return v.(*session), nil
}

// EncryptionSessionOpen implements native.Library.
func (l *Library) EncryptionSessionOpen(p native.Pointer, opts *native.EncryptOptions) native.Pointer {
	l.enter()
	var step uint32
	if opts != nil {
		step = opts.PaddingStep
	}
	return l.run("encryption_session_open", func() (native.Pointer, error) {
		c, err := l.readyCore(p)
		if err != nil {
			return 0, err
		}
		rid, key, err := l.newKey(c)
		if err != nil {
			return 0, err
		}
		return l.put(KindSession, &session{rid: rid, key: key, pad: step}), nil
	})
}

// EncryptionSessionClose implements native.Library.
func (l *Library) EncryptionSessionClose(p native.Pointer) native.Pointer {
	l.enter()
	return l.run("encryption_session_close", func() (native.Pointer, error) {
		if _, ok := l.drop(p, KindSession); !ok {
			l.violation()
			return 0, fail(codeInvalidArgument, "invalid encryption session handle")
		}
		return 0, nil
	})
}

// EncryptionSessionEncryptedSize implements native.Library.
func (l *Library) EncryptionSessionEncryptedSize(p native.Pointer, clearSize uint64) uint64 {
	l.enter()
	s, err := l.session(p)
	if err != nil {
		return 0
	}
	return simpleHeader + padded(clearSize, s.pad)
}

// EncryptionSessionEncrypt implements native.Library.
func (l *Library) EncryptionSessionEncrypt(p, out native.Pointer, in []byte) native.Pointer {
	l.enter()
	plain := append([]byte(nil), in...)
	return l.run("encryption_session_encrypt", func() (native.Pointer, error) {
		s, err := l.session(p)
		if err != nil {
			return 0, err
		}
		return l.encrypt(out, s.rid, s.key, plain, s.pad)
	})
}

// EncryptionSessionGetResourceID implements native.Library.
func (l *Library) EncryptionSessionGetResourceID(p native.Pointer) native.Pointer {
	l.enter()
	return l.run("encryption_session_get_resource_id", func() (native.Pointer, error) {
		s, err := l.session(p)
		if err != nil {
			return 0, err
		}
		return l.newString(hex.EncodeToString(s.rid[:])), nil
	})
}
