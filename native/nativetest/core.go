package nativetest

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/wippyai/tanker-go/native"
)

// Native error codes used by the simulator.
const (
	codeInvalidArgument    = 1
	codeInternalError      = 2
	codeNetworkError       = 3
	codePreconditionFailed = 4
	codeOperationCanceled  = 5
	codeDecryptionFailed   = 6
	codeGroupTooBig        = 7
	codeInvalidVerif       = 8
	codeIOError            = 11
)

type core struct {
	requests map[native.Pointer]*request
	opts     native.CreateOptions
	identity string
	mu       sync.Mutex
	status   native.Status
	dead     bool
}

func (c *core) state() (native.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.dead
}

func (c *core) setStatus(s native.Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

type user struct {
	secrets map[native.VerificationMethodType]string
	methods []native.VerificationMethod
}

func (l *Library) core(p native.Pointer) (*core, error) {
	v, ok := l.get(p, KindCore)
	if !ok {
		l.violation()
		return nil, fail(codeInvalidArgument, "invalid tanker handle")
	}
	c := v.(*core)
	if _, dead := c.state(); dead {
		return nil, fail(codePreconditionFailed, "tanker was destroyed")
	}
	return c, nil
}

func (l *Library) readyCore(p native.Pointer) (*core, error) {
	c, err := l.core(p)
	if err != nil {
		return nil, err
	}
	if st, _ := c.state(); st != native.StatusReady {
		return nil, fail(codePreconditionFailed, "tanker is not ready")
	}
	return c, nil
}

// Create implements native.Library.
func (l *Library) Create(opts *native.CreateOptions) native.Pointer {
	l.enter()
	o := *opts
	return l.run("create", func() (native.Pointer, error) {
		if o.AppID == "" {
			return 0, fail(codeInvalidArgument, "app_id is required")
		}
		if o.PersistentPath == "" {
			return 0, fail(codeInvalidArgument, "persistent_path is required")
		}
		if o.SDKType == "" {
			return 0, fail(codeInvalidArgument, "sdk_type is required")
		}
		l.log(native.LogInfo, "tanker created for app "+o.AppID)
		return l.put(KindCore, &core{
			opts:     o,
			status:   native.StatusStopped,
			requests: make(map[native.Pointer]*request),
		}), nil
	})
}

// Destroy implements native.Library. In-flight HTTP requests of the core
// are cancelled.
func (l *Library) Destroy(p native.Pointer) native.Pointer {
	l.enter()
	return l.run("destroy", func() (native.Pointer, error) {
		v, ok := l.drop(p, KindCore)
		if !ok {
			l.violation()
			return 0, fail(codeInvalidArgument, "invalid tanker handle")
		}
		c := v.(*core)
		c.mu.Lock()
		c.dead = true
		c.status = native.StatusStopped
		reqs := c.requests
		c.requests = make(map[native.Pointer]*request)
		c.mu.Unlock()
		for _, r := range reqs {
			l.cancelRequest(c, r)
		}
		return 0, nil
	})
}

// Status implements native.Library.
func (l *Library) Status(p native.Pointer) native.Status {
	l.enter()
	v, ok := l.get(p, KindCore)
	if !ok {
		l.violation()
		return native.StatusStopped
	}
	st, _ := v.(*core).state()
	return st
}

// Start implements native.Library.
func (l *Library) Start(p native.Pointer, identity string) native.Pointer {
	l.enter()
	return l.run("start", func() (native.Pointer, error) {
		c, err := l.core(p)
		if err != nil {
			return 0, err
		}
		if identity == "" {
			return 0, fail(codeInvalidArgument, "identity is empty")
		}
		l.mu.Lock()
		_, known := l.users[identity]
		l.mu.Unlock()
		st := native.StatusIdentityRegistrationNeeded
		if known {
			st = native.StatusIdentityVerificationNeeded
		}
		c.mu.Lock()
		c.identity = identity
		c.status = st
		c.mu.Unlock()
		return native.Pointer(st), nil
	})
}

// Stop implements native.Library.
func (l *Library) Stop(p native.Pointer) native.Pointer {
	l.enter()
	return l.run("stop", func() (native.Pointer, error) {
		c, err := l.core(p)
		if err != nil {
			return 0, err
		}
		c.setStatus(native.StatusStopped)
		return 0, nil
	})
}

func methodOf(v *native.Verification) (native.VerificationMethod, string, error) {
	switch v.Type {
	case native.VerificationEmail:
		return native.VerificationMethod{Type: native.MethodEmail, Value1: v.Email}, v.VerificationCode, nil
	case native.VerificationPassphrase:
		return native.VerificationMethod{Type: native.MethodPassphrase}, v.Passphrase, nil
	case native.VerificationKey:
		return native.VerificationMethod{Type: native.MethodVerificationKey}, v.VerificationKey, nil
	case native.VerificationOIDCIDToken:
		return native.VerificationMethod{Type: native.MethodOIDCIDToken, Value1: v.OIDCSubject, Value2: v.OIDCProviderID}, "", nil
	case native.VerificationPhoneNumber:
		return native.VerificationMethod{Type: native.MethodPhoneNumber, Value1: v.PhoneNumber}, v.VerificationCode, nil
	case native.VerificationPreverifiedEmail:
		return native.VerificationMethod{Type: native.MethodPreverifiedEmail, Value1: v.PreverifiedEmail}, "", nil
	case native.VerificationPreverifiedPhoneNumber:
		return native.VerificationMethod{Type: native.MethodPreverifiedPhoneNumber, Value1: v.PreverifiedPhoneNumber}, "", nil
	case native.VerificationE2EPassphrase:
		return native.VerificationMethod{Type: native.MethodE2EPassphrase}, v.E2EPassphrase, nil
	case native.VerificationPreverifiedOIDC, native.VerificationOIDCAuthorizationCode:
		return native.VerificationMethod{Type: native.MethodOIDCIDToken, Value1: v.OIDCSubject, Value2: v.OIDCProviderID}, "", nil
	case native.VerificationPrehashedAndEncryptedPassphrase:
		return native.VerificationMethod{Type: native.MethodPassphrase}, v.PrehashedAndEncryptedPassphrase, nil
	default:
		return native.VerificationMethod{}, "", fail(codeInvalidArgument, fmt.Sprintf("unknown verification type %d", v.Type))
	}
}

func sessionToken(opts *native.VerificationOptions) bool {
	return opts != nil && opts.WithSessionToken
}

// RegisterIdentity implements native.Library.
func (l *Library) RegisterIdentity(p native.Pointer, v *native.Verification, opts *native.VerificationOptions) native.Pointer {
	l.enter()
	ver := *v
	token := sessionToken(opts)
	return l.run("register_identity", func() (native.Pointer, error) {
		c, err := l.core(p)
		if err != nil {
			return 0, err
		}
		if st, _ := c.state(); st != native.StatusIdentityRegistrationNeeded {
			return 0, fail(codePreconditionFailed, "identity registration is not needed")
		}
		m, secret, err := methodOf(&ver)
		if err != nil {
			return 0, err
		}
		l.mu.Lock()
		l.users[c.identity] = &user{
			methods: []native.VerificationMethod{m},
			secrets: map[native.VerificationMethodType]string{m.Type: secret},
		}
		l.mu.Unlock()
		c.setStatus(native.StatusReady)
		if token {
			return l.newString("session-token:" + c.identity), nil
		}
		return 0, nil
	})
}

// VerifyIdentity implements native.Library.
func (l *Library) VerifyIdentity(p native.Pointer, v *native.Verification, opts *native.VerificationOptions) native.Pointer {
	l.enter()
	ver := *v
	token := sessionToken(opts)
	return l.run("verify_identity", func() (native.Pointer, error) {
		c, err := l.core(p)
		if err != nil {
			return 0, err
		}
		if st, _ := c.state(); st != native.StatusIdentityVerificationNeeded && st != native.StatusReady {
			return 0, fail(codePreconditionFailed, "identity verification is not possible")
		}
		m, secret, err := methodOf(&ver)
		if err != nil {
			return 0, err
		}
		l.mu.Lock()
		u := l.users[c.identity]
		want, ok := "", false
		if u != nil {
			want, ok = u.secrets[m.Type]
		}
		l.mu.Unlock()
		if !ok || want != secret {
			return 0, fail(codeInvalidVerif, "invalid verification")
		}
		c.setStatus(native.StatusReady)
		if token {
			return l.newString("session-token:" + c.identity), nil
		}
		return 0, nil
	})
}

// SetVerificationMethod implements native.Library.
func (l *Library) SetVerificationMethod(p native.Pointer, v *native.Verification, opts *native.VerificationOptions) native.Pointer {
	l.enter()
	ver := *v
	token := sessionToken(opts)
	return l.run("set_verification_method", func() (native.Pointer, error) {
		c, err := l.readyCore(p)
		if err != nil {
			return 0, err
		}
		m, secret, err := methodOf(&ver)
		if err != nil {
			return 0, err
		}
		l.mu.Lock()
		u := l.users[c.identity]
		replaced := false
		for i := range u.methods {
			if u.methods[i].Type == m.Type {
				u.methods[i] = m
				replaced = true
			}
		}
		if !replaced {
			u.methods = append(u.methods, m)
		}
		u.secrets[m.Type] = secret
		l.mu.Unlock()
		if token {
			return l.newString("session-token:" + c.identity), nil
		}
		return 0, nil
	})
}

// GetVerificationMethods implements native.Library.
func (l *Library) GetVerificationMethods(p native.Pointer) native.Pointer {
	l.enter()
	return l.run("get_verification_methods", func() (native.Pointer, error) {
		c, err := l.readyCore(p)
		if err != nil {
			return 0, err
		}
		l.mu.Lock()
		methods := append([]native.VerificationMethod(nil), l.users[c.identity].methods...)
		l.mu.Unlock()
		return l.put(KindList, methods), nil
	})
}

// VerificationMethodList implements native.Library.
func (l *Library) VerificationMethodList(p native.Pointer) []native.VerificationMethod {
	l.enter()
	v, ok := l.get(p, KindList)
	if !ok {
		l.violation()
		return nil
	}
	return append([]native.VerificationMethod(nil), v.([]native.VerificationMethod)...)
}

// FreeVerificationMethodList implements native.Library.
func (l *Library) FreeVerificationMethodList(p native.Pointer) {
	l.enter()
	if _, ok := l.drop(p, KindList); !ok {
		l.violation()
	}
}

// GenerateVerificationKey implements native.Library.
func (l *Library) GenerateVerificationKey(p native.Pointer) native.Pointer {
	l.enter()
	return l.run("generate_verification_key", func() (native.Pointer, error) {
		if _, err := l.core(p); err != nil {
			return 0, err
		}
		rid, err := newResourceID()
		if err != nil {
			return 0, fail(codeInternalError, err.Error())
		}
		return l.newString("vkey-" + base64.RawURLEncoding.EncodeToString(rid[:])), nil
	})
}

// AttachProvisionalIdentity implements native.Library.
func (l *Library) AttachProvisionalIdentity(p native.Pointer, provisional string) native.Pointer {
	l.enter()
	return l.run("attach_provisional_identity", func() (native.Pointer, error) {
		if _, err := l.readyCore(p); err != nil {
			return 0, err
		}
		if provisional == "" {
			return 0, fail(codeInvalidArgument, "provisional identity is empty")
		}
		return l.put(KindAttach, &native.AttachResult{
			Status: native.StatusIdentityVerificationNeeded,
			Method: &native.VerificationMethod{Type: native.MethodEmail, Value1: provisional},
		}), nil
	})
}

// AttachResult implements native.Library.
func (l *Library) AttachResult(p native.Pointer) native.AttachResult {
	l.enter()
	v, ok := l.get(p, KindAttach)
	if !ok {
		l.violation()
		return native.AttachResult{}
	}
	r := *v.(*native.AttachResult)
	if r.Method != nil {
		m := *r.Method
		r.Method = &m
	}
	return r
}

// FreeAttachResult implements native.Library.
func (l *Library) FreeAttachResult(p native.Pointer) {
	l.enter()
	if _, ok := l.drop(p, KindAttach); !ok {
		l.violation()
	}
}

// VerifyProvisionalIdentity implements native.Library.
func (l *Library) VerifyProvisionalIdentity(p native.Pointer, v *native.Verification) native.Pointer {
	l.enter()
	ver := *v
	return l.run("verify_provisional_identity", func() (native.Pointer, error) {
		if _, err := l.readyCore(p); err != nil {
			return 0, err
		}
		_, _, err := methodOf(&ver)
		return 0, err
	})
}

// CreateOIDCNonce implements native.Library.
func (l *Library) CreateOIDCNonce(p native.Pointer) native.Pointer {
	l.enter()
	return l.run("create_oidc_nonce", func() (native.Pointer, error) {
		if _, err := l.core(p); err != nil {
			return 0, err
		}
		rid, err := newResourceID()
		if err != nil {
			return 0, fail(codeInternalError, err.Error())
		}
		return l.newString(base64.RawURLEncoding.EncodeToString(rid[:])), nil
	})
}

// SetOIDCTestNonce implements native.Library.
func (l *Library) SetOIDCTestNonce(p native.Pointer, nonce string) native.Pointer {
	l.enter()
	return l.run("set_oidc_test_nonce", func() (native.Pointer, error) {
		if _, err := l.core(p); err != nil {
			return 0, err
		}
		if nonce == "" {
			return 0, fail(codeInvalidArgument, "nonce is empty")
		}
		return 0, nil
	})
}

// CreateGroup implements native.Library.
func (l *Library) CreateGroup(p native.Pointer, members []string) native.Pointer {
	l.enter()
	ids := append([]string(nil), members...)
	return l.run("create_group", func() (native.Pointer, error) {
		if _, err := l.readyCore(p); err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, fail(codeInvalidArgument, "a group needs at least one member")
		}
		if len(ids) > l.cfg.maxGroupSize {
			return 0, fail(codeGroupTooBig, "invalid group")
		}
		return l.newString(fmt.Sprintf("group-%d", l.groups.Add(1))), nil
	})
}

// UpdateGroupMembers implements native.Library.
func (l *Library) UpdateGroupMembers(p native.Pointer, groupID string, add, remove []string) native.Pointer {
	l.enter()
	n := len(add) + len(remove)
	return l.run("update_group_members", func() (native.Pointer, error) {
		if _, err := l.readyCore(p); err != nil {
			return 0, err
		}
		if groupID == "" {
			return 0, fail(codeInvalidArgument, "group id is empty")
		}
		if n == 0 {
			return 0, fail(codeInvalidArgument, "no members to add or remove")
		}
		if n > l.cfg.maxGroupSize {
			return 0, fail(codeGroupTooBig, "invalid group")
		}
		return 0, nil
	})
}

// PrehashPassword implements native.Library.
func (l *Library) PrehashPassword(password string) native.Pointer {
	l.enter()
	return l.run("prehash_password", func() (native.Pointer, error) {
		if password == "" {
			return 0, fail(codeInvalidArgument, "cannot hash an empty password")
		}
		sum := sha256.Sum256([]byte(password))
		return l.newString(base64.StdEncoding.EncodeToString(sum[:])), nil
	})
}
