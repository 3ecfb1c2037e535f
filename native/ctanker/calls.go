//go:build cgo && ctanker

package ctanker

/*
#include "bridge.h"
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/wippyai/tanker-go/native"
)

func (a *arena) verification(v *native.Verification) *C.tanker_verification_t {
	c := (*C.tanker_verification_t)(a.alloc(int(C.sizeof_tanker_verification_t)))
	c.version = verificationVersion
	c.verification_method_type = C.uint8_t(v.Type)
	c.email_verification.version = subVerificationVersion
	c.phone_number_verification.version = subVerificationVersion
	c.preverified_oidc_verification.version = subVerificationVersion
	c.oidc_authorization_code_verification.version = subVerificationVersion

	switch v.Type {
	case native.VerificationEmail:
		c.email_verification.email = a.str(v.Email)
		c.email_verification.verification_code = a.str(v.VerificationCode)
	case native.VerificationPassphrase:
		c.passphrase = a.str(v.Passphrase)
	case native.VerificationKey:
		c.verification_key = a.str(v.VerificationKey)
	case native.VerificationOIDCIDToken:
		c.oidc_id_token = a.str(v.OIDCIDToken)
	case native.VerificationPhoneNumber:
		c.phone_number_verification.phone_number = a.str(v.PhoneNumber)
		c.phone_number_verification.verification_code = a.str(v.VerificationCode)
	case native.VerificationPreverifiedEmail:
		c.preverified_email = a.str(v.PreverifiedEmail)
	case native.VerificationPreverifiedPhoneNumber:
		c.preverified_phone_number = a.str(v.PreverifiedPhoneNumber)
	case native.VerificationE2EPassphrase:
		c.e2e_passphrase = a.str(v.E2EPassphrase)
	case native.VerificationPreverifiedOIDC:
		c.preverified_oidc_verification.subject = a.str(v.OIDCSubject)
		c.preverified_oidc_verification.provider_id = a.str(v.OIDCProviderID)
	case native.VerificationOIDCAuthorizationCode:
		c.oidc_authorization_code_verification.provider_id = a.str(v.OIDCProviderID)
		c.oidc_authorization_code_verification.authorization_code = a.str(v.OIDCAuthorizationCode)
		c.oidc_authorization_code_verification.state = a.str(v.OIDCState)
	case native.VerificationPrehashedAndEncryptedPassphrase:
		c.prehashed_and_encrypted_passphrase = a.str(v.PrehashedAndEncryptedPassphrase)
	}
	return c
}

func (a *arena) verificationOptions(o *native.VerificationOptions) *C.tanker_verification_options_t {
	c := (*C.tanker_verification_options_t)(a.alloc(int(C.sizeof_tanker_verification_options_t)))
	c.version = verificationOptionsVersion
	if o != nil {
		c.with_session_token = C.bool(o.WithSessionToken)
		c.allow_e2e_method_switch = C.bool(o.AllowE2EMethodSwitch)
	}
	return c
}

func (a *arena) encryptOptions(o *native.EncryptOptions) *C.tanker_encrypt_options_t {
	c := (*C.tanker_encrypt_options_t)(a.alloc(int(C.sizeof_tanker_encrypt_options_t)))
	c.version = encryptOptionsVersion
	c.share_with_self = C.bool(true)
	if o != nil {
		c.share_with_users = a.strs(o.ShareWithUsers)
		c.nb_users = C.uint32_t(len(o.ShareWithUsers))
		c.share_with_groups = a.strs(o.ShareWithGroups)
		c.nb_groups = C.uint32_t(len(o.ShareWithGroups))
		c.share_with_self = C.bool(o.ShareWithSelf)
		c.padding_step = C.uint32_t(o.PaddingStep)
	}
	return c
}

func (a *arena) sharingOptions(o *native.SharingOptions) *C.tanker_sharing_options_t {
	c := (*C.tanker_sharing_options_t)(a.alloc(int(C.sizeof_tanker_sharing_options_t)))
	c.version = sharingOptionsVersion
	if o != nil {
		c.share_with_users = a.strs(o.ShareWithUsers)
		c.nb_users = C.uint32_t(len(o.ShareWithUsers))
		c.share_with_groups = a.strs(o.ShareWithGroups)
		c.nb_groups = C.uint32_t(len(o.ShareWithGroups))
	}
	return c
}

func cbuf(p native.Pointer) *C.uint8_t { return (*C.uint8_t)(unsafe.Pointer(p)) }

// Create implements native.Library.
func (l *Library) Create(opts *native.CreateOptions) native.Pointer {
	a := &arena{}
	c := (*C.tanker_options_t)(a.alloc(int(C.sizeof_tanker_options_t)))
	c.version = optionsVersion
	c.app_id = a.str(opts.AppID)
	c.url = a.optStr(opts.URL)
	c.persistent_path = a.str(opts.PersistentPath)
	c.cache_path = a.str(opts.CachePath)
	c.sdk_type = a.str(opts.SDKType)
	c.sdk_version = a.str(opts.SDKVersion)

	if opts.HTTP == nil {
		return l.retain(C.tanker_create(c), a)
	}
	h := cgo.NewHandle(opts.HTTP)
	C.bridge_set_http(c, C.uintptr_t(h))
	return l.own(l.retain(C.tanker_create(c), a), &l.cores, h)
}

// Destroy implements native.Library. The HTTP handler of the core is
// dropped once the destroy future is.
func (l *Library) Destroy(core native.Pointer) native.Pointer {
	a := &arena{}
	fut := l.retain(C.tanker_destroy(ctanker(core)), a)
	l.release(&l.cores, core, a)
	return fut
}

// Status implements native.Library.
func (l *Library) Status(core native.Pointer) native.Status {
	return native.Status(C.tanker_status(ctanker(core)))
}

// Start implements native.Library.
func (l *Library) Start(core native.Pointer, identity string) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_start(ctanker(core), a.str(identity)), a)
}

// Stop implements native.Library.
func (l *Library) Stop(core native.Pointer) native.Pointer {
	return l.retain(C.tanker_stop(ctanker(core)), &arena{})
}

// RegisterIdentity implements native.Library.
func (l *Library) RegisterIdentity(core native.Pointer, v *native.Verification, opts *native.VerificationOptions) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_register_identity(ctanker(core), a.verification(v), a.verificationOptions(opts)), a)
}

// VerifyIdentity implements native.Library.
func (l *Library) VerifyIdentity(core native.Pointer, v *native.Verification, opts *native.VerificationOptions) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_verify_identity(ctanker(core), a.verification(v), a.verificationOptions(opts)), a)
}

// SetVerificationMethod implements native.Library.
func (l *Library) SetVerificationMethod(core native.Pointer, v *native.Verification, opts *native.VerificationOptions) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_set_verification_method(ctanker(core), a.verification(v), a.verificationOptions(opts)), a)
}

// GetVerificationMethods implements native.Library.
func (l *Library) GetVerificationMethods(core native.Pointer) native.Pointer {
	return l.retain(C.tanker_get_verification_methods(ctanker(core)), &arena{})
}

func method(m *C.tanker_verification_method_t) native.VerificationMethod {
	out := native.VerificationMethod{Type: native.VerificationMethodType(m.verification_method_type)}
	if m.value1 != nil {
		out.Value1 = C.GoString(m.value1)
	}
	if m.value2 != nil {
		out.Value2 = C.GoString(m.value2)
	}
	return out
}

// VerificationMethodList implements native.Library.
func (l *Library) VerificationMethodList(list native.Pointer) []native.VerificationMethod {
	c := (*C.tanker_verification_method_list_t)(unsafe.Pointer(list))
	if c == nil || c.count == 0 {
		return nil
	}
	methods := unsafe.Slice(c.methods, int(c.count))
	out := make([]native.VerificationMethod, len(methods))
	for i := range methods {
		out[i] = method(&methods[i])
	}
	return out
}

// FreeVerificationMethodList implements native.Library.
func (l *Library) FreeVerificationMethodList(list native.Pointer) {
	C.tanker_free_verification_method_list((*C.tanker_verification_method_list_t)(unsafe.Pointer(list)))
}

// GenerateVerificationKey implements native.Library.
func (l *Library) GenerateVerificationKey(core native.Pointer) native.Pointer {
	return l.retain(C.tanker_generate_verification_key(ctanker(core)), &arena{})
}

// AttachProvisionalIdentity implements native.Library.
func (l *Library) AttachProvisionalIdentity(core native.Pointer, identity string) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_attach_provisional_identity(ctanker(core), a.str(identity)), a)
}

// AttachResult implements native.Library.
func (l *Library) AttachResult(p native.Pointer) native.AttachResult {
	c := (*C.tanker_attach_result_t)(unsafe.Pointer(p))
	out := native.AttachResult{Status: native.Status(c.status)}
	if c.method != nil {
		m := method(c.method)
		out.Method = &m
	}
	return out
}

// FreeAttachResult implements native.Library.
func (l *Library) FreeAttachResult(p native.Pointer) {
	C.tanker_free_attach_result((*C.tanker_attach_result_t)(unsafe.Pointer(p)))
}

// VerifyProvisionalIdentity implements native.Library.
func (l *Library) VerifyProvisionalIdentity(core native.Pointer, v *native.Verification) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_verify_provisional_identity(ctanker(core), a.verification(v)), a)
}

// CreateOIDCNonce implements native.Library.
func (l *Library) CreateOIDCNonce(core native.Pointer) native.Pointer {
	return l.retain(C.tanker_create_oidc_nonce(ctanker(core)), &arena{})
}

// SetOIDCTestNonce implements native.Library.
func (l *Library) SetOIDCTestNonce(core native.Pointer, nonce string) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_set_oidc_test_nonce(ctanker(core), a.str(nonce)), a)
}

// EncryptedSize implements native.Library.
func (l *Library) EncryptedSize(clearSize uint64, paddingStep uint32) uint64 {
	return uint64(C.tanker_encrypted_size(C.uint64_t(clearSize), C.uint32_t(paddingStep)))
}

// Encrypt implements native.Library.
func (l *Library) Encrypt(core, out native.Pointer, in []byte, opts *native.EncryptOptions) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_encrypt(ctanker(core), cbuf(out), a.bytes(in), C.uint64_t(len(in)), a.encryptOptions(opts)), a)
}

// DecryptedSize implements native.Library.
func (l *Library) DecryptedSize(in []byte) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_decrypted_size(a.bytes(in), C.uint64_t(len(in))), a)
}

// Decrypt implements native.Library.
func (l *Library) Decrypt(core, out native.Pointer, in []byte) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_decrypt(ctanker(core), cbuf(out), a.bytes(in), C.uint64_t(len(in))), a)
}

// GetResourceID implements native.Library.
func (l *Library) GetResourceID(in []byte) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_get_resource_id(a.bytes(in), C.uint64_t(len(in))), a)
}

// Share implements native.Library.
func (l *Library) Share(core native.Pointer, resourceIDs []string, opts *native.SharingOptions) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_share(ctanker(core), a.strs(resourceIDs), C.uint64_t(len(resourceIDs)), a.sharingOptions(opts)), a)
}

// CreateGroup implements native.Library.
func (l *Library) CreateGroup(core native.Pointer, members []string) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_create_group(ctanker(core), a.strs(members), C.uint64_t(len(members))), a)
}

// UpdateGroupMembers implements native.Library.
func (l *Library) UpdateGroupMembers(core native.Pointer, groupID string, add, remove []string) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_update_group_members(ctanker(core), a.str(groupID),
		a.strs(add), C.uint64_t(len(add)), a.strs(remove), C.uint64_t(len(remove))), a)
}

// PrehashPassword implements native.Library.
func (l *Library) PrehashPassword(password string) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_prehash_password(a.str(password)), a)
}

// EncryptionSessionOpen implements native.Library.
func (l *Library) EncryptionSessionOpen(core native.Pointer, opts *native.EncryptOptions) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_encryption_session_open(ctanker(core), a.encryptOptions(opts)), a)
}

// EncryptionSessionClose implements native.Library.
func (l *Library) EncryptionSessionClose(sess native.Pointer) native.Pointer {
	return l.retain(C.tanker_encryption_session_close(csession(sess)), &arena{})
}

// EncryptionSessionEncryptedSize implements native.Library.
func (l *Library) EncryptionSessionEncryptedSize(sess native.Pointer, clearSize uint64) uint64 {
	return uint64(C.tanker_encryption_session_encrypted_size(csession(sess), C.uint64_t(clearSize)))
}

// EncryptionSessionEncrypt implements native.Library.
func (l *Library) EncryptionSessionEncrypt(sess, out native.Pointer, in []byte) native.Pointer {
	a := &arena{}
	return l.retain(C.tanker_encryption_session_encrypt(csession(sess), cbuf(out), a.bytes(in), C.uint64_t(len(in))), a)
}

// EncryptionSessionGetResourceID implements native.Library.
func (l *Library) EncryptionSessionGetResourceID(sess native.Pointer) native.Pointer {
	return l.retain(C.tanker_encryption_session_get_resource_id(csession(sess)), &arena{})
}

// EncryptionSessionStreamEncrypt implements native.Library.
func (l *Library) EncryptionSessionStreamEncrypt(sess native.Pointer, src native.InputSource) native.Pointer {
	h := cgo.NewHandle(src)
	return l.own(l.retain(C.bridge_session_stream_encrypt(csession(sess), C.uintptr_t(h)), &arena{}), &l.streams, h)
}

// StreamEncrypt implements native.Library.
func (l *Library) StreamEncrypt(core native.Pointer, src native.InputSource, opts *native.EncryptOptions) native.Pointer {
	a := &arena{}
	h := cgo.NewHandle(src)
	return l.own(l.retain(C.bridge_stream_encrypt(ctanker(core), C.uintptr_t(h), a.encryptOptions(opts)), a), &l.streams, h)
}

// StreamDecrypt implements native.Library.
func (l *Library) StreamDecrypt(core native.Pointer, src native.InputSource) native.Pointer {
	h := cgo.NewHandle(src)
	return l.own(l.retain(C.bridge_stream_decrypt(ctanker(core), C.uintptr_t(h)), &arena{}), &l.streams, h)
}

// StreamRead implements native.Library.
func (l *Library) StreamRead(stream, buf native.Pointer, size int64) native.Pointer {
	return l.retain(C.tanker_stream_read((*C.tanker_stream_t)(unsafe.Pointer(stream)), cbuf(buf), C.int64_t(size)), &arena{})
}

// StreamReadOperationFinish implements native.Library.
func (l *Library) StreamReadOperationFinish(op native.Pointer, n int64) {
	C.tanker_stream_read_operation_finish((*C.tanker_stream_read_operation_t)(unsafe.Pointer(op)), C.int64_t(n))
}

// StreamClose implements native.Library. The input source of the stream
// is dropped once the close future is.
func (l *Library) StreamClose(stream native.Pointer) native.Pointer {
	a := &arena{}
	fut := l.retain(C.tanker_stream_close((*C.tanker_stream_t)(unsafe.Pointer(stream))), a)
	l.release(&l.streams, stream, a)
	return fut
}

// HTTPHandleResponse implements native.Library. The response is copied
// into C memory for the duration of the call.
func (l *Library) HTTPHandleResponse(req native.Pointer, resp *native.HTTPResponse) {
	a := &arena{}
	defer a.free()

	c := (*C.tanker_http_response_t)(a.alloc(int(C.sizeof_tanker_http_response_t)))
	c.status_code = C.int32_t(resp.StatusCode)
	c.error_msg = a.optStr(resp.ErrorMessage)
	if len(resp.Headers) > 0 {
		headers := unsafe.Slice((*C.tanker_http_header_t)(a.alloc(len(resp.Headers)*int(C.sizeof_tanker_http_header_t))), len(resp.Headers))
		for i, h := range resp.Headers {
			headers[i].name = a.str(h.Name)
			headers[i].value = a.str(h.Value)
		}
		c.headers = &headers[0]
		c.num_headers = C.int32_t(len(resp.Headers))
	}
	if len(resp.Body) > 0 {
		c.body = (*C.char)(unsafe.Pointer(a.bytes(resp.Body)))
		c.body_size = C.int64_t(len(resp.Body))
	}
	C.tanker_http_handle_response((*C.tanker_http_request_t)(unsafe.Pointer(req)), c)
}
