package native

import "strings"

// Status is the state of a core instance.
type Status uint32

const (
	StatusStopped                    Status = 0
	StatusReady                      Status = 1
	StatusIdentityRegistrationNeeded Status = 2
	StatusIdentityVerificationNeeded Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusReady:
		return "ready"
	case StatusIdentityRegistrationNeeded:
		return "identity-registration-needed"
	case StatusIdentityVerificationNeeded:
		return "identity-verification-needed"
	default:
		return "unknown"
	}
}

// LogLevel is the severity of a native log record.
type LogLevel uint32

const (
	LogDebug   LogLevel = 1
	LogInfo    LogLevel = 2
	LogWarning LogLevel = 3
	LogError   LogLevel = 4
)

// LogRecord is a single native log line.
type LogRecord struct {
	Category string   `cbor:"category"`
	Level    LogLevel `cbor:"level"`
	File     string   `cbor:"file"`
	Line     uint32   `cbor:"line"`
	Message  string   `cbor:"message"`
}

// VerificationType tags a Verification.
type VerificationType uint8

const (
	VerificationEmail                           VerificationType = 1
	VerificationPassphrase                      VerificationType = 2
	VerificationKey                             VerificationType = 3
	VerificationOIDCIDToken                     VerificationType = 4
	VerificationPhoneNumber                     VerificationType = 5
	VerificationPreverifiedEmail                VerificationType = 6
	VerificationPreverifiedPhoneNumber          VerificationType = 7
	VerificationE2EPassphrase                   VerificationType = 8
	VerificationPreverifiedOIDC                 VerificationType = 9
	VerificationOIDCAuthorizationCode           VerificationType = 10
	VerificationPrehashedAndEncryptedPassphrase VerificationType = 11
)

// Verification mirrors tanker_verification. Only the fields of Type are set.
type Verification struct {
	Type                            VerificationType `cbor:"type"`
	Email                           string           `cbor:"email,omitempty"`
	PhoneNumber                     string           `cbor:"phone_number,omitempty"`
	VerificationCode                string           `cbor:"verification_code,omitempty"`
	Passphrase                      string           `cbor:"passphrase,omitempty"`
	E2EPassphrase                   string           `cbor:"e2e_passphrase,omitempty"`
	VerificationKey                 string           `cbor:"verification_key,omitempty"`
	OIDCIDToken                     string           `cbor:"oidc_id_token,omitempty"`
	PreverifiedEmail                string           `cbor:"preverified_email,omitempty"`
	PreverifiedPhoneNumber          string           `cbor:"preverified_phone_number,omitempty"`
	OIDCSubject                     string           `cbor:"oidc_subject,omitempty"`
	OIDCProviderID                  string           `cbor:"oidc_provider_id,omitempty"`
	OIDCAuthorizationCode           string           `cbor:"oidc_authorization_code,omitempty"`
	OIDCState                       string           `cbor:"oidc_state,omitempty"`
	PrehashedAndEncryptedPassphrase string           `cbor:"prehashed_and_encrypted_passphrase,omitempty"`
}

// VerificationMethodType tags a VerificationMethod.
type VerificationMethodType uint8

const (
	MethodEmail                  VerificationMethodType = 1
	MethodPassphrase             VerificationMethodType = 2
	MethodVerificationKey        VerificationMethodType = 3
	MethodOIDCIDToken            VerificationMethodType = 4
	MethodPhoneNumber            VerificationMethodType = 5
	MethodPreverifiedEmail       VerificationMethodType = 6
	MethodPreverifiedPhoneNumber VerificationMethodType = 7
	MethodE2EPassphrase          VerificationMethodType = 8
)

// VerificationMethod mirrors tanker_verification_method. Value1 holds the
// email, phone number or OIDC provider id; Value2 the provider display name.
type VerificationMethod struct {
	Type   VerificationMethodType `cbor:"type"`
	Value1 string                 `cbor:"value1,omitempty"`
	Value2 string                 `cbor:"value2,omitempty"`
}

// VerificationOptions mirrors tanker_verification_options.
type VerificationOptions struct {
	WithSessionToken     bool `cbor:"with_session_token"`
	AllowE2EMethodSwitch bool `cbor:"allow_e2e_method_switch"`
}

// AttachResult mirrors tanker_attach_result.
type AttachResult struct {
	Status Status              `cbor:"status"`
	Method *VerificationMethod `cbor:"method,omitempty"`
}

// Padding steps understood by EncryptedSize and EncryptOptions.
const (
	PaddingAuto uint32 = 0
	PaddingOff  uint32 = 1
)

// EncryptOptions mirrors tanker_encrypt_options.
type EncryptOptions struct {
	ShareWithUsers  []string `cbor:"share_with_users,omitempty"`
	ShareWithGroups []string `cbor:"share_with_groups,omitempty"`
	ShareWithSelf   bool     `cbor:"share_with_self"`
	PaddingStep     uint32   `cbor:"padding_step"`
}

// SharingOptions mirrors tanker_sharing_options.
type SharingOptions struct {
	ShareWithUsers  []string `cbor:"share_with_users,omitempty"`
	ShareWithGroups []string `cbor:"share_with_groups,omitempty"`
}

// CreateOptions mirrors tanker_options. A nil HTTP makes native use its
// built-in client.
type CreateOptions struct {
	AppID          string       `cbor:"app_id"`
	URL            string       `cbor:"url,omitempty"`
	PersistentPath string       `cbor:"persistent_path"`
	CachePath      string       `cbor:"cache_path"`
	SDKType        string       `cbor:"sdk_type"`
	SDKVersion     string       `cbor:"sdk_version"`
	HTTP           *HTTPHandler `cbor:"-"`
}

// Header is a single HTTP header.
type Header struct {
	Name  string `cbor:"name"`
	Value string `cbor:"value"`
}

// HTTPRequest mirrors tanker_http_request. Handle identifies the request
// for HTTPHandleResponse; it stays valid until that call returns.
type HTTPRequest struct {
	Handle        Pointer  `cbor:"-"`
	Method        string   `cbor:"method"`
	URL           string   `cbor:"url"`
	InstanceID    string   `cbor:"instance_id"`
	Authorization string   `cbor:"authorization,omitempty"`
	Headers       []Header `cbor:"headers,omitempty"`
	Body          []byte   `cbor:"body,omitempty"`
}

// HTTPResponse mirrors tanker_http_response. A non-empty ErrorMessage marks a
// failed request; StatusCode is 0 for network failures.
type HTTPResponse struct {
	StatusCode   int      `cbor:"status_code"`
	Headers      []Header `cbor:"headers,omitempty"`
	Body         []byte   `cbor:"body,omitempty"`
	ErrorMessage string   `cbor:"error_message,omitempty"`
}

// ContentType returns the Content-Type header of the response, if any.
func (r *HTTPResponse) ContentType() string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, "Content-Type") {
			return h.Value
		}
	}
	return ""
}
