package tanker

import (
	"github.com/wippyai/tanker-go/native"
)

// Status is the state of a Core.
type Status = native.Status

const (
	StatusStopped                    = native.StatusStopped
	StatusReady                      = native.StatusReady
	StatusIdentityRegistrationNeeded = native.StatusIdentityRegistrationNeeded
	StatusIdentityVerificationNeeded = native.StatusIdentityVerificationNeeded
)

// LogRecord is a native log line.
type LogRecord = native.LogRecord

// Verification proves the identity of a user. Build one with the
// constructors below.
type Verification struct {
	v native.Verification
}

// Type returns the verification type.
func (v Verification) Type() native.VerificationType { return v.v.Type }

func EmailVerification(email, code string) Verification {
	return Verification{native.Verification{Type: native.VerificationEmail, Email: email, VerificationCode: code}}
}

func PassphraseVerification(passphrase string) Verification {
	return Verification{native.Verification{Type: native.VerificationPassphrase, Passphrase: passphrase}}
}

func VerificationKeyVerification(key string) Verification {
	return Verification{native.Verification{Type: native.VerificationKey, VerificationKey: key}}
}

func OIDCIDTokenVerification(token string) Verification {
	return Verification{native.Verification{Type: native.VerificationOIDCIDToken, OIDCIDToken: token}}
}

func PhoneNumberVerification(phoneNumber, code string) Verification {
	return Verification{native.Verification{Type: native.VerificationPhoneNumber, PhoneNumber: phoneNumber, VerificationCode: code}}
}

func PreverifiedEmailVerification(email string) Verification {
	return Verification{native.Verification{Type: native.VerificationPreverifiedEmail, PreverifiedEmail: email}}
}

func PreverifiedPhoneNumberVerification(phoneNumber string) Verification {
	return Verification{native.Verification{Type: native.VerificationPreverifiedPhoneNumber, PreverifiedPhoneNumber: phoneNumber}}
}

func E2EPassphraseVerification(passphrase string) Verification {
	return Verification{native.Verification{Type: native.VerificationE2EPassphrase, E2EPassphrase: passphrase}}
}

func PreverifiedOIDCVerification(subject, providerID string) Verification {
	return Verification{native.Verification{Type: native.VerificationPreverifiedOIDC, OIDCSubject: subject, OIDCProviderID: providerID}}
}

func OIDCAuthorizationCodeVerification(providerID, code, state string) Verification {
	return Verification{native.Verification{
		Type:                  native.VerificationOIDCAuthorizationCode,
		OIDCProviderID:        providerID,
		OIDCAuthorizationCode: code,
		OIDCState:             state,
	}}
}

func PrehashedAndEncryptedPassphraseVerification(passphrase string) Verification {
	return Verification{native.Verification{
		Type:                            native.VerificationPrehashedAndEncryptedPassphrase,
		PrehashedAndEncryptedPassphrase: passphrase,
	}}
}

// MethodType tags a VerificationMethod.
type MethodType = native.VerificationMethodType

const (
	MethodEmail                  = native.MethodEmail
	MethodPassphrase             = native.MethodPassphrase
	MethodVerificationKey        = native.MethodVerificationKey
	MethodOIDCIDToken            = native.MethodOIDCIDToken
	MethodPhoneNumber            = native.MethodPhoneNumber
	MethodPreverifiedEmail       = native.MethodPreverifiedEmail
	MethodPreverifiedPhoneNumber = native.MethodPreverifiedPhoneNumber
	MethodE2EPassphrase          = native.MethodE2EPassphrase
)

// VerificationMethod is a method registered for the current user.
// Only the fields relevant to Type are set.
type VerificationMethod struct {
	Type                MethodType
	Email               string
	PhoneNumber         string
	ProviderID          string
	ProviderDisplayName string
}

func methodFromNative(m native.VerificationMethod) VerificationMethod {
	out := VerificationMethod{Type: m.Type}
	switch m.Type {
	case native.MethodEmail, native.MethodPreverifiedEmail:
		out.Email = m.Value1
	case native.MethodPhoneNumber, native.MethodPreverifiedPhoneNumber:
		out.PhoneNumber = m.Value1
	case native.MethodOIDCIDToken:
		out.ProviderID = m.Value1
		out.ProviderDisplayName = m.Value2
	}
	return out
}

// AttachResult is returned by AttachProvisionalIdentity. Method is set when
// the provisional identity still has to be verified.
type AttachResult struct {
	Status Status
	Method *VerificationMethod
}
