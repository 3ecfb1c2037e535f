package wasmcore

// Host module and guest export names.
const (
	hostModule = "tanker_host"

	exportMemory           = "memory"
	exportAlloc            = "tanker_alloc"
	exportFree             = "tanker_free"
	exportInvoke           = "tanker_invoke"
	exportHTTPResponse     = "tanker_http_response"
	exportStreamReadFinish = "tanker_stream_read_finish"
)

// fn identifies the ctanker entry point behind tanker_invoke. Arguments are
// a CBOR array; the result is an i64 holding a handle, a size, a boolean or
// a pointer to a length-prefixed guest buffer.
type fn uint32

const (
	fnInit fn = iota + 1
	fnTeardown
	fnVersionString
	fnSetLogHandler

	fnFutureIsReady
	fnFutureHasError
	fnFutureGetError
	fnFutureGetValue
	fnFutureThen
	fnFutureDestroy

	fnCreate
	fnDestroy
	fnStatus
	fnStart
	fnStop

	fnRegisterIdentity
	fnVerifyIdentity
	fnSetVerificationMethod
	fnGetVerificationMethods
	fnVerificationMethodList
	fnFreeVerificationMethodList
	fnGenerateVerificationKey
	fnAttachProvisionalIdentity
	fnAttachResult
	fnFreeAttachResult
	fnVerifyProvisionalIdentity
	fnCreateOIDCNonce
	fnSetOIDCTestNonce

	fnEncryptedSize
	fnEncrypt
	fnDecryptedSize
	fnDecrypt
	fnGetResourceID
	fnShare
	fnCreateGroup
	fnUpdateGroupMembers
	fnPrehashPassword

	fnEncryptionSessionOpen
	fnEncryptionSessionClose
	fnEncryptionSessionEncryptedSize
	fnEncryptionSessionEncrypt
	fnEncryptionSessionGetResourceID
	fnEncryptionSessionStreamEncrypt

	fnStreamEncrypt
	fnStreamDecrypt
	fnStreamRead
	fnStreamClose
)

// futureError is the payload behind fnFutureGetError.
type futureError struct {
	Code    uint32 `cbor:"code"`
	Message string `cbor:"message"`
}
