// Package clouderror defines the typed failure taxonomy shared by every
// cloud-sync component and its mapping to a stable FFI code table.
package clouderror

import "fmt"

// Kind identifies which variant of CloudError a value carries.
type Kind int

const (
	Unknown Kind = iota
	S3
	Api
	QuotaExceeded
	CredentialExpired
	LockContention
	ShareDenied
	Envelope
	AuthRequired
	AuthFailed
	Serialization
	Http
	Crypto
	NotFound
	Config
)

// Code returns the stable int32 FFI code for k. Codes are never renumbered;
// new variants append.
func (k Kind) Code() int32 {
	return int32(k)
}

// CloudError is the sum type every cloud-sync component returns on failure.
// Its Error() string is the user-facing display string for the variant.
type CloudError struct {
	Kind    Kind
	Message string
	Used    int64
	Quota   int64
}

func (e *CloudError) Error() string {
	switch e.Kind {
	case S3:
		return fmt.Sprintf("S3 operation failed: %s", e.Message)
	case Api:
		return fmt.Sprintf("API request failed: %s", e.Message)
	case QuotaExceeded:
		return fmt.Sprintf("storage quota exceeded: used %d of %d bytes", e.Used, e.Quota)
	case CredentialExpired:
		return "STS credentials expired or invalid"
	case LockContention:
		return fmt.Sprintf("entity lock contention: %s", e.Message)
	case ShareDenied:
		return fmt.Sprintf("share operation denied: %s", e.Message)
	case Envelope:
		return fmt.Sprintf("envelope encryption error: %s", e.Message)
	case AuthRequired:
		return "authentication required"
	case AuthFailed:
		return fmt.Sprintf("authentication failed: %s", e.Message)
	case Serialization:
		return fmt.Sprintf("serialization error: %s", e.Message)
	case Http:
		return fmt.Sprintf("HTTP error: %s", e.Message)
	case Crypto:
		return fmt.Sprintf("cryptographic error: %s", e.Message)
	case NotFound:
		return fmt.Sprintf("not found: %s", e.Message)
	case Config:
		return fmt.Sprintf("invalid configuration: %s", e.Message)
	default:
		return fmt.Sprintf("unknown error: %s", e.Message)
	}
}

// Is allows errors.Is(err, clouderror.ErrCredentialExpired) style matching
// against the sentinel values below, comparing by Kind rather than identity.
func (e *CloudError) Is(target error) bool {
	other, ok := target.(*CloudError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func New(kind Kind, message string) *CloudError {
	return &CloudError{Kind: kind, Message: message}
}

func NewQuotaExceeded(used, quota int64) *CloudError {
	return &CloudError{Kind: QuotaExceeded, Used: used, Quota: quota}
}

// Sentinels for errors.Is comparisons against singleton-style variants.
var (
	ErrCredentialExpired = &CloudError{Kind: CredentialExpired}
	ErrAuthRequired      = &CloudError{Kind: AuthRequired}
)

// FromJSONError wraps a JSON marshal/unmarshal failure as a Serialization error.
func FromJSONError(err error) *CloudError {
	return New(Serialization, err.Error())
}
