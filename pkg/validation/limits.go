package validation

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	// Sufficient for JSON APIs while preventing memory exhaustion attacks.
	MaxBodySize = 64 * 1024
)

// String element length limits. The max tags on the transport DTOs mirror
// these values; validator tags cannot reference constants.
const (
	// MaxEmailLength is the maximum length of an email address.
	MaxEmailLength = 255

	// MaxNameLength is the maximum length of a first or last name.
	MaxNameLength = 100

	// MaxPasswordLength bounds password input before hashing.
	MaxPasswordLength = 128

	// MaxTokenLength bounds opaque token input. Issued tokens are 128 hex
	// characters; anything longer is rejected before a store lookup.
	MaxTokenLength = 256
)
