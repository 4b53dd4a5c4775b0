package keys

const (
	// notation dictionary for key formats:
	// u   = user record
	// un  = username index
	// m   = message record
	// c   = conversation index
	// p   = partner index
	// Identity segments are query-escaped so ":" never appears inside them.

	UserKey     = "u:%s"          // u:<email>
	UsernameKey = "un:%s"         // un:<username>
	MessageKey  = "m:%s"          // m:<msg_id>
	ConvKey     = "c:%s:%s:%s:%s" // c:<low_email>:<high_email>:<created_ns>:<msg_id>
	PartnerKey  = "p:%s:%s"       // p:<user>:<partner>

	UserPrefix    = "u:"
	MessagePrefix = "m:"

	// padding width (fixed for lexicographic ordering)
	TSPadWidth = 20 // e.g. %020d
)
