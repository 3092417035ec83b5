package config

const (
	// DefaultPort is the port used by the local serve command.
	DefaultPort = "8080"

	// DefaultMaxMessageLength caps chat widget messages, in characters.
	DefaultMaxMessageLength = 500

	// DefaultLogLevel is used when LOG_LEVEL is unset.
	DefaultLogLevel = "info"
)
