package mongodb

const (
	LinkedServersCollection = "linked_servers"          // verified user -> server bindings
	ChallengesCollection    = "verification_challenges" // single-use ownership challenges
	TelemetryCollection     = "server_telemetry"        // bounded sample history, one doc per server
	CredentialsCollection   = "panel_credentials"       // encrypted API keys, one doc per user
)
