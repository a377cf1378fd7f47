package medagent

const (
	// Name identifies the service in logs and outbound requests
	Name = "medical-agent"

	// Version is the current release of the service
	Version = "0.4.0"
)
