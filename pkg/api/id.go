package api

type (
	// SessionID uniquely identifies one workflow session
	SessionID string

	// StageID identifies a stage in the workflow graph
	StageID string
)
