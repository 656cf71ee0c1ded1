package origin

// Phase is the classifier lifecycle. It moves forward exactly once,
// PhaseCapturing → PhaseMonitoring, and holds the terminal state until the
// classifier is torn down. Teardown is not a phase: it stops the watches
// but leaves the last-known phase (and all verdicts) queryable.
type Phase int32

const (
	// PhaseCapturing is the initial phase: the document is still being
	// constructed and every element appearing — even one raced in after the
	// first synchronous walk — is textually part of the original source,
	// so everything observed is tagged server.
	PhaseCapturing Phase = iota
	// PhaseMonitoring is the terminal phase: initial construction is done,
	// new insertions are script work and tagged client unless they match a
	// previously known server identity (relocation).
	PhaseMonitoring
)

func (p Phase) String() string {
	switch p {
	case PhaseCapturing:
		return "capturing_server_elements"
	case PhaseMonitoring:
		return "monitoring_client_elements"
	}
	return "unknown"
}
