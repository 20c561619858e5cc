package models

import "errors"

// Typed errors for the generation pipeline. Non-fatal errors (token/connector)
// are absorbed per source; fatal errors terminate the run and are recorded on
// the job verbatim.
var (
	// ErrDocumentNotFound is returned when a pipeline run references a
	// document id that does not exist. Fatal.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrTokenUnavailable means the token provider could not resolve a
	// bearer token for (user, provider). Non-fatal, the source is skipped.
	ErrTokenUnavailable = errors.New("token unavailable")

	// ErrConnector wraps failures inside a single source connector.
	// Non-fatal, the source yields an empty result.
	ErrConnector = errors.New("connector error")

	// ErrAIGeneration wraps AI text-generation failures. Fatal, aborts
	// the whole job.
	ErrAIGeneration = errors.New("ai generation failed")

	// ErrUnsupportedTemplateFormat is returned for template file types
	// other than docx/pdf. Fatal, template transitions to error.
	ErrUnsupportedTemplateFormat = errors.New("unsupported template format")

	// ErrTemplateParse wraps corrupt-archive/missing-body/extraction
	// failures. Fatal, template transitions to error.
	ErrTemplateParse = errors.New("template parse failed")

	// ErrPersistence wraps storage write failures. Fatal at the point it
	// occurs.
	ErrPersistence = errors.New("persistence error")

	// ErrJobActive is returned when a run is requested for a job that
	// already has an active run. At most one run may process a job id.
	ErrJobActive = errors.New("job already has an active run")
)

// IsSourceSkippable reports whether an error should degrade to "no data from
// that source" instead of failing the job.
func IsSourceSkippable(err error) bool {
	return errors.Is(err, ErrTokenUnavailable) || errors.Is(err, ErrConnector)
}
