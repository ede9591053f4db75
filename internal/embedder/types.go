// Package embedder implements the batched, bounded-concurrency client over
// the configured embedding HTTP endpoint.
package embedder

import "errors"

// ErrPermanentUpstream marks an embedding request the endpoint rejected
// outright (4xx) or that otherwise cannot succeed by retrying: the caller
// should record the failure against the file and not retry until its
// content changes, per spec.md §7's permanent-upstream-errors taxonomy.
var ErrPermanentUpstream = errors.New("embedder: permanent upstream error")

// Embedding is one text's vector representation.
type Embedding struct {
	Vector []float32
}

// Mode mirrors the teacher's embed.EmbedMode: queries and passages are
// embedded differently by most models (asymmetric retrieval).
type Mode string

const (
	ModeQuery   Mode = "query"
	ModePassage Mode = "passage"
)

// Request is one batch submission: texts to embed, in order, plus the model
// id the endpoint should use.
type Request struct {
	Texts []string
	Model string
	Mode  Mode

	// OnTransientRetry, if set, is called once per retried attempt (5xx or
	// transport error) across every batch this request is split into. It
	// never fires for a permanent (4xx) failure, which is not retried.
	OnTransientRetry func()
}
