package engine

import "errors"

// Sentinel errors forming the input/transient/permanent taxonomy of
// spec.md §7. Wrap with fmt.Errorf("...: %w", ...) and test with errors.Is.
var (
	// ErrInputInvalid marks a synchronous, no-state-change input error:
	// unknown project, bad path, invalid query.
	ErrInputInvalid = errors.New("engine: invalid input")

	// ErrProjectDisabled marks a project that has a corrupted store and is
	// refusing operations until reinitialize_project is invoked.
	ErrProjectDisabled = errors.New("engine: project disabled")

	// ErrPermanentUpstream marks a per-file failure that will not be
	// retried until the file's content changes (e.g. embedder 4xx).
	ErrPermanentUpstream = errors.New("engine: permanent upstream error")

	// ErrProjectExists marks add_project called with a name already in use.
	ErrProjectExists = errors.New("engine: project already exists")

	// ErrProjectOverlap marks add_project called with a root_path that
	// overlaps an existing project's root_path (Open Question resolved:
	// rejected at add_project time, spec.md §9).
	ErrProjectOverlap = errors.New("engine: project root overlaps an existing project")
)
