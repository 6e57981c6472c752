package resolve

import (
	"strings"

	"github.com/matzehuels/stackresolve/pkg/errors"
)

// ResolutionError is a required dependency that could not be resolved.
// It matches errors.ErrCodeResolution and unwraps to the source's error.
type ResolutionError struct {
	Alias      string
	Spec       string
	Parents    []string // Package ids from the project down to the dependent
	ProjectDir string
	err        *errors.Error
}

func newResolutionError(alias, spec string, parents []string, projectDir string, cause error) *ResolutionError {
	chain := "project"
	if len(parents) > 0 {
		chain = strings.Join(parents, " > ")
	}
	return &ResolutionError{
		Alias:      alias,
		Spec:       spec,
		Parents:    parents,
		ProjectDir: projectDir,
		err:        errors.Wrap(errors.ErrCodeResolution, cause, "%s@%s (%s, in %s)", alias, spec, chain, projectDir),
	}
}

func (e *ResolutionError) Error() string { return e.err.Error() }

func (e *ResolutionError) Unwrap() error { return e.err }
