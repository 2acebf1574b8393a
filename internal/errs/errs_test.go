package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: ""},
		{name: "wrapped conflict", err: fmt.Errorf("offer a->b: %w", ErrConflict), want: CodeConflict},
		{name: "unreachable", err: ErrUnreachable, want: CodeUnreachable},
		{name: "not found", err: fmt.Errorf("decline: %w", ErrNotFound), want: CodeNotFound},
		{name: "validation", err: ErrValidation, want: CodeValidation},
		{name: "foreign", err: errors.New("boom"), want: CodeUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CodeOf(tc.err))
		})
	}
}
