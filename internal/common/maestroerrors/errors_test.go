package maestroerrors

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindFromError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want Kind
	}{
		"ErrMalformedNote":                {&ErrMalformedNote{}, KindMalformedNote},
		"ErrConnection":                   {&ErrConnection{}, KindConnection},
		"ErrNotFound":                     {&ErrNotFound{}, KindNotFound},
		"ErrInvalidArgument":              {&ErrInvalidArgument{}, KindInvalidArgument},
		"ErrAlreadyRunning":               {&ErrAlreadyRunning{}, KindAlreadyRunning},
		"pkg.Error => ErrConnection":      {errors.WithMessage(&ErrConnection{}, "foo"), KindConnection},
		"pkg.Error => ErrInvalidArgument": {errors.WithStack(&ErrInvalidArgument{}), KindInvalidArgument},
		"multierror => ErrConnection":     {multierror.Append(nil, &ErrConnection{}), KindConnection},
		"pkg.Error":                       {errors.New("foo"), KindUnknown},
		"nil":                             {nil, KindOK},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindFromError(tc.err))
		})
	}
}

func TestErrConnection_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := errors.WithStack(&ErrConnection{URL: "tcp://localhost:1883", Op: "connect", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connect on tcp://localhost:1883 failed: connection refused", errors.Cause(err).Error())
}

func TestErrMalformedNote_Error(t *testing.T) {
	assert.Equal(t,
		`malformed note at field "command" (value 99): unknown command`,
		(&ErrMalformedNote{Field: "command", Value: 99, Message: "unknown command"}).Error())
	assert.Equal(t,
		`malformed note at field "payload": unexpected EOF`,
		(&ErrMalformedNote{Field: "payload", Message: "unexpected EOF"}).Error())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 3, ExitCode(&ErrConnection{}))
	assert.Equal(t, 2, ExitCode(&ErrInvalidArgument{}))
	assert.Equal(t, 1, ExitCode(errors.New("foo")))
}
