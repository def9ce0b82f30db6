package cerrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/collabcore/pkg/cerrors"
)

func TestHasKindMatchesWrappedError(t *testing.T) {
	base := errors.New("bbolt write failed")
	err := cerrors.Wrap(cerrors.KindBackend, base, "persist update")

	require.True(t, cerrors.HasKind(err, cerrors.KindBackend))
	require.False(t, cerrors.HasKind(err, cerrors.KindNotFound))
	require.Contains(t, err.Error(), "persist update")
	require.Contains(t, err.Error(), "bbolt write failed")
}

func TestWrapNilCauseBehavesLikeNew(t *testing.T) {
	err := cerrors.Wrap(cerrors.KindTimeout, nil, "deadline exceeded")
	require.Equal(t, "deadline exceeded", err.Error())
	require.True(t, cerrors.HasKind(err, cerrors.KindTimeout))
}

func TestIsComparesByKindNotMessage(t *testing.T) {
	a := cerrors.New(cerrors.KindNotFound, "row missing")
	b := cerrors.New(cerrors.KindNotFound, "field missing")
	c := cerrors.New(cerrors.KindAlreadyExists, "row missing")

	require.True(t, errors.Is(a, b))
	require.False(t, errors.Is(a, c))
}

func TestCauseUnwrapsToRootError(t *testing.T) {
	base := errors.New("disk full")
	err := cerrors.Wrap(cerrors.KindBackend, base, "compact snapshot")
	require.Equal(t, "disk full", cerrors.Cause(err).Error())
}

func TestKindStringIsStable(t *testing.T) {
	require.Equal(t, "not_found", cerrors.KindNotFound.String())
	require.Equal(t, "already_exists", cerrors.KindAlreadyExists.String())
	require.Equal(t, "unknown", cerrors.Kind(999).String())
}
