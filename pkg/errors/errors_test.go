package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, CodeStorageUnavailable, "put object").WithContext("key", "a/b.parquet")

	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsCode(err, CodeStorageUnavailable))
	assert.Equal(t, "[E301] put object (key=a/b.parquet): connection refused", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeWriteFailed, "x"))
	assert.Nil(t, Wrapf(nil, CodeWriteFailed, "x %d", 1))
}

func TestCodeThroughFmtWrapping(t *testing.T) {
	inner := CrossTenant("import job", "b1")
	outer := fmt.Errorf("delete batch: %w", inner)

	assert.Equal(t, CodeCrossTenant, GetCode(outer))
	assert.Equal(t, "b1", GetContext(outer)["id"])
	assert.True(t, errors.Is(outer, &PoflowError{Code: CodeCrossTenant}))
	assert.False(t, errors.Is(outer, &PoflowError{Code: CodeNotFound}))
}

func TestClassification(t *testing.T) {
	assert.True(t, IsRetryable(New(CodeTransientRead, "x")))
	assert.False(t, IsRetryable(New(CodeCrossTenant, "x")))
	assert.True(t, IsRetryable(New(CodeJobInProgress, "x")))
	assert.True(t, CodeInvalidDate.IsInput())
	assert.True(t, CodeMissingHeader.IsInput())
	assert.False(t, CodeQueryFailed.IsInput())
	assert.False(t, CodeUnknown.IsInput())
	assert.Equal(t, CodeUnknown, GetCode(fmt.Errorf("plain")))
}

func TestMultiError(t *testing.T) {
	var m MultiError
	assert.NoError(t, m.Combined())

	m.Add(nil)
	m.Add(fmt.Errorf("one"))
	assert.EqualError(t, m.Combined(), "one")

	m.Add(fmt.Errorf("two"))
	assert.True(t, m.HasErrors())
	assert.Contains(t, m.Combined().Error(), "2 errors occurred")

	m.Add(CrossTenant("import job", "b1"))
	assert.True(t, errors.Is(m.Combined(), &PoflowError{Code: CodeCrossTenant}))
}
