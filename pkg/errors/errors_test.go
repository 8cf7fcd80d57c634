package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodedErrorsMatchThroughWrapping(t *testing.T) {
	sentinel := WithCode(CodeAlreadyScheduled, "already scheduled")
	wrapped := fmt.Errorf("save window: %w", WithCode(CodeAlreadyScheduled, "overlaps 2 windows"))

	assert.True(t, Is(wrapped, sentinel))
	assert.Equal(t, CodeAlreadyScheduled, GetCode(wrapped))
	assert.False(t, Is(wrapped, WithCode(CodeTimeInPast, "past")))
}

func TestWrapKeepsCodeAndCause(t *testing.T) {
	root := stderrors.New("disk full")
	err := Wrap(WrapCode(root, CodeFileOperation, "rename"), "update recording")

	assert.Equal(t, CodeFileOperation, GetCode(err))
	assert.Equal(t, root, Cause(err))
	assert.Equal(t, "update recording: rename: disk full", err.Error())
	assert.NotEmpty(t, GetStack(err))
}

func TestUncodedErrors(t *testing.T) {
	assert.Equal(t, 0, GetCode(stderrors.New("plain")))
	assert.Equal(t, 0, GetCode(nil))
	assert.Nil(t, Wrap(nil, "ignored"))

	e := New("boom").WithContext("id", "7")
	assert.Equal(t, []KeyValue{{Key: "id", Value: "7"}}, e.Context)
	assert.Equal(t, "boom", GetMessage(e))
}
