package syncerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifiersMatchTheirOwnType(t *testing.T) {
	assert.True(t, IsNetwork(&NetworkError{Err: errors.New("dial tcp")}))
	assert.True(t, IsNotFound(&NotFoundError{ID: "x"}))
	assert.True(t, IsValidation(&ValidationError{Field: "name", Reason: "required"}))
	assert.True(t, IsStorage(&StorageError{Op: "save", Err: errors.New("disk")}))
	assert.True(t, IsAuthenticationRequired(&AuthenticationRequiredError{}))
}

func TestClassifiersRejectOtherTypes(t *testing.T) {
	err := errors.New("plain")

	assert.False(t, IsNetwork(err))
	assert.False(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.False(t, IsStorage(err))
	assert.False(t, IsAuthenticationRequired(err))

	assert.False(t, IsNetwork(nil))
}

func TestClassifiersSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("sync record: %w", &NetworkError{Err: errors.New("timeout")})
	assert.True(t, IsNetwork(wrapped))
}

func TestNetworkErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	assert.ErrorIs(t, &NetworkError{Err: cause}, cause)
}
