package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetaError_IsMatchesByCode(t *testing.T) {
	err := NoAvailablePeer(7)

	assert.True(t, stderrors.Is(err, ErrNoAvailablePeer))
	assert.False(t, stderrors.Is(err, ErrPartialAllocation))

	wrapped := fmt.Errorf("assign region: %w", err)
	assert.True(t, stderrors.Is(wrapped, ErrNoAvailablePeer))
	assert.Equal(t, ErrCodeNoAvailablePeer, GetCode(wrapped))
}

func TestUnsupportedSelectorType_CarriesValue(t *testing.T) {
	err := UnsupportedSelectorType("RoundRobin")

	assert.Equal(t, "RoundRobin", err.Details["selector_type"])
	assert.Contains(t, err.Error(), "RoundRobin")
	assert.True(t, stderrors.Is(err, ErrUnsupportedSelectorType))
}

func TestPartialAllocation_Details(t *testing.T) {
	err := PartialAllocation(1, 3, 2)

	assert.Equal(t, 3, err.Details["requested"])
	assert.Equal(t, 2, err.Details["allocated"])
	assert.Equal(t, "namespace 1: allocated 2 of 3 requested peers", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{InvalidArgument("bad", nil), http.StatusBadRequest},
		{UnsupportedSelectorType("x"), http.StatusBadRequest},
		{NoAvailablePeer(1), http.StatusServiceUnavailable},
		{PartialAllocation(1, 2, 1), http.StatusPartialContent},
		{Unavailable("down", nil), http.StatusServiceUnavailable},
		{InternalError("boom", nil), http.StatusInternalServerError},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestGetCode_NonMetaError(t *testing.T) {
	assert.Equal(t, ErrCodeOK, GetCode(nil))
	assert.Equal(t, ErrCodeInternal, GetCode(stderrors.New("plain")))
}

func TestMetaError_Unwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Unavailable("directory unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "directory unreachable: connection refused", err.Error())
	assert.Equal(t, "SERVICE_UNAVAILABLE", err.Code.String())
}
