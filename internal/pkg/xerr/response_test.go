package xerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
		wantKnown  bool
	}{
		{"sentinel", ErrResourceNotFound, http.StatusNotFound, ResourceNotFoundCode, true},
		{"wrapped with reason", fmt.Errorf("%w: Available: 0 B", ErrQuotaExceeded), http.StatusInsufficientStorage, QuotaExceededCode, true},
		{"double wrapped", fmt.Errorf("%w: %w", ErrUpstream, errors.New("dial tcp: refused")), http.StatusBadGateway, UpstreamErrorCode, true},
		{"in progress", ErrDeploymentInProgress, http.StatusConflict, DeploymentInProgressCode, true},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, InternalServerErrorCode, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, known := Resolve(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantKnown, known)
		})
	}
}
