package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestStatusSentinel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   int
		overflow bool
		want     error
	}{
		{429, false, ErrRateLimit},
		{401, false, ErrAuthentication},
		{403, false, ErrAuthentication},
		{400, true, ErrContextLength},
		{400, false, nil},
		{404, false, nil},
		{500, false, ErrProviderDown},
		{503, false, ErrProviderDown},
		{529, false, ErrProviderDown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%v", tt.status, tt.overflow), func(t *testing.T) {
			t.Parallel()
			if got := StatusSentinel(tt.status, tt.overflow); got != tt.want {
				t.Errorf("StatusSentinel = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransportSentinel(t *testing.T) {
	t.Parallel()

	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if got := TransportSentinel(fmt.Errorf("post: %w", dial)); got != ErrProviderDown {
		t.Errorf("network error = %v", got)
	}
	for _, err := range []error{context.Canceled, context.DeadlineExceeded, errors.New("bad json")} {
		if got := TransportSentinel(err); got != nil {
			t.Errorf("TransportSentinel(%v) = %v, want nil", err, got)
		}
	}
}
