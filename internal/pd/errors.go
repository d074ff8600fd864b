package pd

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrRegionNotFound indicates the region metadata is unknown to PD.
	ErrRegionNotFound = errors.New("pd: region not registered")
	// ErrUnavailable indicates PD could not be reached.
	ErrUnavailable = errors.New("pd: unavailable")
)

// IsRegionNotFoundError reports whether err indicates missing region metadata.
func IsRegionNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRegionNotFound) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		return st.Code() == codes.NotFound
	}
	return false
}

// IsTransportError reports whether err comes from the transport rather than
// from a decision made by PD. Such errors clear up on their own once PD is
// reachable again.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted:
			return true
		}
	}
	return false
}
