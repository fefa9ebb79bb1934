package treesync

import (
	"errors"

	"github.com/marksync/marksync/internal/remote"
)

// Errors returned by Engine runs. Check them with errors.Is.
var (
	// ErrConfigIncomplete is returned when mount_on, remote_root or webhook
	// is missing. The run is aborted before any host or network call.
	ErrConfigIncomplete = errors.New("sync configuration incomplete")

	// ErrSyncInProgress is returned when a run in the other direction is
	// still outstanding.
	ErrSyncInProgress = errors.New("another sync is in progress")
)

// IsRetryable returns true if the error is likely to succeed on a later run,
// such as transport failures or a run rejected because another was active.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrSyncInProgress) {
		return true
	}

	// Transport failures are retried by the next scheduled run
	if errors.Is(err, remote.ErrTransport) {
		return true
	}

	return false
}

// IsSilent returns true for errors that abort a run without being worth a
// warning, currently only an incomplete configuration.
func IsSilent(err error) bool {
	return errors.Is(err, ErrConfigIncomplete)
}
