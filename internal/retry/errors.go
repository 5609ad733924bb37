package retry

import "errors"

// ErrNotConfigured indicates a Policy was used without an interval or timeout.
var ErrNotConfigured = errors.New("retry policy requires both interval and timeout")

// ErrTimeout indicates the action did not succeed before the policy timeout elapsed.
var ErrTimeout = errors.New("retry timed out")

// ErrCancelled indicates the wait between attempts was interrupted.
var ErrCancelled = errors.New("retry cancelled")
