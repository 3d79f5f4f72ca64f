package pipeline

import "errors"

// Fetch and probe failures abort the invocation. The rest are scoped to the
// version that produced them.
var (
	ErrFetch         = errors.New("fetch source failed")
	ErrProbe         = errors.New("probe source failed")
	ErrUnclassified  = errors.New("aspect ratio not in classification table")
	ErrPlan          = errors.New("plan resize failed")
	ErrRender        = errors.New("render version failed")
	ErrPublish       = errors.New("publish version failed")
	ErrPublishVerify = errors.New("publish verification failed")
	ErrNotification  = errors.New("notification failed")
	ErrPanic         = errors.New("recovered panic")
)
