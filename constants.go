package qcore

import "github.com/qlab-core/qcore/internal/constants"

// Re-export process tunables for the public API.
const (
	DefaultTaskTimeout       = constants.DefaultTaskTimeout
	DefaultStepTimeout       = constants.DefaultStepTimeout
	DefaultDeviceCallTimeout = constants.DefaultDeviceCallTimeout
	DefaultDriverRetries     = constants.DefaultDriverRetries
	DefaultSessionIdle       = constants.DefaultSessionIdle
	DefaultCheckPeriod       = constants.DefaultCheckPeriod
	DefaultQueueCapacity     = constants.DefaultQueueCapacity
	DefaultCalibHistoryLen   = constants.DefaultCalibHistoryLen
)
