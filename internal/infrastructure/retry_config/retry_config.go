package retry_config

import (
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryOptions is the shared policy for transient network failures against
// the Kubernetes API, git remotes, and container registries.
var RetryOptions = []retry.Option{
	retry.Attempts(3),
	retry.Delay(500 * time.Millisecond),
	retry.MaxDelay(3 * time.Second),
}

// ZeroDelayOptions keeps the same attempt count without any waiting, so tests
// exercising failure paths do not sleep.
var ZeroDelayOptions = []retry.Option{
	retry.Attempts(3),
	retry.Delay(0),
	retry.MaxDelay(0),
}
