package dashboard

import (
	"fmt"

	"github.com/taskforge/taskforge/internal/shared"
)

// Kind selects which pinned set a seed operation targets.
type Kind string

const (
	KindTasks Kind = "tasks"
	KindLogs  Kind = "logs"
)

// DefaultSeedLimit caps the pinned set size per user and kind.
const DefaultSeedLimit = 10

// ParseKind validates a kind string.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindTasks, KindLogs:
		return Kind(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown dashboard kind %q", shared.ErrValidation, raw)
	}
}
