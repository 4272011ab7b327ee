package sheets

import (
	"context"

	"spendwatch/internal/core"
)

// Ports for outbound report adapters.
type ReportWriter interface {
	Append(ctx context.Context, et core.ExceededTransaction) (rowRef string, err error)
}
