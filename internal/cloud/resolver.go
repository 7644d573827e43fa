package cloud

import (
	"context"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
)

// Resolver hands out the Cloud serving an infrastructure. Implementations
// cache clients per infrastructure ID.
type Resolver interface {
	Cloud(ctx context.Context, infra types.Infrastructure) (Cloud, error)
	// Forget drops any cached client of the infrastructure.
	Forget(infrastructureID string)
}
