package provider

import (
	"context"
	"errors"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/connector"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/log"
	itypes "github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/hashicorp/terraform-plugin-framework/diag"
)

// ProviderStore holds what the provider's resources and data sources share:
// the configured infrastructure and the connector serving it.
type ProviderStore struct {
	infra     itypes.Infrastructure
	connector *connector.Connector

	mu sync.Mutex
	// file is the logger teeing into the infrastructure's log file, if any.
	file   *clog.Logger
	closer func()
}

func NewProviderStore(infra itypes.Infrastructure, c *connector.Connector) *ProviderStore {
	return &ProviderStore{
		infra:     infra,
		connector: c,
	}
}

func (s *ProviderStore) setLogFile(ctx context.Context, closer func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = clog.FromContext(ctx)
	s.closer = closer
}

// Close releases the log file. It is safe to call more than once.
func (s *ProviderStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer != nil {
		s.closer()
	}
	s.file, s.closer = nil, nil
}

// Logger initializes the context logger for a resource operation.
func (s *ProviderStore) Logger(ctx context.Context, resourceType string, withs ...any) context.Context {
	s.mu.Lock()
	file := s.file
	s.mu.Unlock()

	if file != nil {
		ctx = clog.WithLogger(ctx, file)
	}
	ctx = log.WithResource(ctx, resourceType, s.infra.ID)
	if len(withs) > 0 {
		ctx = log.With(ctx, withs...)
	}
	return ctx
}

// errorDiagnostic renders a connector error, naming its kind in the summary.
func errorDiagnostic(summary string, err error) diag.Diagnostic {
	for _, kind := range []error{
		connector.ErrInvalidRequest,
		connector.ErrImageNotFound,
		connector.ErrResourceGroupNotFound,
		connector.ErrUnsupportedOperatingSystem,
		connector.ErrInstanceNotFound,
		connector.ErrPublicIPNotFound,
		connector.ErrUnsupportedOperation,
		connector.ErrProviderCommunication,
	} {
		if errors.Is(err, kind) {
			return diag.NewErrorDiagnostic(summary+": "+kind.Error(), err.Error())
		}
	}
	return diag.NewErrorDiagnostic(summary, err.Error())
}

// storeFrom extracts the store handed to resources and data sources by
// Configure.
func storeFrom(providerData any) (*ProviderStore, diag.Diagnostics) {
	var diags diag.Diagnostics
	// Prevent panic if the provider has not been configured.
	if providerData == nil {
		return nil, diags
	}
	store, ok := providerData.(*ProviderStore)
	if !ok {
		diags.AddError("invalid provider data", "expected *ProviderStore")
		return nil, diags
	}
	return store, diags
}
