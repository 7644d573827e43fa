package connector

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/o11y"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/tags"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultUsername           = "azureuser"
	DefaultVMSize             = "Standard_D1_v2"
	DefaultPrivateNetworkCIDR = "10.0.0.0/24"
)

// Config holds the defaults applied to create requests that leave the
// corresponding field empty.
type Config struct {
	DefaultUsername string
	// DefaultPassword has no built-in value. Requests without credentials
	// fail when it is empty.
	DefaultPassword           string
	DefaultVMSize             string
	DefaultPrivateNetworkCIDR string
}

func (c *Config) applyDefaults() {
	if c.DefaultUsername == "" {
		c.DefaultUsername = DefaultUsername
	}
	if c.DefaultVMSize == "" {
		c.DefaultVMSize = DefaultVMSize
	}
	if c.DefaultPrivateNetworkCIDR == "" {
		c.DefaultPrivateNetworkCIDR = DefaultPrivateNetworkCIDR
	}
}

// Connector provisions and tears down instances on the infrastructure it is
// handed per call. It keeps no state of its own between calls.
type Connector struct {
	resolver cloud.Resolver
	tags     *tags.Collector
	scripts  ScriptRunner
	cfg      Config
}

type Option func(*Connector)

func WithConfig(cfg Config) Option {
	return func(c *Connector) {
		c.cfg = cfg
	}
}

func WithTagCollector(t *tags.Collector) Option {
	return func(c *Connector) {
		c.tags = t
	}
}

func WithScriptRunner(r ScriptRunner) Option {
	return func(c *Connector) {
		c.scripts = r
	}
}

func New(resolver cloud.Resolver, opts ...Option) *Connector {
	c := &Connector{
		resolver: resolver,
		tags:     tags.New("", "", ""),
		scripts:  CustomScriptRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cfg.applyDefaults()
	return c
}

// Tags returns the collector the connector tags resources with.
func (c *Connector) Tags() *tags.Collector {
	return c.tags
}

func (c *Connector) cloud(ctx context.Context, infra types.Infrastructure) (cloud.Cloud, error) {
	if infra.ID == "" {
		return nil, fmt.Errorf("%w: infrastructure id is required", ErrInvalidRequest)
	}
	cl, err := c.resolver.Cloud(ctx, infra)
	if err != nil {
		return nil, providerErr(err, "connecting to infrastructure %q", infra.ID)
	}
	return cl, nil
}

// CreateKeyPair is not offered by this provider.
func (c *Connector) CreateKeyPair(ctx context.Context, infra types.Infrastructure, instance types.Instance) (string, string, error) {
	return "", "", fmt.Errorf("%w: key pair creation is not supported for infrastructure %q", ErrUnsupportedOperation, infra.ID)
}

// DeleteInfrastructure forgets the cached provider client of the
// infrastructure. Remote resources are left untouched.
func (c *Connector) DeleteInfrastructure(ctx context.Context, infra types.Infrastructure) {
	_, span := o11y.Start(ctx, "connector.DeleteInfrastructure",
		attribute.String(o11y.AttrInfrastructureID, infra.ID))
	defer span.End()

	clog.FromContext(ctx).Info("forgetting infrastructure", o11y.AttrInfrastructureID, infra.ID)
	c.resolver.Forget(infra.ID)
}
