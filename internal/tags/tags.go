package tags

import (
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
)

const (
	// These are the default keys and value of the mandatory tags every
	// provisioned resource carries. The connector tag marks resources this
	// connector created, the infrastructure tag records which infrastructure
	// they belong to.
	DefaultConnectorKey      = "connector-iaas"
	DefaultConnectorValue    = "default-tag"
	DefaultInfrastructureKey = "infrastructure-id"
)

// Collector produces the tag set applied to provisioned resources.
type Collector struct {
	ConnectorKey      string
	ConnectorValue    string
	InfrastructureKey string
}

// New returns a Collector using the default keys for any empty argument.
func New(connectorKey, connectorValue, infrastructureKey string) *Collector {
	c := &Collector{
		ConnectorKey:      connectorKey,
		ConnectorValue:    connectorValue,
		InfrastructureKey: infrastructureKey,
	}
	if c.ConnectorKey == "" {
		c.ConnectorKey = DefaultConnectorKey
	}
	if c.ConnectorValue == "" {
		c.ConnectorValue = DefaultConnectorValue
	}
	if c.InfrastructureKey == "" {
		c.InfrastructureKey = DefaultInfrastructureKey
	}
	return c
}

// Collect returns the mandatory tags followed by the caller-supplied tags of
// opts. Caller tags whose key collides with a mandatory key are dropped, and
// only the first occurrence of a repeated caller key is kept.
func (c *Collector) Collect(infrastructureID string, opts *types.Options) []types.Tag {
	out := []types.Tag{
		{Key: c.ConnectorKey, Value: c.ConnectorValue},
		{Key: c.InfrastructureKey, Value: infrastructureID},
	}
	if opts == nil {
		return out
	}

	seen := map[string]bool{
		c.ConnectorKey:      true,
		c.InfrastructureKey: true,
	}
	for _, t := range opts.Tags {
		if seen[t.Key] {
			continue
		}
		seen[t.Key] = true
		out = append(out, t)
	}
	return out
}

// IsCreated reports whether the given resource tags carry the connector tag.
func (c *Collector) IsCreated(tags map[string]string) bool {
	v, ok := tags[c.ConnectorKey]
	return ok && v == c.ConnectorValue
}

// Map converts a tag list to the map form providers expect.
func Map(tags []types.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Key] = t.Value
	}
	return m
}
