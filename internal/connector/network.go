package connector

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/naming"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
)

const defaultSubnetName = "default"

// defaultSecurityRules open remote access to freshly created security groups.
var defaultSecurityRules = []cloud.SecurityRule{
	{Name: "ssh", Priority: 300, Port: "22", Protocol: "Tcp"},
	{Name: "rdp", Priority: 320, Port: "3389", Protocol: "Tcp"},
}

// networkPlan is the network composition of one create request. Every
// replica lands in the same virtual network and security group; each one gets
// its own interface and public IP.
type networkPlan struct {
	resourceGroup string
	location      string
	tags          map[string]string
	staticIP      bool

	// The creatable descriptors are always computed. The existing IDs, when
	// set, take precedence when interfaces are built.
	network       cloud.VirtualNetworkSpec
	securityGroup cloud.SecurityGroupSpec

	existingNetworkID       string
	existingSecurityGroupID string
	existingPublicIPID      string
}

// composeNetwork builds the plan shared by all replicas of a request tagged
// tag. It only reads remote state: caller-supplied identifiers are resolved
// here so that an unknown one fails the request before anything is created.
func (c *Connector) composeNetwork(
	ctx context.Context,
	cl cloud.Cloud,
	tag string,
	opts *types.Options,
	resourceGroup, location string,
	tags map[string]string,
) (*networkPlan, error) {
	cidr := opts.PrivateNetworkCIDR
	if cidr == "" {
		cidr = c.cfg.DefaultPrivateNetworkCIDR
	}

	plan := &networkPlan{
		resourceGroup: resourceGroup,
		location:      location,
		tags:          tags,
		staticIP:      opts.StaticPublicIP == nil || *opts.StaticPublicIP,
		network: cloud.VirtualNetworkSpec{
			Name:          naming.VirtualNetwork(tag),
			ResourceGroup: resourceGroup,
			Location:      location,
			AddressPrefix: cidr,
			SubnetName:    defaultSubnetName,
			Tags:          tags,
		},
		securityGroup: cloud.SecurityGroupSpec{
			Name:          naming.SecurityGroup(tag),
			ResourceGroup: resourceGroup,
			Location:      location,
			Rules:         defaultSecurityRules,
			Tags:          tags,
		},
	}

	if opts.SubnetID != "" {
		vnets, err := cl.ListVirtualNetworks(ctx)
		if err != nil {
			return nil, providerErr(err, "listing virtual networks")
		}
		vnet, ok := findByNameOrID(vnets, opts.SubnetID, func(v cloud.VirtualNetwork) (string, string) { return v.Name, v.ID })
		if !ok {
			return nil, fmt.Errorf("%w: virtual network %q does not exist", ErrInvalidRequest, opts.SubnetID)
		}
		plan.existingNetworkID = vnet.ID
	}

	if len(opts.SecurityGroupNames) > 0 {
		sgs, err := cl.ListSecurityGroups(ctx)
		if err != nil {
			return nil, providerErr(err, "listing security groups")
		}
		want := opts.SecurityGroupNames[0]
		sg, ok := findByNameOrID(sgs, want, func(s cloud.SecurityGroup) (string, string) { return s.Name, s.ID })
		if !ok {
			return nil, fmt.Errorf("%w: security group %q does not exist", ErrInvalidRequest, want)
		}
		plan.existingSecurityGroupID = sg.ID
	}

	if opts.PublicIPAddress != "" {
		pip, err := findIdlePublicIP(ctx, cl, opts.PublicIPAddress)
		if err != nil {
			return nil, err
		}
		plan.existingPublicIPID = pip.ID
	}

	return plan, nil
}

// networkInterface returns the interface spec of the replica named vmName.
// Replica 1 binds the caller-supplied public IP when there is one.
func (p *networkPlan) networkInterface(vmName string, replica int) cloud.NetworkInterfaceSpec {
	spec := cloud.NetworkInterfaceSpec{
		Name:          naming.NetworkInterface(vmName),
		ResourceGroup: p.resourceGroup,
		Location:      p.location,
		Network: cloud.NetworkRef{
			VirtualNetworkID: p.existingNetworkID,
			New:              &p.network,
		},
		SecurityGroup: cloud.SecurityGroupRef{
			ExistingID: p.existingSecurityGroupID,
			New:        &p.securityGroup,
		},
		PublicIP: cloud.PublicIPRef{
			New: &cloud.PublicIPSpec{
				Name:          naming.PublicIP(vmName),
				ResourceGroup: p.resourceGroup,
				Location:      p.location,
				Static:        p.staticIP,
				Tags:          maps.Clone(p.tags),
			},
		},
		Tags: maps.Clone(p.tags),
	}
	if replica == 1 {
		spec.PublicIP.ExistingID = p.existingPublicIPID
	}
	return spec
}

// findIdlePublicIP returns the unattached public IP whose literal address is
// address.
func findIdlePublicIP(ctx context.Context, cl cloud.Cloud, address string) (cloud.PublicIP, error) {
	pips, err := cl.ListPublicIPs(ctx)
	if err != nil {
		return cloud.PublicIP{}, providerErr(err, "listing public ip addresses")
	}
	for _, pip := range pips {
		if pip.Address == address && pip.IPConfigurationID == "" {
			return pip, nil
		}
	}
	return cloud.PublicIP{}, fmt.Errorf("%w: no unattached public ip address %q", ErrPublicIPNotFound, address)
}

func findByNameOrID[T any](items []T, want string, key func(T) (string, string)) (T, bool) {
	for _, it := range items {
		name, id := key(it)
		if name == want || strings.EqualFold(id, want) {
			return it, true
		}
	}
	var zero T
	return zero, false
}
