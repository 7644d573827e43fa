package azure

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v6"
	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
)

// sharedResources creates each new virtual network and security group of a
// batch once, however many interfaces reference it.
type sharedResources struct {
	c *Client

	mu      sync.Mutex
	subnets map[string]string
	groups  map[string]string
}

func newSharedResources(c *Client) *sharedResources {
	return &sharedResources{
		c:       c,
		subnets: make(map[string]string),
		groups:  make(map[string]string),
	}
}

func key(rg, name string) string {
	return strings.ToLower(rg + "/" + name)
}

// subnet returns the subnet ID ref resolves to, creating the network it
// describes when needed.
func (s *sharedResources) subnet(ctx context.Context, ref cloud.NetworkRef) (string, error) {
	switch {
	case ref.SubnetID != "":
		return ref.SubnetID, nil
	case ref.VirtualNetworkID != "":
		rg, name, err := parseID(ref.VirtualNetworkID)
		if err != nil {
			return "", err
		}
		resp, err := s.c.networks.Get(ctx, rg, name, nil)
		if err != nil {
			return "", wrapErr(err)
		}
		vnet := toVirtualNetwork(&resp.VirtualNetwork)
		if len(vnet.SubnetIDs) == 0 {
			return "", fmt.Errorf("virtual network %q has no subnets", vnet.Name)
		}
		return vnet.SubnetIDs[0], nil
	case ref.New == nil:
		return "", fmt.Errorf("network interface has no network")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(ref.New.ResourceGroup, ref.New.Name)
	if id, ok := s.subnets[k]; ok {
		return id, nil
	}

	clog.FromContext(ctx).Info("creating virtual network", "name", ref.New.Name, "cidr", ref.New.AddressPrefix)
	poller, err := s.c.networks.BeginCreateOrUpdate(ctx, ref.New.ResourceGroup, ref.New.Name, fromVirtualNetwork(*ref.New), nil)
	if err != nil {
		return "", wrapErr(err)
	}
	resp, err := poller.PollUntilDone(ctx, s.c.poll)
	if err != nil {
		return "", wrapErr(err)
	}
	vnet := toVirtualNetwork(&resp.VirtualNetwork)
	if len(vnet.SubnetIDs) == 0 {
		return "", fmt.Errorf("virtual network %q was created without subnets", vnet.Name)
	}
	s.subnets[k] = vnet.SubnetIDs[0]
	return vnet.SubnetIDs[0], nil
}

// securityGroup returns the security group ID ref resolves to, possibly
// empty.
func (s *sharedResources) securityGroup(ctx context.Context, ref cloud.SecurityGroupRef) (string, error) {
	if ref.ExistingID != "" || ref.New == nil {
		return ref.ExistingID, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(ref.New.ResourceGroup, ref.New.Name)
	if id, ok := s.groups[k]; ok {
		return id, nil
	}

	clog.FromContext(ctx).Info("creating security group", "name", ref.New.Name)
	poller, err := s.c.sgs.BeginCreateOrUpdate(ctx, ref.New.ResourceGroup, ref.New.Name, fromSecurityGroup(*ref.New), nil)
	if err != nil {
		return "", wrapErr(err)
	}
	resp, err := poller.PollUntilDone(ctx, s.c.poll)
	if err != nil {
		return "", wrapErr(err)
	}
	s.groups[k] = deref(resp.ID)
	return deref(resp.ID), nil
}

func (c *Client) createNetworkInterface(ctx context.Context, shared *sharedResources, spec cloud.NetworkInterfaceSpec) (*cloud.NetworkInterface, error) {
	subnetID, err := shared.subnet(ctx, spec.Network)
	if err != nil {
		return nil, err
	}
	sgID, err := shared.securityGroup(ctx, spec.SecurityGroup)
	if err != nil {
		return nil, err
	}

	pipID := spec.PublicIP.ExistingID
	if pipID == "" && spec.PublicIP.New != nil {
		pip, err := c.CreatePublicIP(ctx, *spec.PublicIP.New)
		if err != nil {
			return nil, err
		}
		pipID = pip.ID
	}

	clog.FromContext(ctx).Info("creating network interface", "name", spec.Name)
	poller, err := c.interfaces.BeginCreateOrUpdate(ctx, spec.ResourceGroup, spec.Name, fromNetworkInterface(spec, subnetID, sgID, pipID), nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	resp, err := poller.PollUntilDone(ctx, c.poll)
	if err != nil {
		return nil, wrapErr(err)
	}
	nic := toNetworkInterface(&resp.Interface)
	return &nic, nil
}

func (c *Client) ListNetworkInterfaces(ctx context.Context) ([]cloud.NetworkInterface, error) {
	var out []cloud.NetworkInterface
	pager := c.interfaces.NewListAllPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(err)
		}
		for _, nic := range page.Value {
			if nic != nil {
				out = append(out, toNetworkInterface(nic))
			}
		}
	}
	return out, nil
}

func (c *Client) GetNetworkInterface(ctx context.Context, id string) (*cloud.NetworkInterface, error) {
	rg, name, err := parseID(id)
	if err != nil {
		return nil, err
	}
	resp, err := c.interfaces.Get(ctx, rg, name, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	nic := toNetworkInterface(&resp.Interface)
	return &nic, nil
}

func (c *Client) CreateNetworkInterface(ctx context.Context, spec cloud.NetworkInterfaceSpec) (*cloud.NetworkInterface, error) {
	return c.createNetworkInterface(ctx, newSharedResources(c), spec)
}

func (c *Client) SetPublicIP(ctx context.Context, nicID, publicIPID string) error {
	rg, name, err := parseID(nicID)
	if err != nil {
		return err
	}
	resp, err := c.interfaces.Get(ctx, rg, name, nil)
	if err != nil {
		return wrapErr(err)
	}
	nic := resp.Interface
	cfg := primaryConfiguration(&nic)
	if cfg == nil {
		return fmt.Errorf("network interface %q has no primary ip configuration", name)
	}
	if cfg.Properties == nil {
		cfg.Properties = &armnetwork.InterfaceIPConfigurationPropertiesFormat{}
	}
	if publicIPID == "" {
		cfg.Properties.PublicIPAddress = nil
	} else {
		cfg.Properties.PublicIPAddress = &armnetwork.PublicIPAddress{ID: &publicIPID}
	}

	poller, err := c.interfaces.BeginCreateOrUpdate(ctx, rg, name, nic, nil)
	if err != nil {
		return wrapErr(err)
	}
	_, err = poller.PollUntilDone(ctx, c.poll)
	return wrapErr(err)
}

func primaryConfiguration(nic *armnetwork.Interface) *armnetwork.InterfaceIPConfiguration {
	if nic.Properties == nil {
		return nil
	}
	cfgs := nic.Properties.IPConfigurations
	for _, cfg := range cfgs {
		if cfg != nil && cfg.Properties != nil && deref(cfg.Properties.Primary) {
			return cfg
		}
	}
	if len(cfgs) == 1 {
		return cfgs[0]
	}
	return nil
}

func (c *Client) DeleteNetworkInterface(ctx context.Context, id string) error {
	rg, name, err := parseID(id)
	if err != nil {
		return err
	}
	poller, err := c.interfaces.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return wrapErr(err)
	}
	_, err = poller.PollUntilDone(ctx, c.poll)
	return wrapErr(err)
}

func (c *Client) ListVirtualNetworks(ctx context.Context) ([]cloud.VirtualNetwork, error) {
	var out []cloud.VirtualNetwork
	pager := c.networks.NewListAllPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(err)
		}
		for _, vnet := range page.Value {
			if vnet != nil {
				out = append(out, toVirtualNetwork(vnet))
			}
		}
	}
	return out, nil
}

func (c *Client) DeleteVirtualNetwork(ctx context.Context, id string) error {
	rg, name, err := parseID(id)
	if err != nil {
		return err
	}
	poller, err := c.networks.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return wrapErr(err)
	}
	_, err = poller.PollUntilDone(ctx, c.poll)
	return wrapErr(err)
}

func (c *Client) ListSecurityGroups(ctx context.Context) ([]cloud.SecurityGroup, error) {
	var out []cloud.SecurityGroup
	pager := c.sgs.NewListAllPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(err)
		}
		for _, sg := range page.Value {
			if sg != nil {
				out = append(out, toSecurityGroup(sg))
			}
		}
	}
	return out, nil
}

func (c *Client) DeleteSecurityGroup(ctx context.Context, id string) error {
	rg, name, err := parseID(id)
	if err != nil {
		return err
	}
	poller, err := c.sgs.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return wrapErr(err)
	}
	_, err = poller.PollUntilDone(ctx, c.poll)
	return wrapErr(err)
}

func (c *Client) ListPublicIPs(ctx context.Context) ([]cloud.PublicIP, error) {
	var out []cloud.PublicIP
	pager := c.pips.NewListAllPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(err)
		}
		for _, pip := range page.Value {
			if pip != nil {
				out = append(out, toPublicIP(pip))
			}
		}
	}
	return out, nil
}

func (c *Client) CreatePublicIP(ctx context.Context, spec cloud.PublicIPSpec) (*cloud.PublicIP, error) {
	clog.FromContext(ctx).Info("creating public ip address", "name", spec.Name, "static", spec.Static)
	poller, err := c.pips.BeginCreateOrUpdate(ctx, spec.ResourceGroup, spec.Name, fromPublicIP(spec), nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	resp, err := poller.PollUntilDone(ctx, c.poll)
	if err != nil {
		return nil, wrapErr(err)
	}
	pip := toPublicIP(&resp.PublicIPAddress)
	return &pip, nil
}

func (c *Client) DeletePublicIP(ctx context.Context, id string) error {
	rg, name, err := parseID(id)
	if err != nil {
		return err
	}
	poller, err := c.pips.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return wrapErr(err)
	}
	_, err = poller.PollUntilDone(ctx, c.poll)
	return wrapErr(err)
}
