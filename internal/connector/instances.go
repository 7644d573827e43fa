package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/o11y"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"go.opentelemetry.io/otel/attribute"
)

// GetAllInstances lists every VM of the infrastructure, whoever created it.
func (c *Connector) GetAllInstances(ctx context.Context, infra types.Infrastructure) (_ []types.Instance, err error) {
	ctx, span := o11y.Start(ctx, "connector.GetAllInstances",
		attribute.String(o11y.AttrInfrastructureID, infra.ID))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return nil, err
	}
	return listInstances(ctx, cl, func(cloud.VirtualMachine) bool { return true })
}

// GetCreatedInstances lists the VMs carrying the connector tag.
func (c *Connector) GetCreatedInstances(ctx context.Context, infra types.Infrastructure) (_ []types.Instance, err error) {
	ctx, span := o11y.Start(ctx, "connector.GetCreatedInstances",
		attribute.String(o11y.AttrInfrastructureID, infra.ID))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return nil, err
	}
	return listInstances(ctx, cl, func(vm cloud.VirtualMachine) bool { return c.tags.IsCreated(vm.Tags) })
}

func (c *Connector) GetInstanceByID(ctx context.Context, infra types.Infrastructure, instanceID string) (_ *types.Instance, err error) {
	ctx, span := o11y.Start(ctx, "connector.GetInstanceByID",
		attribute.String(o11y.AttrInfrastructureID, infra.ID),
		attribute.String(o11y.AttrInstanceID, instanceID))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return nil, err
	}
	out, err := listInstances(ctx, cl, func(vm cloud.VirtualMachine) bool { return matchesID(vm, instanceID) })
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInstanceNotFound, instanceID)
	}
	return &out[0], nil
}

// GetInstanceByTag lists the VMs named tag. The result is empty, not an
// error, when there are none.
func (c *Connector) GetInstanceByTag(ctx context.Context, infra types.Infrastructure, tag string) (_ []types.Instance, err error) {
	ctx, span := o11y.Start(ctx, "connector.GetInstanceByTag",
		attribute.String(o11y.AttrInfrastructureID, infra.ID),
		attribute.String(o11y.AttrInstanceTag, tag))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return nil, err
	}
	return listInstances(ctx, cl, func(vm cloud.VirtualMachine) bool { return vm.Name == tag })
}

func (c *Connector) GetAllImages(ctx context.Context, infra types.Infrastructure) (_ []types.Image, err error) {
	ctx, span := o11y.Start(ctx, "connector.GetAllImages",
		attribute.String(o11y.AttrInfrastructureID, infra.ID))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return nil, err
	}
	images, err := cl.ListImages(ctx)
	if err != nil {
		return nil, providerErr(err, "listing images")
	}
	out := make([]types.Image, 0, len(images))
	for _, img := range images {
		out = append(out, types.Image{
			ID:       img.ID,
			Name:     img.Name,
			Location: img.Location,
			OSType:   string(img.OSType),
		})
	}
	return out, nil
}

func listInstances(ctx context.Context, cl cloud.Cloud, keep func(cloud.VirtualMachine) bool) ([]types.Instance, error) {
	vms, err := cl.ListVirtualMachines(ctx)
	if err != nil {
		return nil, providerErr(err, "listing virtual machines")
	}

	var selected []cloud.VirtualMachine
	for _, vm := range vms {
		if keep(vm) {
			selected = append(selected, vm)
		}
	}
	if len(selected) == 0 {
		return nil, nil
	}

	nics, addresses, err := addressBook(ctx, cl)
	if err != nil {
		return nil, err
	}

	out := make([]types.Instance, 0, len(selected))
	for _, vm := range selected {
		out = append(out, toInstance(vm, nics, addresses))
	}
	return out, nil
}

// addressBook indexes interfaces and public IP addresses by lowercased
// resource ID.
func addressBook(ctx context.Context, cl cloud.Cloud) (map[string]cloud.NetworkInterface, map[string]string, error) {
	nics, err := cl.ListNetworkInterfaces(ctx)
	if err != nil {
		return nil, nil, providerErr(err, "listing network interfaces")
	}
	pips, err := cl.ListPublicIPs(ctx)
	if err != nil {
		return nil, nil, providerErr(err, "listing public ip addresses")
	}

	nicsByID := make(map[string]cloud.NetworkInterface, len(nics))
	for _, nic := range nics {
		nicsByID[strings.ToLower(nic.ID)] = nic
	}
	addresses := make(map[string]string, len(pips))
	for _, pip := range pips {
		addresses[strings.ToLower(pip.ID)] = pip.Address
	}
	return nicsByID, addresses, nil
}

// toInstance maps a VM to an instance. Public addresses are those of each
// interface's primary configuration in interface order; private addresses
// cover every configuration.
func toInstance(vm cloud.VirtualMachine, nics map[string]cloud.NetworkInterface, addresses map[string]string) types.Instance {
	inst := types.Instance{
		ID:       vm.VMID,
		Tag:      vm.Name,
		Number:   1,
		Hardware: types.Hardware{Type: vm.Size},
		Status:   vm.PowerState,
	}
	for _, nicID := range vm.NetworkInterfaceIDs {
		nic, ok := nics[strings.ToLower(nicID)]
		if !ok {
			continue
		}
		if pipID := nic.PrimaryPublicIPID(); pipID != "" {
			if addr := addresses[strings.ToLower(pipID)]; addr != "" {
				inst.Network.PublicAddresses = append(inst.Network.PublicAddresses, addr)
			}
		}
		for _, cfg := range nic.IPConfigurations {
			if cfg.PrivateIP != "" {
				inst.Network.PrivateAddresses = append(inst.Network.PrivateAddresses, cfg.PrivateIP)
			}
		}
	}
	return inst
}

func matchesID(vm cloud.VirtualMachine, id string) bool {
	return vm.VMID == id || strings.EqualFold(vm.ID, id)
}

// findVirtualMachine returns the VM whose provider-assigned ID (or resource
// ID) is id.
func findVirtualMachine(ctx context.Context, cl cloud.Cloud, id string) (cloud.VirtualMachine, error) {
	if id == "" {
		return cloud.VirtualMachine{}, fmt.Errorf("%w: instance id is required", ErrInvalidRequest)
	}
	vms, err := cl.ListVirtualMachines(ctx)
	if err != nil {
		return cloud.VirtualMachine{}, providerErr(err, "listing virtual machines")
	}
	for _, vm := range vms {
		if matchesID(vm, id) {
			return vm, nil
		}
	}
	return cloud.VirtualMachine{}, fmt.Errorf("%w: %q", ErrInstanceNotFound, id)
}

// virtualMachinesTagged returns the VMs named tag, failing when there are
// none.
func virtualMachinesTagged(ctx context.Context, cl cloud.Cloud, tag string) ([]cloud.VirtualMachine, error) {
	if tag == "" {
		return nil, fmt.Errorf("%w: instance tag is required", ErrInvalidRequest)
	}
	vms, err := cl.ListVirtualMachines(ctx)
	if err != nil {
		return nil, providerErr(err, "listing virtual machines")
	}
	var out []cloud.VirtualMachine
	for _, vm := range vms {
		if vm.Name == tag {
			out = append(out, vm)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no instance tagged %q", ErrInstanceNotFound, tag)
	}
	return out, nil
}
