package connector

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/o11y"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"go.opentelemetry.io/otel/attribute"
)

// DeleteInstance tears down the instance and every resource it exclusively
// owns: its interfaces, their public IPs, its OS disk, and the security
// groups and virtual networks no remaining interface references. The first
// failing provider call aborts the teardown.
func (c *Connector) DeleteInstance(ctx context.Context, infra types.Infrastructure, instanceID string) (err error) {
	ctx, span := o11y.Start(ctx, "connector.DeleteInstance",
		attribute.String(o11y.AttrInfrastructureID, infra.ID),
		attribute.String(o11y.AttrInstanceID, instanceID))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return err
	}
	vm, err := findVirtualMachine(ctx, cl, instanceID)
	if err != nil {
		return err
	}
	return decommission(ctx, cl, vm)
}

// DeleteInstanceByTag tears down every instance named tag. Having none is not
// an error.
func (c *Connector) DeleteInstanceByTag(ctx context.Context, infra types.Infrastructure, tag string) (err error) {
	ctx, span := o11y.Start(ctx, "connector.DeleteInstanceByTag",
		attribute.String(o11y.AttrInfrastructureID, infra.ID),
		attribute.String(o11y.AttrInstanceTag, tag))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return err
	}
	vms, err := cl.ListVirtualMachines(ctx)
	if err != nil {
		return providerErr(err, "listing virtual machines")
	}
	for _, vm := range vms {
		if vm.Name != tag {
			continue
		}
		if err := decommission(ctx, cl, vm); err != nil {
			return err
		}
	}
	return nil
}

// DeleteCreatedInstances tears down every instance carrying the connector
// tag. All of them are attempted; failures are joined.
func (c *Connector) DeleteCreatedInstances(ctx context.Context, infra types.Infrastructure) (err error) {
	ctx, span := o11y.Start(ctx, "connector.DeleteCreatedInstances",
		attribute.String(o11y.AttrInfrastructureID, infra.ID))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return err
	}
	vms, err := cl.ListVirtualMachines(ctx)
	if err != nil {
		return providerErr(err, "listing virtual machines")
	}

	var errs error
	for _, vm := range vms {
		if !c.tags.IsCreated(vm.Tags) {
			continue
		}
		errs = errors.Join(errs, decommission(ctx, cl, vm))
	}
	return errs
}

// decommission deletes vm and its dependents in the order the provider
// accepts: the VM, its interfaces, their public IPs, the OS disk, then the
// security groups and virtual networks nothing references anymore.
func decommission(ctx context.Context, cl cloud.Cloud, vm cloud.VirtualMachine) error {
	log := clog.FromContext(ctx).With(o11y.AttrInstanceID, vm.VMID, "vm", vm.Name)

	// Snapshot the dependents before the VM, and with it the references,
	// goes away.
	var (
		nics           []cloud.NetworkInterface
		networks       []string
		securityGroups []string
		publicIPs      []string
	)
	for _, nicID := range vm.NetworkInterfaceIDs {
		nic, err := cl.GetNetworkInterface(ctx, nicID)
		if isNotFound(err) {
			log.Warn("network interface already gone", "nic", nicID)
			continue
		} else if err != nil {
			return providerErr(err, "getting network interface %q", nicID)
		}
		nics = append(nics, *nic)
		securityGroups = appendUnique(securityGroups, nic.SecurityGroupID)
		for _, cfg := range nic.IPConfigurations {
			networks = appendUnique(networks, cfg.VirtualNetworkID)
			publicIPs = appendUnique(publicIPs, cfg.PublicIPID)
		}
	}
	osDisk := vm.OSDiskID

	log.Info("deleting virtual machine")
	if err := cl.DeleteVirtualMachine(ctx, vm.ID); err != nil {
		return providerErr(err, "deleting virtual machine %q", vm.Name)
	}

	for _, nic := range nics {
		log.Debug("deleting network interface", "nic", nic.Name)
		if err := cl.DeleteNetworkInterface(ctx, nic.ID); err != nil {
			return providerErr(err, "deleting network interface %q", nic.Name)
		}
	}

	for _, pipID := range publicIPs {
		log.Debug("deleting public ip address", "public_ip", pipID)
		if err := cl.DeletePublicIP(ctx, pipID); err != nil {
			return providerErr(err, "deleting public ip address %q", pipID)
		}
	}

	if osDisk != "" {
		log.Debug("deleting os disk", "disk", osDisk)
		if err := cl.DeleteDisk(ctx, osDisk); err != nil {
			return providerErr(err, "deleting os disk %q", osDisk)
		}
	}

	remaining, err := cl.ListNetworkInterfaces(ctx)
	if err != nil {
		return providerErr(err, "listing network interfaces")
	}
	for _, sgID := range securityGroups {
		if slices.ContainsFunc(remaining, func(n cloud.NetworkInterface) bool {
			return strings.EqualFold(n.SecurityGroupID, sgID)
		}) {
			log.Debug("keeping security group still in use", "security_group", sgID)
			continue
		}
		log.Debug("deleting security group", "security_group", sgID)
		if err := cl.DeleteSecurityGroup(ctx, sgID); err != nil {
			return providerErr(err, "deleting security group %q", sgID)
		}
	}

	remaining, err = cl.ListNetworkInterfaces(ctx)
	if err != nil {
		return providerErr(err, "listing network interfaces")
	}
	for _, vnetID := range networks {
		if slices.ContainsFunc(remaining, func(n cloud.NetworkInterface) bool {
			return slices.ContainsFunc(n.IPConfigurations, func(c cloud.IPConfiguration) bool {
				return strings.EqualFold(c.VirtualNetworkID, vnetID)
			})
		}) {
			log.Debug("keeping virtual network still in use", "virtual_network", vnetID)
			continue
		}
		log.Debug("deleting virtual network", "virtual_network", vnetID)
		if err := cl.DeleteVirtualNetwork(ctx, vnetID); err != nil {
			return providerErr(err, "deleting virtual network %q", vnetID)
		}
	}

	log.Info("deleted virtual machine")
	return nil
}

func appendUnique(s []string, v string) []string {
	if v == "" || slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
