package connector

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/naming"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/o11y"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"go.opentelemetry.io/otel/attribute"
)

// AddPublicIP gives the instance one more public IP and returns its address.
//
// With desiredIP set, the existing unattached address with that value is
// used, otherwise a new static address is created. It is bound to the first
// interface without a public IP. When every interface already has one, a
// secondary interface cloned from the primary one is created for it; if the
// VM refuses that interface, the primary interface's address is replaced
// instead.
func (c *Connector) AddPublicIP(ctx context.Context, infra types.Infrastructure, instanceID, desiredIP string) (_ string, err error) {
	ctx, span := o11y.Start(ctx, "connector.AddPublicIP",
		attribute.String(o11y.AttrInfrastructureID, infra.ID),
		attribute.String(o11y.AttrInstanceID, instanceID),
		attribute.String(o11y.AttrPublicIP, desiredIP))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return "", err
	}
	vm, err := findVirtualMachine(ctx, cl, instanceID)
	if err != nil {
		return "", err
	}
	return addPublicIP(ctx, cl, vm, desiredIP)
}

// AddPublicIPByTag adds a public IP to every instance named tag. A desiredIP
// can only go to one instance.
func (c *Connector) AddPublicIPByTag(ctx context.Context, infra types.Infrastructure, tag, desiredIP string) (_ []string, err error) {
	ctx, span := o11y.Start(ctx, "connector.AddPublicIPByTag",
		attribute.String(o11y.AttrInfrastructureID, infra.ID),
		attribute.String(o11y.AttrInstanceTag, tag),
		attribute.String(o11y.AttrPublicIP, desiredIP))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return nil, err
	}
	vms, err := virtualMachinesTagged(ctx, cl, tag)
	if err != nil {
		return nil, err
	}
	if desiredIP != "" && len(vms) > 1 {
		return nil, fmt.Errorf("%w: public ip %q cannot be added to %d instances tagged %q", ErrInvalidRequest, desiredIP, len(vms), tag)
	}

	var out []string
	for _, vm := range vms {
		addr, err := addPublicIP(ctx, cl, vm, desiredIP)
		if err != nil {
			return out, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// RemovePublicIP removes one public IP from the instance. With desiredIP set
// and matching an existing address, that address is deleted; an address bound
// to another instance yields ErrInvalidRequest. Otherwise a secondary
// interface's address is preferred over the primary one. An instance without
// any public IP is left as is.
func (c *Connector) RemovePublicIP(ctx context.Context, infra types.Infrastructure, instanceID, desiredIP string) (err error) {
	ctx, span := o11y.Start(ctx, "connector.RemovePublicIP",
		attribute.String(o11y.AttrInfrastructureID, infra.ID),
		attribute.String(o11y.AttrInstanceID, instanceID),
		attribute.String(o11y.AttrPublicIP, desiredIP))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return err
	}
	vm, err := findVirtualMachine(ctx, cl, instanceID)
	if err != nil {
		return err
	}
	return removePublicIP(ctx, cl, vm, desiredIP)
}

// RemovePublicIPByTag removes one public IP from every instance named tag.
func (c *Connector) RemovePublicIPByTag(ctx context.Context, infra types.Infrastructure, tag, desiredIP string) (err error) {
	ctx, span := o11y.Start(ctx, "connector.RemovePublicIPByTag",
		attribute.String(o11y.AttrInfrastructureID, infra.ID),
		attribute.String(o11y.AttrInstanceTag, tag),
		attribute.String(o11y.AttrPublicIP, desiredIP))
	defer o11y.End(span, &err)

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return err
	}
	vms, err := virtualMachinesTagged(ctx, cl, tag)
	if err != nil {
		return err
	}
	for _, vm := range vms {
		if err := removePublicIP(ctx, cl, vm, desiredIP); err != nil {
			return err
		}
	}
	return nil
}

func addPublicIP(ctx context.Context, cl cloud.Cloud, vm cloud.VirtualMachine, desiredIP string) (string, error) {
	log := clog.FromContext(ctx).With(o11y.AttrInstanceID, vm.VMID, "vm", vm.Name)

	var target cloud.PublicIP
	if desiredIP != "" {
		pip, err := findIdlePublicIP(ctx, cl, desiredIP)
		if err != nil {
			return "", err
		}
		target = pip
	}

	nics, err := networkInterfaces(ctx, cl, vm)
	if err != nil {
		return "", err
	}
	if len(nics) == 0 {
		return "", fmt.Errorf("%w: instance %q has no network interface", ErrInvalidRequest, vm.VMID)
	}

	if desiredIP == "" {
		pip, err := cl.CreatePublicIP(ctx, cloud.PublicIPSpec{
			Name:          naming.PublicIP(vm.Name),
			ResourceGroup: vm.ResourceGroup,
			Location:      vm.Location,
			Static:        true,
			Tags:          maps.Clone(vm.Tags),
		})
		if err != nil {
			return "", providerErr(err, "creating public ip address for %q", vm.Name)
		}
		log.Info("created public ip address", "public_ip", pip.Address)
		target = *pip
	}

	for _, nic := range nics {
		if nic.PrimaryPublicIPID() != "" {
			continue
		}
		log.Info("attaching public ip address", "public_ip", target.Address, "nic", nic.Name)
		if err := cl.SetPublicIP(ctx, nic.ID, target.ID); err != nil {
			return "", providerErr(err, "attaching public ip %q to %q", target.Address, nic.Name)
		}
		return target.Address, nil
	}

	if err := attachWithSecondaryInterface(ctx, cl, vm, nics[0], target); err != nil {
		return "", err
	}
	return target.Address, nil
}

// attachWithSecondaryInterface binds target to a new interface cloned from
// primary and attaches it to vm. When the VM does not accept the interface,
// the new interface is rolled back and target replaces the primary
// interface's address, which is deleted.
func attachWithSecondaryInterface(ctx context.Context, cl cloud.Cloud, vm cloud.VirtualMachine, primary cloud.NetworkInterface, target cloud.PublicIP) error {
	log := clog.FromContext(ctx).With(o11y.AttrInstanceID, vm.VMID, "vm", vm.Name)

	cfg, ok := primary.Primary()
	if !ok {
		return fmt.Errorf("%w: network interface %q has no primary ip configuration", ErrInvalidRequest, primary.Name)
	}

	nic, err := cl.CreateNetworkInterface(ctx, cloud.NetworkInterfaceSpec{
		Name:          naming.NetworkInterface(vm.Name),
		ResourceGroup: vm.ResourceGroup,
		Location:      vm.Location,
		Network:       cloud.NetworkRef{SubnetID: cfg.SubnetID, VirtualNetworkID: cfg.VirtualNetworkID},
		SecurityGroup: cloud.SecurityGroupRef{ExistingID: primary.SecurityGroupID},
		PublicIP:      cloud.PublicIPRef{ExistingID: target.ID},
		Tags:          maps.Clone(vm.Tags),
	})
	if err != nil {
		return providerErr(err, "creating secondary network interface for %q", vm.Name)
	}

	rollback := new(stack)
	rollback.Push(func(ctx context.Context) error {
		return cl.DeleteNetworkInterface(ctx, nic.ID)
	})
	rollback.Push(func(ctx context.Context) error {
		return cl.SetPublicIP(ctx, nic.ID, "")
	})

	log.Info("attaching secondary network interface", "nic", nic.Name, "public_ip", target.Address)
	attachErr := cl.AttachNetworkInterface(ctx, vm.ID, nic.ID)
	if attachErr == nil {
		return nil
	}

	log.Warn("secondary network interface rejected, replacing the primary public ip address", "nic", nic.Name, "error", attachErr)
	if err := rollback.Destroy(ctx); err != nil {
		return providerErr(errors.Join(attachErr, err), "rolling back secondary network interface %q", nic.Name)
	}

	// The target is bound before the old address is deleted, so the primary
	// interface is never left without a public ip.
	previous := primary.PrimaryPublicIPID()
	if err := cl.SetPublicIP(ctx, primary.ID, target.ID); err != nil {
		return providerErr(err, "attaching public ip %q to %q", target.Address, primary.Name)
	}
	if previous != "" && !strings.EqualFold(previous, target.ID) {
		if err := cl.DeletePublicIP(ctx, previous); err != nil {
			return providerErr(err, "deleting replaced public ip %q", previous)
		}
	}
	return nil
}

func removePublicIP(ctx context.Context, cl cloud.Cloud, vm cloud.VirtualMachine, desiredIP string) error {
	log := clog.FromContext(ctx).With(o11y.AttrInstanceID, vm.VMID, "vm", vm.Name)

	if desiredIP != "" {
		pips, err := cl.ListPublicIPs(ctx)
		if err != nil {
			return providerErr(err, "listing public ip addresses")
		}
		for _, pip := range pips {
			if pip.Address != desiredIP {
				continue
			}
			if pip.IPConfigurationID != "" {
				if err := detachPublicIP(ctx, cl, vm, pip); err != nil {
					return err
				}
			}
			log.Info("deleting public ip address", "public_ip", pip.Address)
			if err := cl.DeletePublicIP(ctx, pip.ID); err != nil {
				return providerErr(err, "deleting public ip %q", pip.Address)
			}
			return nil
		}
		log.Debug("requested public ip address not found, removing another one", "public_ip", desiredIP)
	}

	nics, err := networkInterfaces(ctx, cl, vm)
	if err != nil {
		return err
	}

	var victim *cloud.NetworkInterface
	for i, nic := range nics {
		if i > 0 && nic.PrimaryPublicIPID() != "" {
			victim = &nics[i]
			break
		}
	}
	if victim == nil && len(nics) > 0 && nics[0].PrimaryPublicIPID() != "" {
		victim = &nics[0]
	}
	if victim == nil {
		log.Debug("instance has no public ip address to remove")
		return nil
	}

	pipID := victim.PrimaryPublicIPID()
	log.Info("detaching public ip address", "nic", victim.Name, "public_ip", pipID)
	if err := cl.SetPublicIP(ctx, victim.ID, ""); err != nil {
		return providerErr(err, "detaching public ip %q from %q", pipID, victim.Name)
	}
	if err := cl.DeletePublicIP(ctx, pipID); err != nil {
		return providerErr(err, "deleting public ip %q", pipID)
	}
	return nil
}

// detachPublicIP unbinds pip from the interface of vm holding it. An address
// bound to an interface of another VM is refused.
func detachPublicIP(ctx context.Context, cl cloud.Cloud, vm cloud.VirtualMachine, pip cloud.PublicIP) error {
	nics, err := cl.ListNetworkInterfaces(ctx)
	if err != nil {
		return providerErr(err, "listing network interfaces")
	}
	for _, nic := range nics {
		if strings.EqualFold(nic.PrimaryPublicIPID(), pip.ID) {
			if !slices.ContainsFunc(vm.NetworkInterfaceIDs, func(id string) bool { return strings.EqualFold(id, nic.ID) }) {
				return fmt.Errorf("%w: public ip %q is not attached to instance %q", ErrInvalidRequest, pip.Address, vm.VMID)
			}
			if err := cl.SetPublicIP(ctx, nic.ID, ""); err != nil {
				return providerErr(err, "detaching public ip %q from %q", pip.Address, nic.Name)
			}
			return nil
		}
	}
	return nil
}

// networkInterfaces returns the interfaces of vm, primary first.
func networkInterfaces(ctx context.Context, cl cloud.Cloud, vm cloud.VirtualMachine) ([]cloud.NetworkInterface, error) {
	out := make([]cloud.NetworkInterface, 0, len(vm.NetworkInterfaceIDs))
	for _, id := range vm.NetworkInterfaceIDs {
		nic, err := cl.GetNetworkInterface(ctx, id)
		if err != nil {
			return nil, providerErr(err, "getting network interface %q", id)
		}
		out = append(out, *nic)
	}
	return out, nil
}
