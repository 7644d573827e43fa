package azure

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"golang.org/x/sync/errgroup"
)

func (c *Client) ListImages(ctx context.Context) ([]cloud.Image, error) {
	var out []cloud.Image
	pager := c.images.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(err)
		}
		for _, img := range page.Value {
			if img != nil {
				out = append(out, toImage(img))
			}
		}
	}
	return out, nil
}

func (c *Client) GetResourceGroup(ctx context.Context, name string) (*cloud.ResourceGroup, error) {
	resp, err := c.groups.Get(ctx, name, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &cloud.ResourceGroup{
		ID:       deref(resp.ID),
		Name:     deref(resp.Name),
		Location: deref(resp.Location),
	}, nil
}

func (c *Client) ResolveRegion(ctx context.Context, labelOrName string) (string, error) {
	pager := c.locations.NewListLocationsPager(c.subscriptionID, &armsubscriptions.ClientListLocationsOptions{})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return "", wrapErr(err)
		}
		for _, loc := range page.Value {
			if loc == nil {
				continue
			}
			if strings.EqualFold(deref(loc.Name), labelOrName) || strings.EqualFold(deref(loc.DisplayName), labelOrName) {
				return deref(loc.Name), nil
			}
		}
	}
	return "", fmt.Errorf("%w: region %q", cloud.ErrNotFound, labelOrName)
}

func (c *Client) ListVirtualMachines(ctx context.Context) ([]cloud.VirtualMachine, error) {
	var out []cloud.VirtualMachine
	// statusOnly populates the instance view, and with it the power state.
	pager := c.vms.NewListAllPager(&armcompute.VirtualMachinesClientListAllOptions{StatusOnly: to.Ptr("true")})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(err)
		}
		for _, vm := range page.Value {
			if vm != nil {
				out = append(out, toVirtualMachine(vm))
			}
		}
	}
	return out, nil
}

// CreateVirtualMachines creates the shared networks and security groups of
// the batch first, then every VM with its interface and public IP in
// parallel.
func (c *Client) CreateVirtualMachines(ctx context.Context, specs []cloud.VirtualMachineSpec) ([]cloud.VirtualMachine, error) {
	shared := newSharedResources(c)
	for _, spec := range specs {
		if _, err := shared.subnet(ctx, spec.NetworkInterface.Network); err != nil {
			return nil, err
		}
		if _, err := shared.securityGroup(ctx, spec.NetworkInterface.SecurityGroup); err != nil {
			return nil, err
		}
	}

	out := make([]cloud.VirtualMachine, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(createConcurrency)
	for i, spec := range specs {
		g.Go(func() error {
			vm, err := c.createVirtualMachine(gctx, shared, spec)
			if err != nil {
				return fmt.Errorf("creating virtual machine %q: %w", spec.Name, err)
			}
			out[i] = vm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) createVirtualMachine(ctx context.Context, shared *sharedResources, spec cloud.VirtualMachineSpec) (cloud.VirtualMachine, error) {
	log := clog.FromContext(ctx).With("vm", spec.Name, "resource_group", spec.ResourceGroup)

	nic, err := c.createNetworkInterface(ctx, shared, spec.NetworkInterface)
	if err != nil {
		return cloud.VirtualMachine{}, err
	}

	log.Info("creating virtual machine", "size", spec.Size)
	poller, err := c.vms.BeginCreateOrUpdate(ctx, spec.ResourceGroup, spec.Name, fromVirtualMachine(spec, nic.ID), nil)
	if err != nil {
		return cloud.VirtualMachine{}, wrapErr(err)
	}
	resp, err := poller.PollUntilDone(ctx, c.poll)
	if err != nil {
		return cloud.VirtualMachine{}, wrapErr(err)
	}

	for _, ext := range spec.Extensions {
		if err := c.PutExtension(ctx, deref(resp.ID), ext); err != nil {
			return cloud.VirtualMachine{}, fmt.Errorf("installing extension %q: %w", ext.Name, err)
		}
	}

	// Re-read for the instance view, which the create response lacks.
	got, err := c.vms.Get(ctx, spec.ResourceGroup, spec.Name, &armcompute.VirtualMachinesClientGetOptions{
		Expand: to.Ptr(armcompute.InstanceViewTypesInstanceView),
	})
	if err != nil {
		log.Warn("failed to read back virtual machine", "error", err)
		return toVirtualMachine(&resp.VirtualMachine), nil
	}
	return toVirtualMachine(&got.VirtualMachine), nil
}

func (c *Client) DeleteVirtualMachine(ctx context.Context, id string) error {
	rg, name, err := parseID(id)
	if err != nil {
		return err
	}
	poller, err := c.vms.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return wrapErr(err)
	}
	_, err = poller.PollUntilDone(ctx, c.poll)
	return wrapErr(err)
}

// AttachNetworkInterface adds nicID to the VM's network profile. Azure
// rejects this for running VMs of sizes limited to one interface.
func (c *Client) AttachNetworkInterface(ctx context.Context, vmID, nicID string) error {
	rg, name, err := parseID(vmID)
	if err != nil {
		return err
	}
	resp, err := c.vms.Get(ctx, rg, name, nil)
	if err != nil {
		return wrapErr(err)
	}
	vm := resp.VirtualMachine
	if vm.Properties == nil || vm.Properties.NetworkProfile == nil {
		return fmt.Errorf("virtual machine %q has no network profile", name)
	}
	refs := slices.DeleteFunc(vm.Properties.NetworkProfile.NetworkInterfaces, func(r *armcompute.NetworkInterfaceReference) bool {
		return r == nil
	})
	// Azure requires an explicit primary once there are several.
	if len(refs) > 0 && !anyPrimary(refs) {
		if refs[0].Properties == nil {
			refs[0].Properties = &armcompute.NetworkInterfaceReferenceProperties{}
		}
		refs[0].Properties.Primary = to.Ptr(true)
	}
	vm.Properties.NetworkProfile.NetworkInterfaces = append(refs, &armcompute.NetworkInterfaceReference{
		ID:         to.Ptr(nicID),
		Properties: &armcompute.NetworkInterfaceReferenceProperties{Primary: to.Ptr(false)},
	})

	poller, err := c.vms.BeginCreateOrUpdate(ctx, rg, name, vm, nil)
	if err != nil {
		return wrapErr(err)
	}
	_, err = poller.PollUntilDone(ctx, c.poll)
	return wrapErr(err)
}

func anyPrimary(refs []*armcompute.NetworkInterfaceReference) bool {
	for _, ref := range refs {
		if ref.Properties != nil && deref(ref.Properties.Primary) {
			return true
		}
	}
	return false
}

func (c *Client) DeleteDisk(ctx context.Context, id string) error {
	rg, name, err := parseID(id)
	if err != nil {
		return err
	}
	poller, err := c.disks.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return wrapErr(err)
	}
	_, err = poller.PollUntilDone(ctx, c.poll)
	return wrapErr(err)
}

func (c *Client) ListExtensions(ctx context.Context, vmID string) ([]cloud.Extension, error) {
	rg, name, err := parseID(vmID)
	if err != nil {
		return nil, err
	}
	resp, err := c.extensions.List(ctx, rg, name, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]cloud.Extension, 0, len(resp.Value))
	for _, ext := range resp.Value {
		if ext != nil {
			out = append(out, toExtension(ext))
		}
	}
	return out, nil
}

func (c *Client) PutExtension(ctx context.Context, vmID string, spec cloud.ExtensionSpec) error {
	rg, name, err := parseID(vmID)
	if err != nil {
		return err
	}
	vm, err := c.vms.Get(ctx, rg, name, nil)
	if err != nil {
		return wrapErr(err)
	}

	clog.FromContext(ctx).Info("putting vm extension", "vm", name, "extension", spec.Name)
	poller, err := c.extensions.BeginCreateOrUpdate(ctx, rg, name, spec.Name, fromExtension(deref(vm.Location), spec), nil)
	if err != nil {
		return wrapErr(err)
	}
	_, err = poller.PollUntilDone(ctx, c.poll)
	return wrapErr(err)
}
