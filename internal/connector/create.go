package connector

import (
	"context"
	"fmt"
	"maps"

	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/naming"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/o11y"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/tags"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"go.opentelemetry.io/otel/attribute"
)

// CreateInstance provisions instance.Number replicas (at least one) of the
// requested instance in a single batch. Every identifier in the request is
// resolved before the first remote write; a failure past that point is
// returned as is and may leave partially created resources behind.
func (c *Connector) CreateInstance(ctx context.Context, infra types.Infrastructure, instance types.Instance) (_ []types.Instance, err error) {
	ctx, span := o11y.Start(ctx, "connector.CreateInstance",
		attribute.String(o11y.AttrInfrastructureID, infra.ID),
		attribute.String(o11y.AttrInstanceTag, instance.Tag))
	defer o11y.End(span, &err)

	if err := validateCreate(instance); err != nil {
		return nil, err
	}

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return nil, err
	}

	log := clog.FromContext(ctx).With(o11y.AttrInfrastructureID, infra.ID, o11y.AttrInstanceTag, instance.Tag)

	opts := instance.Options
	if opts == nil {
		opts = &types.Options{}
	}

	image, err := findImage(ctx, cl, instance.Image)
	if err != nil {
		return nil, err
	}

	rgName := opts.ResourceGroup
	if rgName == "" {
		rgName = image.ResourceGroup
	}
	rg, err := cl.GetResourceGroup(ctx, rgName)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %q", ErrResourceGroupNotFound, rgName)
	} else if err != nil {
		return nil, providerErr(err, "getting resource group %q", rgName)
	}

	location := image.Location
	if opts.Region != "" {
		location, err = cl.ResolveRegion(ctx, opts.Region)
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: unknown region %q", ErrInvalidRequest, opts.Region)
		} else if err != nil {
			return nil, providerErr(err, "resolving region %q", opts.Region)
		}
	}

	resourceTags := tags.Map(c.tags.Collect(infra.ID, opts))

	plan, err := c.composeNetwork(ctx, cl, instance.Tag, opts, rg.Name, location, resourceTags)
	if err != nil {
		return nil, err
	}

	access, err := c.loginFor(image, instance.Credentials)
	if err != nil {
		return nil, err
	}

	size := instance.Hardware.Type
	if size == "" {
		size = c.cfg.DefaultVMSize
	}

	count := max(instance.Number, 1)
	specs := make([]cloud.VirtualMachineSpec, 0, count)
	for n := 1; n <= count; n++ {
		name := naming.Replica(instance.Tag, n)
		spec := cloud.VirtualMachineSpec{
			Name:             name,
			ResourceGroup:    rg.Name,
			Location:         location,
			ImageID:          image.ID,
			OSType:           image.OSType,
			Size:             size,
			OSDiskName:       naming.OSDisk(name),
			AdminUsername:    access.username,
			AdminPassword:    access.password,
			SSHPublicKey:     access.publicKey,
			NetworkInterface: plan.networkInterface(name, n),
			Tags:             maps.Clone(resourceTags),
		}
		if len(instance.InitScript) > 0 {
			spec.Extensions = []cloud.ExtensionSpec{
				scriptExtension(naming.Extension(name), joinScripts(instance.InitScript)),
			}
		}
		specs = append(specs, spec)
	}

	log.Info("creating virtual machines", "count", count, "image", image.Name, "resource_group", rg.Name, "location", location, "size", size)
	vms, err := cl.CreateVirtualMachines(ctx, specs)
	if err != nil {
		return nil, providerErr(err, "creating %d virtual machine(s) tagged %q", count, instance.Tag)
	}

	nics, addresses, err := addressBook(ctx, cl)
	if err != nil {
		// The VMs exist; report them without addresses.
		log.Warn("failed to read back addresses of created virtual machines", "error", err)
	}

	out := make([]types.Instance, 0, len(vms))
	for _, vm := range vms {
		log.Info("created virtual machine", "name", vm.Name, o11y.AttrInstanceID, vm.VMID)
		inst := toInstance(vm, nics, addresses)
		inst.Image = instance.Image
		inst.InitScript = instance.InitScript
		inst.Options = instance.Options
		out = append(out, inst)
	}
	return out, nil
}

func validateCreate(instance types.Instance) error {
	if instance.Tag == "" {
		return fmt.Errorf("%w: tag is required", ErrInvalidRequest)
	}
	if instance.Image == "" {
		return fmt.Errorf("%w: image is required", ErrInvalidRequest)
	}
	if instance.Number < 0 {
		return fmt.Errorf("%w: number must not be negative, got %d", ErrInvalidRequest, instance.Number)
	}
	return nil
}

// findImage returns the image named ref, or failing that the image whose ID
// is ref.
func findImage(ctx context.Context, cl cloud.Cloud, ref string) (cloud.Image, error) {
	images, err := cl.ListImages(ctx)
	if err != nil {
		return cloud.Image{}, providerErr(err, "listing images")
	}
	for _, img := range images {
		if img.Name == ref {
			return img, nil
		}
	}
	for _, img := range images {
		if img.ID == ref {
			return img, nil
		}
	}
	return cloud.Image{}, fmt.Errorf("%w: %q", ErrImageNotFound, ref)
}

type osAccess struct {
	username  string
	password  string
	publicKey string
}

// loginFor picks the login configuration for the image's operating system.
// Linux prefers an SSH public key over a password; Windows only takes a
// password.
func (c *Connector) loginFor(image cloud.Image, creds *types.Credentials) (osAccess, error) {
	if creds == nil {
		creds = &types.Credentials{}
	}
	a := osAccess{
		username: creds.Username,
		password: creds.Password,
	}
	if a.username == "" {
		a.username = c.cfg.DefaultUsername
	}

	switch image.OSType {
	case cloud.OSTypeLinux:
		if creds.PublicKey != "" {
			return osAccess{username: a.username, publicKey: creds.PublicKey}, nil
		}
	case cloud.OSTypeWindows:
	default:
		return osAccess{}, fmt.Errorf("%w: image %q has operating system %q", ErrUnsupportedOperatingSystem, image.Name, image.OSType)
	}

	if a.password == "" {
		a.password = c.cfg.DefaultPassword
	}
	if a.password == "" {
		return osAccess{}, fmt.Errorf("%w: image %q requires a password, none given and no default configured", ErrInvalidRequest, image.Name)
	}
	return a, nil
}
