package azure

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v6"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
)

const powerStatePrefix = "PowerState/"

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// wrapErr marks 404 responses as cloud.ErrNotFound.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", cloud.ErrNotFound, err)
	}
	return err
}

// parseID splits a resource ID into its resource group and name.
func parseID(id string) (rg, name string, err error) {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return "", "", fmt.Errorf("parsing resource id %q: %w", id, err)
	}
	return rid.ResourceGroupName, rid.Name, nil
}

// parentID returns the ID of the resource id is nested in, such as the
// virtual network of a subnet.
func parentID(id string) string {
	rid, err := arm.ParseResourceID(id)
	if err != nil || rid.Parent == nil {
		return ""
	}
	return rid.Parent.String()
}

func resourceGroupOf(id string) string {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return ""
	}
	return rid.ResourceGroupName
}

func toTags(in map[string]*string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = deref(v)
	}
	return out
}

func fromTags(in map[string]string) map[string]*string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]*string, len(in))
	for k, v := range in {
		out[k] = to.Ptr(v)
	}
	return out
}

func toImage(img *armcompute.Image) cloud.Image {
	out := cloud.Image{
		ID:            deref(img.ID),
		Name:          deref(img.Name),
		ResourceGroup: resourceGroupOf(deref(img.ID)),
		Location:      deref(img.Location),
	}
	if p := img.Properties; p != nil && p.StorageProfile != nil && p.StorageProfile.OSDisk != nil {
		out.OSType = cloud.OSType(deref(p.StorageProfile.OSDisk.OSType))
	}
	return out
}

func toVirtualMachine(vm *armcompute.VirtualMachine) cloud.VirtualMachine {
	out := cloud.VirtualMachine{
		ID:            deref(vm.ID),
		Name:          deref(vm.Name),
		ResourceGroup: resourceGroupOf(deref(vm.ID)),
		Location:      deref(vm.Location),
		Tags:          toTags(vm.Tags),
	}
	p := vm.Properties
	if p == nil {
		return out
	}
	out.VMID = deref(p.VMID)
	if p.HardwareProfile != nil {
		out.Size = string(deref(p.HardwareProfile.VMSize))
	}
	if p.StorageProfile != nil && p.StorageProfile.OSDisk != nil && p.StorageProfile.OSDisk.ManagedDisk != nil {
		out.OSDiskID = deref(p.StorageProfile.OSDisk.ManagedDisk.ID)
	}
	if p.NetworkProfile != nil {
		var primary string
		var rest []string
		for _, ref := range p.NetworkProfile.NetworkInterfaces {
			if ref == nil || ref.ID == nil {
				continue
			}
			if primary == "" && ref.Properties != nil && deref(ref.Properties.Primary) {
				primary = *ref.ID
				continue
			}
			rest = append(rest, *ref.ID)
		}
		if primary != "" {
			out.NetworkInterfaceIDs = append([]string{primary}, rest...)
		} else {
			out.NetworkInterfaceIDs = rest
		}
	}
	if p.InstanceView != nil {
		out.PowerState = powerState(p.InstanceView.Statuses)
	}
	return out
}

// powerState returns the "PowerState/..." status code, or the empty string.
func powerState(statuses []*armcompute.InstanceViewStatus) string {
	for _, s := range statuses {
		if s == nil {
			continue
		}
		if code := deref(s.Code); strings.HasPrefix(code, powerStatePrefix) {
			return code
		}
	}
	return ""
}

func toNetworkInterface(nic *armnetwork.Interface) cloud.NetworkInterface {
	out := cloud.NetworkInterface{
		ID:            deref(nic.ID),
		Name:          deref(nic.Name),
		ResourceGroup: resourceGroupOf(deref(nic.ID)),
		Location:      deref(nic.Location),
		Tags:          toTags(nic.Tags),
	}
	p := nic.Properties
	if p == nil {
		return out
	}
	if p.NetworkSecurityGroup != nil {
		out.SecurityGroupID = deref(p.NetworkSecurityGroup.ID)
	}
	if p.VirtualMachine != nil {
		out.VirtualMachineID = deref(p.VirtualMachine.ID)
	}
	for _, c := range p.IPConfigurations {
		if c == nil {
			continue
		}
		cfg := cloud.IPConfiguration{Name: deref(c.Name)}
		if cp := c.Properties; cp != nil {
			cfg.Primary = deref(cp.Primary)
			cfg.PrivateIP = deref(cp.PrivateIPAddress)
			if cp.Subnet != nil {
				cfg.SubnetID = deref(cp.Subnet.ID)
				cfg.VirtualNetworkID = parentID(cfg.SubnetID)
			}
			if cp.PublicIPAddress != nil {
				cfg.PublicIPID = deref(cp.PublicIPAddress.ID)
			}
		}
		out.IPConfigurations = append(out.IPConfigurations, cfg)
	}
	return out
}

func toVirtualNetwork(vnet *armnetwork.VirtualNetwork) cloud.VirtualNetwork {
	out := cloud.VirtualNetwork{
		ID:            deref(vnet.ID),
		Name:          deref(vnet.Name),
		ResourceGroup: resourceGroupOf(deref(vnet.ID)),
		Location:      deref(vnet.Location),
		Tags:          toTags(vnet.Tags),
	}
	if p := vnet.Properties; p != nil {
		if p.AddressSpace != nil {
			for _, prefix := range p.AddressSpace.AddressPrefixes {
				out.AddressSpace = append(out.AddressSpace, deref(prefix))
			}
		}
		for _, s := range p.Subnets {
			if s != nil && s.ID != nil {
				out.SubnetIDs = append(out.SubnetIDs, *s.ID)
			}
		}
	}
	return out
}

func toSecurityGroup(sg *armnetwork.SecurityGroup) cloud.SecurityGroup {
	return cloud.SecurityGroup{
		ID:            deref(sg.ID),
		Name:          deref(sg.Name),
		ResourceGroup: resourceGroupOf(deref(sg.ID)),
		Location:      deref(sg.Location),
		Tags:          toTags(sg.Tags),
	}
}

func toPublicIP(pip *armnetwork.PublicIPAddress) cloud.PublicIP {
	out := cloud.PublicIP{
		ID:            deref(pip.ID),
		Name:          deref(pip.Name),
		ResourceGroup: resourceGroupOf(deref(pip.ID)),
		Location:      deref(pip.Location),
		Tags:          toTags(pip.Tags),
	}
	if p := pip.Properties; p != nil {
		out.Address = deref(p.IPAddress)
		out.Static = deref(p.PublicIPAllocationMethod) == armnetwork.IPAllocationMethodStatic
		if p.IPConfiguration != nil {
			out.IPConfigurationID = deref(p.IPConfiguration.ID)
		}
	}
	return out
}

func toExtension(ext *armcompute.VirtualMachineExtension) cloud.Extension {
	out := cloud.Extension{Name: deref(ext.Name)}
	if p := ext.Properties; p != nil {
		out.Publisher = deref(p.Publisher)
		out.Type = deref(p.Type)
		out.Version = deref(p.TypeHandlerVersion)
		if s, ok := p.Settings.(map[string]any); ok {
			out.Settings = maps.Clone(s)
		}
	}
	return out
}

func fromExtension(location string, spec cloud.ExtensionSpec) armcompute.VirtualMachineExtension {
	return armcompute.VirtualMachineExtension{
		Location: to.Ptr(location),
		Properties: &armcompute.VirtualMachineExtensionProperties{
			Publisher:               to.Ptr(spec.Publisher),
			Type:                    to.Ptr(spec.Type),
			TypeHandlerVersion:      to.Ptr(spec.Version),
			AutoUpgradeMinorVersion: to.Ptr(spec.AutoUpgradeMinorVersion),
			Settings:                maps.Clone(spec.Settings),
		},
	}
}

// fromVirtualMachine builds the VM resource for spec, bound to the interface
// nicID.
func fromVirtualMachine(spec cloud.VirtualMachineSpec, nicID string) armcompute.VirtualMachine {
	os := &armcompute.OSProfile{
		ComputerName:  to.Ptr(spec.Name),
		AdminUsername: to.Ptr(spec.AdminUsername),
	}
	switch {
	case spec.OSType == cloud.OSTypeLinux && spec.SSHPublicKey != "":
		os.LinuxConfiguration = &armcompute.LinuxConfiguration{
			DisablePasswordAuthentication: to.Ptr(true),
			SSH: &armcompute.SSHConfiguration{
				PublicKeys: []*armcompute.SSHPublicKey{{
					Path:    to.Ptr(fmt.Sprintf("/home/%s/.ssh/authorized_keys", spec.AdminUsername)),
					KeyData: to.Ptr(spec.SSHPublicKey),
				}},
			},
		}
	case spec.OSType == cloud.OSTypeLinux:
		os.AdminPassword = to.Ptr(spec.AdminPassword)
		os.LinuxConfiguration = &armcompute.LinuxConfiguration{
			DisablePasswordAuthentication: to.Ptr(false),
		}
	default:
		os.AdminPassword = to.Ptr(spec.AdminPassword)
		os.WindowsConfiguration = &armcompute.WindowsConfiguration{
			ProvisionVMAgent: to.Ptr(true),
		}
	}

	return armcompute.VirtualMachine{
		Location: to.Ptr(spec.Location),
		Tags:     fromTags(spec.Tags),
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{
				VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(spec.Size)),
			},
			StorageProfile: &armcompute.StorageProfile{
				ImageReference: &armcompute.ImageReference{ID: to.Ptr(spec.ImageID)},
				OSDisk: &armcompute.OSDisk{
					Name:         to.Ptr(spec.OSDiskName),
					CreateOption: to.Ptr(armcompute.DiskCreateOptionTypesFromImage),
					ManagedDisk: &armcompute.ManagedDiskParameters{
						StorageAccountType: to.Ptr(armcompute.StorageAccountTypesStandardLRS),
					},
				},
			},
			OSProfile: os,
			NetworkProfile: &armcompute.NetworkProfile{
				NetworkInterfaces: []*armcompute.NetworkInterfaceReference{{
					ID:         to.Ptr(nicID),
					Properties: &armcompute.NetworkInterfaceReferenceProperties{Primary: to.Ptr(true)},
				}},
			},
		},
	}
}

func fromVirtualNetwork(spec cloud.VirtualNetworkSpec) armnetwork.VirtualNetwork {
	subnet := spec.SubnetName
	if subnet == "" {
		subnet = "default"
	}
	return armnetwork.VirtualNetwork{
		Location: to.Ptr(spec.Location),
		Tags:     fromTags(spec.Tags),
		Properties: &armnetwork.VirtualNetworkPropertiesFormat{
			AddressSpace: &armnetwork.AddressSpace{
				AddressPrefixes: []*string{to.Ptr(spec.AddressPrefix)},
			},
			Subnets: []*armnetwork.Subnet{{
				Name: to.Ptr(subnet),
				Properties: &armnetwork.SubnetPropertiesFormat{
					AddressPrefix: to.Ptr(spec.AddressPrefix),
				},
			}},
		},
	}
}

func fromSecurityGroup(spec cloud.SecurityGroupSpec) armnetwork.SecurityGroup {
	rules := make([]*armnetwork.SecurityRule, 0, len(spec.Rules))
	for _, r := range spec.Rules {
		proto := armnetwork.SecurityRuleProtocolTCP
		switch strings.ToLower(r.Protocol) {
		case "udp":
			proto = armnetwork.SecurityRuleProtocolUDP
		case "*", "any":
			proto = armnetwork.SecurityRuleProtocolAsterisk
		}
		rules = append(rules, &armnetwork.SecurityRule{
			Name: to.Ptr(r.Name),
			Properties: &armnetwork.SecurityRulePropertiesFormat{
				Access:                   to.Ptr(armnetwork.SecurityRuleAccessAllow),
				Direction:                to.Ptr(armnetwork.SecurityRuleDirectionInbound),
				Protocol:                 to.Ptr(proto),
				Priority:                 to.Ptr(r.Priority),
				SourceAddressPrefix:      to.Ptr("*"),
				SourcePortRange:          to.Ptr("*"),
				DestinationAddressPrefix: to.Ptr("*"),
				DestinationPortRange:     to.Ptr(r.Port),
			},
		})
	}
	return armnetwork.SecurityGroup{
		Location: to.Ptr(spec.Location),
		Tags:     fromTags(spec.Tags),
		Properties: &armnetwork.SecurityGroupPropertiesFormat{
			SecurityRules: rules,
		},
	}
}

// fromPublicIP builds the address resource for spec. Dynamic allocation
// requires the Basic SKU.
func fromPublicIP(spec cloud.PublicIPSpec) armnetwork.PublicIPAddress {
	method, sku := armnetwork.IPAllocationMethodStatic, armnetwork.PublicIPAddressSKUNameStandard
	if !spec.Static {
		method, sku = armnetwork.IPAllocationMethodDynamic, armnetwork.PublicIPAddressSKUNameBasic
	}
	return armnetwork.PublicIPAddress{
		Location: to.Ptr(spec.Location),
		Tags:     fromTags(spec.Tags),
		SKU:      &armnetwork.PublicIPAddressSKU{Name: to.Ptr(sku)},
		Properties: &armnetwork.PublicIPAddressPropertiesFormat{
			PublicIPAllocationMethod: to.Ptr(method),
			PublicIPAddressVersion:   to.Ptr(armnetwork.IPVersionIPv4),
		},
	}
}

// fromNetworkInterface builds an interface in subnetID with one primary IP
// configuration.
func fromNetworkInterface(spec cloud.NetworkInterfaceSpec, subnetID, sgID, pipID string) armnetwork.Interface {
	cfg := &armnetwork.InterfaceIPConfigurationPropertiesFormat{
		Primary:                   to.Ptr(true),
		Subnet:                    &armnetwork.Subnet{ID: to.Ptr(subnetID)},
		PrivateIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodDynamic),
	}
	if pipID != "" {
		cfg.PublicIPAddress = &armnetwork.PublicIPAddress{ID: to.Ptr(pipID)}
	}
	props := &armnetwork.InterfacePropertiesFormat{
		IPConfigurations: []*armnetwork.InterfaceIPConfiguration{{
			Name:       to.Ptr("ipconfig1"),
			Properties: cfg,
		}},
	}
	if sgID != "" {
		props.NetworkSecurityGroup = &armnetwork.SecurityGroup{ID: to.Ptr(sgID)}
	}
	return armnetwork.Interface{
		Location:   to.Ptr(spec.Location),
		Tags:       fromTags(spec.Tags),
		Properties: props,
	}
}
