// Package cloud defines the provider API surface the connector composes
// instances from. Implementations live in subpackages: azure talks to Azure
// Resource Manager, fake keeps everything in memory for tests.
//
// Resources are identified by their full provider resource ID. Creation takes
// plain spec structs; a spec may reference either an existing resource by ID
// or describe a new one, and the existing reference always wins.
package cloud

import (
	"context"
	"fmt"
)

var ErrNotFound = fmt.Errorf("resource not found")

// Cloud is the set of remote operations the connector needs from a provider.
// Implementations must be safe for concurrent use.
type Cloud interface {
	ListImages(ctx context.Context) ([]Image, error)
	GetResourceGroup(ctx context.Context, name string) (*ResourceGroup, error)
	// ResolveRegion maps a region display label ("West Europe") or name
	// ("westeurope") to the provider region name.
	ResolveRegion(ctx context.Context, labelOrName string) (string, error)

	ListVirtualMachines(ctx context.Context) ([]VirtualMachine, error)
	// CreateVirtualMachines creates every VM of the batch along with the
	// dependent resources their specs describe. Dependent resources shared by
	// several specs (same name) are created once.
	CreateVirtualMachines(ctx context.Context, specs []VirtualMachineSpec) ([]VirtualMachine, error)
	DeleteVirtualMachine(ctx context.Context, id string) error
	// AttachNetworkInterface adds nicID to the VM as a secondary interface.
	AttachNetworkInterface(ctx context.Context, vmID, nicID string) error

	ListNetworkInterfaces(ctx context.Context) ([]NetworkInterface, error)
	GetNetworkInterface(ctx context.Context, id string) (*NetworkInterface, error)
	CreateNetworkInterface(ctx context.Context, spec NetworkInterfaceSpec) (*NetworkInterface, error)
	// SetPublicIP binds publicIPID to the primary IP configuration of the
	// interface. An empty publicIPID detaches the current address.
	SetPublicIP(ctx context.Context, nicID, publicIPID string) error
	DeleteNetworkInterface(ctx context.Context, id string) error

	ListVirtualNetworks(ctx context.Context) ([]VirtualNetwork, error)
	DeleteVirtualNetwork(ctx context.Context, id string) error

	ListSecurityGroups(ctx context.Context) ([]SecurityGroup, error)
	DeleteSecurityGroup(ctx context.Context, id string) error

	ListPublicIPs(ctx context.Context) ([]PublicIP, error)
	CreatePublicIP(ctx context.Context, spec PublicIPSpec) (*PublicIP, error)
	DeletePublicIP(ctx context.Context, id string) error

	DeleteDisk(ctx context.Context, id string) error

	ListExtensions(ctx context.Context, vmID string) ([]Extension, error)
	// PutExtension creates the extension or updates it in place, which makes
	// the provider run it again when its settings changed.
	PutExtension(ctx context.Context, vmID string, spec ExtensionSpec) error
}

type OSType string

const (
	OSTypeLinux   OSType = "Linux"
	OSTypeWindows OSType = "Windows"
)

type Image struct {
	ID            string
	Name          string
	ResourceGroup string
	Location      string
	OSType        OSType
}

type ResourceGroup struct {
	ID       string
	Name     string
	Location string
}

type VirtualMachine struct {
	// ID is the provider resource ID.
	ID string
	// VMID is the provider-assigned unique VM identifier, which is what the
	// connector exposes as the instance ID.
	VMID          string
	Name          string
	ResourceGroup string
	Location      string
	Size          string
	PowerState    string
	Tags          map[string]string
	// NetworkInterfaceIDs lists the attached interfaces, primary first.
	NetworkInterfaceIDs []string
	OSDiskID            string
}

// PrimaryNetworkInterfaceID returns the ID of the VM's primary interface, or
// the empty string when the VM has none.
func (vm VirtualMachine) PrimaryNetworkInterfaceID() string {
	if len(vm.NetworkInterfaceIDs) == 0 {
		return ""
	}
	return vm.NetworkInterfaceIDs[0]
}

type NetworkInterface struct {
	ID               string
	Name             string
	ResourceGroup    string
	Location         string
	SecurityGroupID  string
	VirtualMachineID string
	IPConfigurations []IPConfiguration
	Tags             map[string]string
}

type IPConfiguration struct {
	Name             string
	Primary          bool
	SubnetID         string
	VirtualNetworkID string
	PrivateIP        string
	PublicIPID       string
}

// Primary returns the primary IP configuration of the interface. A
// single-configuration interface treats its only configuration as primary.
func (n NetworkInterface) Primary() (IPConfiguration, bool) {
	for _, c := range n.IPConfigurations {
		if c.Primary {
			return c, true
		}
	}
	if len(n.IPConfigurations) == 1 {
		return n.IPConfigurations[0], true
	}
	return IPConfiguration{}, false
}

// PrimaryPublicIPID returns the public IP bound to the primary configuration.
func (n NetworkInterface) PrimaryPublicIPID() string {
	c, ok := n.Primary()
	if !ok {
		return ""
	}
	return c.PublicIPID
}

type VirtualNetwork struct {
	ID            string
	Name          string
	ResourceGroup string
	Location      string
	AddressSpace  []string
	SubnetIDs     []string
	Tags          map[string]string
}

type SecurityGroup struct {
	ID            string
	Name          string
	ResourceGroup string
	Location      string
	Tags          map[string]string
}

type PublicIP struct {
	ID            string
	Name          string
	ResourceGroup string
	Location      string
	Address       string
	Static        bool
	// IPConfigurationID is the configuration the address is bound to, empty
	// when idle.
	IPConfigurationID string
	Tags              map[string]string
}

type Extension struct {
	Name      string
	Publisher string
	Type      string
	Version   string
	Settings  map[string]any
}

type ExtensionSpec struct {
	Name                    string
	Publisher               string
	Type                    string
	Version                 string
	AutoUpgradeMinorVersion bool
	Settings                map[string]any
}
