package cloud

type VirtualMachineSpec struct {
	Name          string
	ResourceGroup string
	Location      string
	ImageID       string
	OSType        OSType
	Size          string
	OSDiskName    string

	AdminUsername string
	// AdminPassword is ignored when SSHPublicKey is set on Linux.
	AdminPassword string
	SSHPublicKey  string

	NetworkInterface NetworkInterfaceSpec
	Extensions       []ExtensionSpec
	Tags             map[string]string
}

type NetworkInterfaceSpec struct {
	Name          string
	ResourceGroup string
	Location      string
	Network       NetworkRef
	SecurityGroup SecurityGroupRef
	PublicIP      PublicIPRef
	Tags          map[string]string
}

// NetworkRef selects the subnet an interface lands in. Precedence is
// SubnetID, then the first subnet of VirtualNetworkID, then New.
type NetworkRef struct {
	SubnetID         string
	VirtualNetworkID string
	New              *VirtualNetworkSpec
}

// SecurityGroupRef selects the security group of an interface. ExistingID
// wins over New; both empty means no security group.
type SecurityGroupRef struct {
	ExistingID string
	New        *SecurityGroupSpec
}

// PublicIPRef selects the public IP of an interface. ExistingID wins over
// New; both empty means no public IP.
type PublicIPRef struct {
	ExistingID string
	New        *PublicIPSpec
}

type VirtualNetworkSpec struct {
	Name          string
	ResourceGroup string
	Location      string
	AddressPrefix string
	SubnetName    string
	Tags          map[string]string
}

type SecurityGroupSpec struct {
	Name          string
	ResourceGroup string
	Location      string
	Rules         []SecurityRule
	Tags          map[string]string
}

type SecurityRule struct {
	Name     string
	Priority int32
	Port     string
	Protocol string
}

type PublicIPSpec struct {
	Name          string
	ResourceGroup string
	Location      string
	Static        bool
	Tags          map[string]string
}
