package types

const ProviderName = "iaas"

// InfrastructureTypeAzure is the only infrastructure type currently served.
const InfrastructureTypeAzure = "azure"

// Infrastructure identifies the cloud account a request is executed against.
// Every connector operation is scoped to exactly one infrastructure.
type Infrastructure struct {
	ID    string
	Type  string
	Azure AzureCredentials
}

// AzureCredentials holds what is needed to authenticate against Azure
// Resource Manager. When ClientID and ClientSecret are empty the default
// credential chain (environment, workload identity, managed identity, CLI) is
// used instead.
type AzureCredentials struct {
	SubscriptionID string
	TenantID       string
	ClientID       string
	ClientSecret   string
	// Environment selects the Azure cloud: "public" (default), "china" or
	// "usgovernment".
	Environment string
}

// Instance is both the request and the result shape of a provisioning call.
// As a request, Tag and Image are required and Number is the replica count
// (0 means 1). As a result, ID is the provider-assigned VM identifier, Tag
// the final VM name and Number is always 1.
type Instance struct {
	ID          string
	Tag         string
	Number      int
	Image       string
	Hardware    Hardware
	Network     Network
	Status      string
	Credentials *Credentials
	InitScript  []string
	Options     *Options
}

type Hardware struct {
	// Type is the provider VM size, e.g. "Standard_D1_v2".
	Type string
}

type Network struct {
	PublicAddresses  []string
	PrivateAddresses []string
}

type Credentials struct {
	Username  string
	Password  string
	PublicKey string
}

// Options carries the optional provider-specific knobs of a create request.
type Options struct {
	ResourceGroup      string
	Region             string
	SubnetID           string
	PrivateNetworkCIDR string
	SecurityGroupNames []string
	PublicIPAddress    string
	// StaticPublicIP defaults to true when nil.
	StaticPublicIP *bool
	Tags           []Tag
}

type Tag struct {
	Key   string
	Value string
}

// ScriptResult is returned once per submitted script. Output and Error are
// always empty: the extension mechanism does not surface them.
type ScriptResult struct {
	InstanceID string
	Output     string
	Error      string
}

type Image struct {
	ID       string
	Name     string
	Location string
	OSType   string
}
