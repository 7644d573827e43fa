// Package azure implements cloud.Cloud on top of Azure Resource Manager.
package azure

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	azcloud "github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
)

const (
	pollFrequency = 10 * time.Second
	// createConcurrency bounds the VMs of one batch created at once.
	createConcurrency = 8
)

var _ cloud.Cloud = &Client{}

// Client talks to one Azure subscription.
type Client struct {
	subscriptionID string

	groups    *armresources.ResourceGroupsClient
	locations *armsubscriptions.Client

	images     *armcompute.ImagesClient
	vms        *armcompute.VirtualMachinesClient
	disks      *armcompute.DisksClient
	extensions *armcompute.VirtualMachineExtensionsClient

	interfaces *armnetwork.InterfacesClient
	networks   *armnetwork.VirtualNetworksClient
	sgs        *armnetwork.SecurityGroupsClient
	pips       *armnetwork.PublicIPAddressesClient

	poll *runtime.PollUntilDoneOptions
}

// New builds a client for the subscription in creds. A client secret selects
// service principal authentication, otherwise the default credential chain
// is used.
func New(ctx context.Context, creds types.AzureCredentials) (*Client, error) {
	if creds.SubscriptionID == "" {
		return nil, fmt.Errorf("azure subscription id is required")
	}

	cfg, err := cloudConfig(creds.Environment)
	if err != nil {
		return nil, err
	}
	copts := policy.ClientOptions{Cloud: cfg}

	cred, err := credential(ctx, creds, copts)
	if err != nil {
		return nil, err
	}
	opts := &arm.ClientOptions{ClientOptions: copts}

	rf, err := armresources.NewClientFactory(creds.SubscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("creating resources client: %w", err)
	}
	sc, err := armsubscriptions.NewClient(cred, opts)
	if err != nil {
		return nil, fmt.Errorf("creating subscriptions client: %w", err)
	}
	cf, err := armcompute.NewClientFactory(creds.SubscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("creating compute client: %w", err)
	}
	nf, err := armnetwork.NewClientFactory(creds.SubscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("creating network client: %w", err)
	}

	return &Client{
		subscriptionID: creds.SubscriptionID,
		groups:         rf.NewResourceGroupsClient(),
		locations:      sc,
		images:         cf.NewImagesClient(),
		vms:            cf.NewVirtualMachinesClient(),
		disks:          cf.NewDisksClient(),
		extensions:     cf.NewVirtualMachineExtensionsClient(),
		interfaces:     nf.NewInterfacesClient(),
		networks:       nf.NewVirtualNetworksClient(),
		sgs:            nf.NewSecurityGroupsClient(),
		pips:           nf.NewPublicIPAddressesClient(),
		poll:           &runtime.PollUntilDoneOptions{Frequency: pollFrequency},
	}, nil
}

func credential(ctx context.Context, creds types.AzureCredentials, opts policy.ClientOptions) (azcore.TokenCredential, error) {
	log := clog.FromContext(ctx)

	if creds.ClientSecret != "" {
		if creds.TenantID == "" || creds.ClientID == "" {
			return nil, fmt.Errorf("azure tenant id and client id are required with a client secret")
		}
		log.Debug("using azure service principal credentials", "client_id", creds.ClientID)
		cred, err := azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret,
			&azidentity.ClientSecretCredentialOptions{ClientOptions: opts})
		if err != nil {
			return nil, fmt.Errorf("unable to obtain Azure credentials: %w", err)
		}
		return cred, nil
	}

	log.Debug("using default azure credential chain")
	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		ClientOptions: opts,
		TenantID:      creds.TenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to obtain Azure credentials: %w", err)
	}
	return cred, nil
}

// cloudConfig maps an environment name to the Azure cloud it designates.
func cloudConfig(env string) (azcloud.Configuration, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "public", "azurepublic", "azurepubliccloud", "azurecloud":
		return azcloud.AzurePublic, nil
	case "china", "azurechina", "azurechinacloud":
		return azcloud.AzureChina, nil
	case "usgovernment", "azuregovernment", "azureusgovernment", "azureusgovernmentcloud":
		return azcloud.AzureGovernment, nil
	}
	return azcloud.Configuration{}, fmt.Errorf("unknown azure environment %q", env)
}

// Factory builds the client of an infrastructure.
type Factory func(ctx context.Context, creds types.AzureCredentials) (cloud.Cloud, error)

// Resolver lazily builds and caches one client per infrastructure ID.
type Resolver struct {
	mu      sync.RWMutex
	clients map[string]cloud.Cloud
	create  Factory
}

var _ cloud.Resolver = &Resolver{}

// NewResolver returns a resolver building clients with create, or with New
// when create is nil.
func NewResolver(create Factory) *Resolver {
	if create == nil {
		create = func(ctx context.Context, creds types.AzureCredentials) (cloud.Cloud, error) {
			return New(ctx, creds)
		}
	}
	return &Resolver{
		clients: make(map[string]cloud.Cloud),
		create:  create,
	}
}

func (r *Resolver) Cloud(ctx context.Context, infra types.Infrastructure) (cloud.Cloud, error) {
	if infra.Type != "" && infra.Type != types.InfrastructureTypeAzure {
		return nil, fmt.Errorf("unsupported infrastructure type %q", infra.Type)
	}

	r.mu.RLock()
	cl, ok := r.clients[infra.ID]
	r.mu.RUnlock()
	if ok {
		return cl, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cl, ok := r.clients[infra.ID]; ok {
		return cl, nil
	}

	clog.FromContext(ctx).Info("creating azure client", "infrastructure_id", infra.ID, "subscription_id", infra.Azure.SubscriptionID)
	cl, err := r.create(ctx, infra.Azure)
	if err != nil {
		return nil, err
	}
	r.clients[infra.ID] = cl
	return cl, nil
}

func (r *Resolver) Forget(infrastructureID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, infrastructureID)
}
