package provider

import (
	"context"
	"log/slog"
	"os"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud/azure"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/connector"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/log"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/tags"
	itypes "github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

var _ provider.Provider = &IaasProvider{}

// IaasProvider defines the provider implementation.
type IaasProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and ran locally, and "test" when running acceptance
	// testing.
	version string

	// resolver overrides the Azure client resolver. Only set in tests.
	resolver cloud.Resolver

	// store is the last configured store, closed when the provider is
	// configured again.
	store *ProviderStore
}

// IaasProviderModel describes the provider data model.
type IaasProviderModel struct {
	InfrastructureID types.String           `tfsdk:"infrastructure_id"`
	Azure            *ProviderAzureModel    `tfsdk:"azure"`
	Tags             *ProviderTagsModel     `tfsdk:"tags"`
	Defaults         *ProviderDefaultsModel `tfsdk:"defaults"`
	Log              *ProviderLoggerModel   `tfsdk:"log"`
}

type ProviderAzureModel struct {
	SubscriptionID types.String `tfsdk:"subscription_id"`
	TenantID       types.String `tfsdk:"tenant_id"`
	ClientID       types.String `tfsdk:"client_id"`
	ClientSecret   types.String `tfsdk:"client_secret"`
	Environment    types.String `tfsdk:"environment"`
}

type ProviderTagsModel struct {
	ConnectorKey      types.String `tfsdk:"connector_key"`
	ConnectorValue    types.String `tfsdk:"connector_value"`
	InfrastructureKey types.String `tfsdk:"infrastructure_key"`
}

type ProviderDefaultsModel struct {
	Username           types.String `tfsdk:"username"`
	Password           types.String `tfsdk:"password"`
	VMSize             types.String `tfsdk:"vm_size"`
	PrivateNetworkCIDR types.String `tfsdk:"private_network_cidr"`
}

type ProviderLoggerModel struct {
	File *ProviderLoggerFileModel `tfsdk:"file"`
}

type ProviderLoggerFileModel struct {
	Directory types.String `tfsdk:"directory"`
}

func (p *IaasProvider) Metadata(ctx context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = itypes.ProviderName
	resp.Version = p.version
}

func (p *IaasProvider) Schema(ctx context.Context, req provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Provisions and tears down virtual machines on Azure.",
		Attributes: map[string]schema.Attribute{
			"infrastructure_id": schema.StringAttribute{
				Description: "The identifier every resource created through this provider is tagged with. Defaults to $IAAS_INFRASTRUCTURE_ID.",
				Optional:    true,
			},
			"azure": schema.SingleNestedAttribute{
				Description: "Azure Resource Manager credentials. Unset values fall back to the AZURE_* environment variables, then to the default credential chain.",
				Optional:    true,
				Attributes: map[string]schema.Attribute{
					"subscription_id": schema.StringAttribute{
						Optional: true,
					},
					"tenant_id": schema.StringAttribute{
						Optional: true,
					},
					"client_id": schema.StringAttribute{
						Optional: true,
					},
					"client_secret": schema.StringAttribute{
						Optional:  true,
						Sensitive: true,
					},
					"environment": schema.StringAttribute{
						Description: "The Azure cloud (public|china|usgovernment).",
						Optional:    true,
					},
				},
			},
			"tags": schema.SingleNestedAttribute{
				Description: "Overrides of the mandatory tags applied to every created resource.",
				Optional:    true,
				Attributes: map[string]schema.Attribute{
					"connector_key": schema.StringAttribute{
						Optional: true,
					},
					"connector_value": schema.StringAttribute{
						Optional: true,
					},
					"infrastructure_key": schema.StringAttribute{
						Optional: true,
					},
				},
			},
			"defaults": schema.SingleNestedAttribute{
				Description: "Values used when an instance leaves the corresponding field empty.",
				Optional:    true,
				Attributes: map[string]schema.Attribute{
					"username": schema.StringAttribute{
						Optional: true,
					},
					"password": schema.StringAttribute{
						Optional:  true,
						Sensitive: true,
					},
					"vm_size": schema.StringAttribute{
						Optional: true,
					},
					"private_network_cidr": schema.StringAttribute{
						Optional: true,
					},
				},
			},
			"log": schema.SingleNestedAttribute{
				Optional: true,
				Attributes: map[string]schema.Attribute{
					"file": schema.SingleNestedAttribute{
						Description: "Output logs to a file.",
						Optional:    true,
						Attributes: map[string]schema.Attribute{
							"directory": schema.StringAttribute{
								Description: "The directory to write the log file to.",
								Optional:    true,
							},
						},
					},
				},
			},
		},
	}
}

func (p *IaasProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var data IaasProviderModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	infra := data.infrastructure()
	if infra.ID == "" {
		resp.Diagnostics.AddAttributeError(path.Root("infrastructure_id"),
			"missing infrastructure id",
			"set infrastructure_id or IAAS_INFRASTRUCTURE_ID")
		return
	}

	resolver := p.resolver
	if resolver == nil {
		resolver = azure.NewResolver(nil)
	}

	store := NewProviderStore(infra, connector.New(resolver,
		connector.WithConfig(data.connectorConfig()),
		connector.WithTagCollector(data.tagCollector()),
	))

	if data.Log != nil && data.Log.File != nil {
		fctx, closer := log.SetupFileLogging(ctx, data.Log.File.Directory.ValueString(), infra.ID, slog.LevelDebug)
		store.setLogFile(fctx, closer)
	}

	if p.store != nil {
		p.store.Close()
	}
	p.store = store

	log.Debug(ctx, "provider configured", "infrastructure_id", infra.ID)

	resp.DataSourceData = store
	resp.ResourceData = store
}

func (p *IaasProvider) Resources(_ context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewInstanceResource,
		NewInstanceScriptResource,
		NewPublicIPResource,
	}
}

func (p *IaasProvider) DataSources(ctx context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewInstancesDataSource,
		NewImagesDataSource,
	}
}

func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &IaasProvider{
			version: version,
		}
	}
}

func (m IaasProviderModel) infrastructure() itypes.Infrastructure {
	infra := itypes.Infrastructure{
		ID:   stringOr(m.InfrastructureID, "IAAS_INFRASTRUCTURE_ID"),
		Type: itypes.InfrastructureTypeAzure,
	}
	az := m.Azure
	if az == nil {
		az = &ProviderAzureModel{}
	}
	infra.Azure = itypes.AzureCredentials{
		SubscriptionID: stringOr(az.SubscriptionID, "AZURE_SUBSCRIPTION_ID"),
		TenantID:       stringOr(az.TenantID, "AZURE_TENANT_ID"),
		ClientID:       stringOr(az.ClientID, "AZURE_CLIENT_ID"),
		ClientSecret:   stringOr(az.ClientSecret, "AZURE_CLIENT_SECRET"),
		Environment:    stringOr(az.Environment, "AZURE_ENVIRONMENT"),
	}
	return infra
}

func (m IaasProviderModel) connectorConfig() connector.Config {
	if m.Defaults == nil {
		return connector.Config{}
	}
	return connector.Config{
		DefaultUsername:           m.Defaults.Username.ValueString(),
		DefaultPassword:           m.Defaults.Password.ValueString(),
		DefaultVMSize:             m.Defaults.VMSize.ValueString(),
		DefaultPrivateNetworkCIDR: m.Defaults.PrivateNetworkCIDR.ValueString(),
	}
}

func (m IaasProviderModel) tagCollector() *tags.Collector {
	if m.Tags == nil {
		return tags.New("", "", "")
	}
	return tags.New(
		m.Tags.ConnectorKey.ValueString(),
		m.Tags.ConnectorValue.ValueString(),
		m.Tags.InfrastructureKey.ValueString(),
	)
}

// stringOr returns the configured value, or the environment variable env when
// the attribute is unset.
func stringOr(v types.String, env string) string {
	if !v.IsNull() && !v.IsUnknown() && v.ValueString() != "" {
		return v.ValueString()
	}
	return os.Getenv(env)
}
