package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/connector"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/log"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/provider/framework"
	itypes "github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/hashicorp/terraform-plugin-framework-timeouts/resource/timeouts"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/int64planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/listplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/objectplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

const (
	defaultInstanceCreateTimeout = 30 * time.Minute
	defaultInstanceDeleteTimeout = 20 * time.Minute
)

var _ resource.ResourceWithConfigure = &InstanceResource{}

func NewInstanceResource() resource.Resource {
	return &InstanceResource{WithTypeName: "instance"}
}

// InstanceResource provisions one or more replicas of a virtual machine.
// Every input forces replacement: instances are never modified in place.
type InstanceResource struct {
	framework.WithTypeName

	store *ProviderStore
}

type InstanceResourceModel struct {
	Id           types.String              `tfsdk:"id"`
	Tag          types.String              `tfsdk:"tag"`
	Number       types.Int64               `tfsdk:"number"`
	Image        types.String              `tfsdk:"image"`
	HardwareType types.String              `tfsdk:"hardware_type"`
	Credentials  *InstanceCredentialsModel `tfsdk:"credentials"`
	InitScript   []string                  `tfsdk:"init_script"`
	Options      *InstanceOptionsModel     `tfsdk:"options"`
	Instances    types.List                `tfsdk:"instances"`
	Timeouts     timeouts.Value            `tfsdk:"timeouts"`
}

type InstanceCredentialsModel struct {
	Username  types.String `tfsdk:"username"`
	Password  types.String `tfsdk:"password"`
	PublicKey types.String `tfsdk:"public_key"`
}

type InstanceOptionsModel struct {
	ResourceGroup      types.String      `tfsdk:"resource_group"`
	Region             types.String      `tfsdk:"region"`
	SubnetID           types.String      `tfsdk:"subnet_id"`
	PrivateNetworkCIDR types.String      `tfsdk:"private_network_cidr"`
	SecurityGroupNames []string          `tfsdk:"security_group_names"`
	PublicIPAddress    types.String      `tfsdk:"public_ip_address"`
	StaticPublicIP     types.Bool        `tfsdk:"static_public_ip"`
	Tags               map[string]string `tfsdk:"tags"`
}

func (r *InstanceResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	replaceString := []planmodifier.String{stringplanmodifier.RequiresReplace()}

	resp.Schema = schema.Schema{
		Description: "Virtual machines provisioned from an image, each with its own interface and public IP address.",
		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				Computed: true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"tag": schema.StringAttribute{
				Description:   "The VM name. Replicas after the first are suffixed with their index.",
				Required:      true,
				PlanModifiers: replaceString,
			},
			"number": schema.Int64Attribute{
				Description: "The number of replicas to create. Defaults to 1.",
				Optional:    true,
				PlanModifiers: []planmodifier.Int64{
					int64planmodifier.RequiresReplace(),
				},
			},
			"image": schema.StringAttribute{
				Description:   "The name or ID of the image to boot from.",
				Required:      true,
				PlanModifiers: replaceString,
			},
			"hardware_type": schema.StringAttribute{
				Description:   "The VM size, e.g. Standard_D1_v2.",
				Optional:      true,
				PlanModifiers: replaceString,
			},
			"credentials": schema.SingleNestedAttribute{
				Description: "The login of the instance. A public key disables password login on Linux images.",
				Optional:    true,
				PlanModifiers: []planmodifier.Object{
					objectplanmodifier.RequiresReplace(),
				},
				Attributes: map[string]schema.Attribute{
					"username": schema.StringAttribute{
						Optional: true,
					},
					"password": schema.StringAttribute{
						Optional:  true,
						Sensitive: true,
					},
					"public_key": schema.StringAttribute{
						Optional: true,
					},
				},
			},
			"init_script": schema.ListAttribute{
				Description: "Commands run through the custom script extension once the instance is up.",
				ElementType: types.StringType,
				Optional:    true,
				PlanModifiers: []planmodifier.List{
					listplanmodifier.RequiresReplace(),
				},
			},
			"options": schema.SingleNestedAttribute{
				Optional: true,
				PlanModifiers: []planmodifier.Object{
					objectplanmodifier.RequiresReplace(),
				},
				Attributes: map[string]schema.Attribute{
					"resource_group": schema.StringAttribute{
						Description: "The resource group to create in. Defaults to the image's resource group.",
						Optional:    true,
					},
					"region": schema.StringAttribute{
						Description: "The region name or label. Defaults to the resource group's location.",
						Optional:    true,
					},
					"subnet_id": schema.StringAttribute{
						Description: "An existing subnet to attach to instead of creating a network.",
						Optional:    true,
					},
					"private_network_cidr": schema.StringAttribute{
						Description: "The address space of the network created for the instances.",
						Optional:    true,
					},
					"security_group_names": schema.ListAttribute{
						Description: "Existing security groups, by name or ID. Only the first one is attached.",
						ElementType: types.StringType,
						Optional:    true,
					},
					"public_ip_address": schema.StringAttribute{
						Description: "An existing unattached public IP address to use. Only valid for a single replica.",
						Optional:    true,
					},
					"static_public_ip": schema.BoolAttribute{
						Description: "Whether created public IP addresses are static. Defaults to true.",
						Optional:    true,
					},
					"tags": schema.MapAttribute{
						Description: "Extra tags for every created resource.",
						ElementType: types.StringType,
						Optional:    true,
					},
				},
			},
			"instances": schema.ListNestedAttribute{
				Description: "The created instances.",
				Computed:    true,
				PlanModifiers: []planmodifier.List{
					listplanmodifier.UseStateForUnknown(),
				},
				NestedObject: schema.NestedAttributeObject{
					Attributes: instanceResultAttributes(),
				},
			},
			"timeouts": timeouts.Attributes(ctx, timeouts.Opts{
				Create:            true,
				CreateDescription: "The maximum time to wait for all replicas to be created.",
				Delete:            true,
				DeleteDescription: "The maximum time to wait for all replicas to be removed.",
			}),
		},
	}
}

func instanceResultAttributes() map[string]schema.Attribute {
	return map[string]schema.Attribute{
		"id": schema.StringAttribute{
			Description: "The provider-assigned VM identifier.",
			Computed:    true,
		},
		"tag": schema.StringAttribute{
			Description: "The VM name.",
			Computed:    true,
		},
		"hardware_type": schema.StringAttribute{
			Computed: true,
		},
		"status": schema.StringAttribute{
			Computed: true,
		},
		"public_addresses": schema.ListAttribute{
			ElementType: types.StringType,
			Computed:    true,
		},
		"private_addresses": schema.ListAttribute{
			ElementType: types.StringType,
			Computed:    true,
		},
	}
}

func (r *InstanceResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	store, diags := storeFrom(req.ProviderData)
	resp.Diagnostics.Append(diags...)
	r.store = store
}

func (r *InstanceResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data InstanceResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	timeout, diags := data.Timeouts.Create(ctx, defaultInstanceCreateTimeout)
	if diags.HasError() {
		log.Warn(ctx, fmt.Sprintf("failed to parse instance create timeout, using the default timeout of %s", defaultInstanceCreateTimeout), "error", diags)
		timeout = defaultInstanceCreateTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx = r.store.Logger(ctx, "iaas_instance", "instance_tag", data.Tag.ValueString())

	out, err := r.store.connector.CreateInstance(ctx, r.store.infra, data.request())
	if err != nil {
		resp.Diagnostics.Append(errorDiagnostic("failed to create instance", err))
		return
	}

	data.Id = data.Tag
	instances, diags := instanceList(ctx, out)
	resp.Diagnostics.Append(diags...)
	data.Instances = instances

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// Read refreshes the recorded replicas, dropping those that no longer exist.
func (r *InstanceResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data InstanceResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	ctx = r.store.Logger(ctx, "iaas_instance", "instance_tag", data.Tag.ValueString())

	var current []InstanceModel
	resp.Diagnostics.Append(data.Instances.ElementsAs(ctx, &current, false)...)
	if resp.Diagnostics.HasError() {
		return
	}

	var refreshed []itypes.Instance
	for _, inst := range current {
		got, err := r.store.connector.GetInstanceByID(ctx, r.store.infra, inst.Id.ValueString())
		if errors.Is(err, connector.ErrInstanceNotFound) {
			log.Warn(ctx, "instance no longer exists", "instance_id", inst.Id.ValueString())
			continue
		}
		if err != nil {
			resp.Diagnostics.Append(errorDiagnostic("failed to read instance", err))
			return
		}
		refreshed = append(refreshed, *got)
	}

	if len(refreshed) == 0 {
		resp.State.RemoveResource(ctx)
		return
	}

	instances, diags := instanceList(ctx, refreshed)
	resp.Diagnostics.Append(diags...)
	data.Instances = instances

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// Update only ever sees timeout changes; everything else forces replacement.
func (r *InstanceResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data InstanceResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *InstanceResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data InstanceResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	timeout, diags := data.Timeouts.Delete(ctx, defaultInstanceDeleteTimeout)
	if diags.HasError() {
		log.Warn(ctx, fmt.Sprintf("failed to parse instance delete timeout, using the default timeout of %s", defaultInstanceDeleteTimeout), "error", diags)
		timeout = defaultInstanceDeleteTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx = r.store.Logger(ctx, "iaas_instance", "instance_tag", data.Tag.ValueString())

	var current []InstanceModel
	resp.Diagnostics.Append(data.Instances.ElementsAs(ctx, &current, false)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics = framework.JoinDiagnostics(resp.Diagnostics, deleteInstances(ctx, r.store, current))
}

// deleteInstances removes every instance, skipping the ones already gone.
// A failure on one instance does not stop the others from being removed.
func deleteInstances(ctx context.Context, store *ProviderStore, instances []InstanceModel) diag.Diagnostics {
	var diags diag.Diagnostics
	for _, inst := range instances {
		err := store.connector.DeleteInstance(ctx, store.infra, inst.Id.ValueString())
		switch {
		case errors.Is(err, connector.ErrInstanceNotFound):
			log.Info(ctx, "instance already removed", "instance_id", inst.Id.ValueString())
		case err != nil:
			diags.Append(errorDiagnostic(fmt.Sprintf("failed to delete instance %s", inst.Tag.ValueString()), err))
		}
	}
	return diags
}

func (m InstanceResourceModel) request() itypes.Instance {
	inst := itypes.Instance{
		Tag:        m.Tag.ValueString(),
		Number:     int(m.Number.ValueInt64()),
		Image:      m.Image.ValueString(),
		Hardware:   itypes.Hardware{Type: m.HardwareType.ValueString()},
		InitScript: m.InitScript,
	}
	if c := m.Credentials; c != nil {
		inst.Credentials = &itypes.Credentials{
			Username:  c.Username.ValueString(),
			Password:  c.Password.ValueString(),
			PublicKey: c.PublicKey.ValueString(),
		}
	}
	if o := m.Options; o != nil {
		inst.Options = &itypes.Options{
			ResourceGroup:      o.ResourceGroup.ValueString(),
			Region:             o.Region.ValueString(),
			SubnetID:           o.SubnetID.ValueString(),
			PrivateNetworkCIDR: o.PrivateNetworkCIDR.ValueString(),
			SecurityGroupNames: o.SecurityGroupNames,
			PublicIPAddress:    o.PublicIPAddress.ValueString(),
			StaticPublicIP:     o.StaticPublicIP.ValueBoolPointer(),
			Tags:               sortedTags(o.Tags),
		}
	}
	return inst
}
