package provider

import (
	"context"
	"errors"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/connector"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/log"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/provider/framework"
	itypes "github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// Ensure provider defined types fully satisfy framework interfaces.
var (
	_ datasource.DataSourceWithConfigure = &InstancesDataSource{}
)

func NewInstancesDataSource() datasource.DataSource {
	return &InstancesDataSource{WithDataSourceTypeName: "instances"}
}

// InstancesDataSource lists the instances of the infrastructure's account.
type InstancesDataSource struct {
	framework.WithDataSourceTypeName

	store *ProviderStore
}

type InstancesDataSourceModel struct {
	InstanceID  types.String    `tfsdk:"instance_id"`
	Tag         types.String    `tfsdk:"tag"`
	CreatedOnly types.Bool      `tfsdk:"created_only"`
	Instances   []InstanceModel `tfsdk:"instances"`
}

func (d *InstancesDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Lists instances, optionally filtered by ID or name.",
		Attributes: map[string]schema.Attribute{
			"instance_id": schema.StringAttribute{
				Description: "Only return the instance with this ID. An unknown ID yields no instances.",
				Optional:    true,
			},
			"tag": schema.StringAttribute{
				Description: "Only return instances with this name.",
				Optional:    true,
			},
			"created_only": schema.BoolAttribute{
				Description: "Only return instances created by this provider.",
				Optional:    true,
			},
			"instances": schema.ListNestedAttribute{
				Computed: true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"id": schema.StringAttribute{
							Computed: true,
						},
						"tag": schema.StringAttribute{
							Computed: true,
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
					},
				},
			},
		},
	}
}

func (d *InstancesDataSource) Configure(_ context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	store, diags := storeFrom(req.ProviderData)
	resp.Diagnostics.Append(diags...)
	d.store = store
}

func (d *InstancesDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data InstancesDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	ctx = d.store.Logger(ctx, "iaas_instances")

	instances, err := d.list(ctx, data)
	if err != nil {
		resp.Diagnostics.Append(errorDiagnostic("failed to list instances", err))
		return
	}

	if data.CreatedOnly.ValueBool() && (!data.InstanceID.IsNull() || !data.Tag.IsNull()) {
		created, err := d.store.connector.GetCreatedInstances(ctx, d.store.infra)
		if err != nil {
			resp.Diagnostics.Append(errorDiagnostic("failed to list instances", err))
			return
		}
		instances = intersect(instances, created)
	}

	log.Debug(ctx, "listed instances", "count", len(instances))
	data.Instances = instanceModels(instances)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (d *InstancesDataSource) list(ctx context.Context, data InstancesDataSourceModel) ([]itypes.Instance, error) {
	c, infra := d.store.connector, d.store.infra
	switch {
	case !data.InstanceID.IsNull():
		inst, err := c.GetInstanceByID(ctx, infra, data.InstanceID.ValueString())
		if errors.Is(err, connector.ErrInstanceNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []itypes.Instance{*inst}, nil
	case !data.Tag.IsNull():
		return c.GetInstanceByTag(ctx, infra, data.Tag.ValueString())
	case data.CreatedOnly.ValueBool():
		return c.GetCreatedInstances(ctx, infra)
	default:
		return c.GetAllInstances(ctx, infra)
	}
}

// intersect keeps the instances of all that are also in keep.
func intersect(all, keep []itypes.Instance) []itypes.Instance {
	ids := make(map[string]bool, len(keep))
	for _, inst := range keep {
		ids[inst.ID] = true
	}
	var out []itypes.Instance
	for _, inst := range all {
		if ids[inst.ID] {
			out = append(out, inst)
		}
	}
	return out
}
