package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/log"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/provider/framework"
	itypes "github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/hashicorp/terraform-plugin-framework-timeouts/resource/timeouts"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/mapplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

const defaultScriptTimeout = 15 * time.Minute

var (
	_ resource.ResourceWithConfigure      = &InstanceScriptResource{}
	_ resource.ResourceWithValidateConfig = &InstanceScriptResource{}
)

func NewInstanceScriptResource() resource.Resource {
	return &InstanceScriptResource{WithTypeName: "instance_script"}
}

// InstanceScriptResource runs scripts on existing instances. Changing the
// scripts runs them again. Destroying the resource leaves the instances as
// they are.
type InstanceScriptResource struct {
	framework.WithTypeName
	framework.WithNoOpRead
	framework.WithNoOpDelete

	store *ProviderStore
}

type InstanceScriptResourceModel struct {
	Id          types.String      `tfsdk:"id"`
	InstanceID  types.String      `tfsdk:"instance_id"`
	Tag         types.String      `tfsdk:"tag"`
	Scripts     []string          `tfsdk:"scripts"`
	Triggers    map[string]string `tfsdk:"triggers"`
	InstanceIDs types.List        `tfsdk:"instance_ids"`
	Timeouts    timeouts.Value    `tfsdk:"timeouts"`
}

func (r *InstanceScriptResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Runs scripts on instances through the custom script extension.",
		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				Computed: true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"instance_id": schema.StringAttribute{
				Description: "The instance to run on. Conflicts with tag.",
				Optional:    true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"tag": schema.StringAttribute{
				Description: "Run on every instance with this name. Conflicts with instance_id.",
				Optional:    true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"scripts": schema.ListAttribute{
				Description: "The commands to run, joined into a single command line.",
				ElementType: types.StringType,
				Required:    true,
			},
			"triggers": schema.MapAttribute{
				Description: "Arbitrary values that cause the scripts to run again when changed.",
				ElementType: types.StringType,
				Optional:    true,
				PlanModifiers: []planmodifier.Map{
					mapplanmodifier.RequiresReplace(),
				},
			},
			"instance_ids": schema.ListAttribute{
				Description: "The instances the scripts were submitted to, once per script.",
				ElementType: types.StringType,
				Computed:    true,
			},
			"timeouts": timeouts.Attributes(ctx, timeouts.Opts{
				Create:            true,
				CreateDescription: "The maximum time to wait for the scripts to be submitted.",
				Update:            true,
				UpdateDescription: "The maximum time to wait for the scripts to be submitted again.",
			}),
		},
	}
}

func (r *InstanceScriptResource) ValidateConfig(ctx context.Context, req resource.ValidateConfigRequest, resp *resource.ValidateConfigResponse) {
	resp.Diagnostics.Append(validateTarget(ctx, req.Config)...)
}

func (r *InstanceScriptResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	store, diags := storeFrom(req.ProviderData)
	resp.Diagnostics.Append(diags...)
	r.store = store
}

func (r *InstanceScriptResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data InstanceScriptResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	timeout, diags := data.Timeouts.Create(ctx, defaultScriptTimeout)
	if diags.HasError() {
		log.Warn(ctx, fmt.Sprintf("failed to parse script create timeout, using the default timeout of %s", defaultScriptTimeout), "error", diags)
		timeout = defaultScriptTimeout
	}

	resp.Diagnostics.Append(r.run(ctx, timeout, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *InstanceScriptResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data InstanceScriptResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	timeout, diags := data.Timeouts.Update(ctx, defaultScriptTimeout)
	if diags.HasError() {
		log.Warn(ctx, fmt.Sprintf("failed to parse script update timeout, using the default timeout of %s", defaultScriptTimeout), "error", diags)
		timeout = defaultScriptTimeout
	}

	resp.Diagnostics.Append(r.run(ctx, timeout, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *InstanceScriptResource) run(ctx context.Context, timeout time.Duration, data *InstanceScriptResourceModel) diag.Diagnostics {
	var diags diag.Diagnostics

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		results []itypes.ScriptResult
		err     error
	)
	if id := data.InstanceID.ValueString(); id != "" {
		ctx = r.store.Logger(ctx, "iaas_instance_script", "instance_id", id)
		data.Id = data.InstanceID
		results, err = r.store.connector.ExecuteScript(ctx, r.store.infra, id, data.Scripts)
	} else {
		tag := data.Tag.ValueString()
		ctx = r.store.Logger(ctx, "iaas_instance_script", "instance_tag", tag)
		data.Id = data.Tag
		results, err = r.store.connector.ExecuteScriptByTag(ctx, r.store.infra, tag, data.Scripts)
	}
	if err != nil {
		diags.Append(errorDiagnostic("failed to execute scripts", err))
		return diags
	}

	ids := make([]string, 0, len(results))
	for _, res := range results {
		ids = append(ids, res.InstanceID)
	}
	list, d := types.ListValueFrom(ctx, types.StringType, ids)
	diags.Append(d...)
	data.InstanceIDs = list

	log.Info(ctx, "scripts submitted", "count", len(data.Scripts))
	return diags
}
