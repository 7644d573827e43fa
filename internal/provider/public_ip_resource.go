package provider

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/connector"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/log"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/provider/framework"
	itypes "github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/hashicorp/terraform-plugin-framework-timeouts/resource/timeouts"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/listplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

const defaultPublicIPTimeout = 10 * time.Minute

var (
	_ resource.ResourceWithConfigure      = &PublicIPResource{}
	_ resource.ResourceWithValidateConfig = &PublicIPResource{}
)

func NewPublicIPResource() resource.Resource {
	return &PublicIPResource{WithTypeName: "public_ip"}
}

// PublicIPResource gives instances an additional public IP address and
// takes it away again on destroy.
type PublicIPResource struct {
	framework.WithTypeName
	framework.WithNoOpRead

	store *ProviderStore
}

type PublicIPResourceModel struct {
	Id         types.String   `tfsdk:"id"`
	InstanceID types.String   `tfsdk:"instance_id"`
	Tag        types.String   `tfsdk:"tag"`
	Address    types.String   `tfsdk:"address"`
	Addresses  types.List     `tfsdk:"addresses"`
	Timeouts   timeouts.Value `tfsdk:"timeouts"`
}

func (r *PublicIPResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	replace := []planmodifier.String{stringplanmodifier.RequiresReplace()}

	resp.Schema = schema.Schema{
		Description: "A public IP address added to instances.",
		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				Computed: true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"instance_id": schema.StringAttribute{
				Description:   "The instance to add the address to. Conflicts with tag.",
				Optional:      true,
				PlanModifiers: replace,
			},
			"tag": schema.StringAttribute{
				Description:   "Add an address to every instance with this name. Conflicts with instance_id.",
				Optional:      true,
				PlanModifiers: replace,
			},
			"address": schema.StringAttribute{
				Description:   "An existing unattached public IP address to use instead of creating one.",
				Optional:      true,
				PlanModifiers: replace,
			},
			"addresses": schema.ListAttribute{
				Description: "The addresses added, one per instance.",
				ElementType: types.StringType,
				Computed:    true,
				PlanModifiers: []planmodifier.List{
					listplanmodifier.UseStateForUnknown(),
				},
			},
			"timeouts": timeouts.Attributes(ctx, timeouts.Opts{
				Create: true,
				Delete: true,
			}),
		},
	}
}

func (r *PublicIPResource) ValidateConfig(ctx context.Context, req resource.ValidateConfigRequest, resp *resource.ValidateConfigResponse) {
	resp.Diagnostics.Append(validateTarget(ctx, req.Config)...)
}

func (r *PublicIPResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	store, diags := storeFrom(req.ProviderData)
	resp.Diagnostics.Append(diags...)
	r.store = store
}

func (r *PublicIPResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data PublicIPResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	timeout, diags := data.Timeouts.Create(ctx, defaultPublicIPTimeout)
	if diags.HasError() {
		log.Warn(ctx, fmt.Sprintf("failed to parse public ip create timeout, using the default timeout of %s", defaultPublicIPTimeout), "error", diags)
		timeout = defaultPublicIPTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var addresses []string
	desired := data.Address.ValueString()
	if id := data.InstanceID.ValueString(); id != "" {
		ctx = r.store.Logger(ctx, "iaas_public_ip", "instance_id", id)
		data.Id = data.InstanceID
		addr, err := r.store.connector.AddPublicIP(ctx, r.store.infra, id, desired)
		if err != nil {
			resp.Diagnostics.Append(errorDiagnostic("failed to add public ip address", err))
			return
		}
		addresses = []string{addr}
	} else {
		tag := data.Tag.ValueString()
		ctx = r.store.Logger(ctx, "iaas_public_ip", "instance_tag", tag)
		data.Id = data.Tag
		got, err := r.store.connector.AddPublicIPByTag(ctx, r.store.infra, tag, desired)
		if err != nil {
			resp.Diagnostics.Append(errorDiagnostic("failed to add public ip addresses", err))
			return
		}
		addresses = got
	}

	list, diags := types.ListValueFrom(ctx, types.StringType, addresses)
	resp.Diagnostics.Append(diags...)
	data.Addresses = list

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// Update only ever sees timeout changes; everything else forces replacement.
func (r *PublicIPResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var data PublicIPResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *PublicIPResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data PublicIPResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	timeout, diags := data.Timeouts.Delete(ctx, defaultPublicIPTimeout)
	if diags.HasError() {
		log.Warn(ctx, fmt.Sprintf("failed to parse public ip delete timeout, using the default timeout of %s", defaultPublicIPTimeout), "error", diags)
		timeout = defaultPublicIPTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var addresses []string
	resp.Diagnostics.Append(data.Addresses.ElementsAs(ctx, &addresses, false)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if id := data.InstanceID.ValueString(); id != "" {
		ctx = r.store.Logger(ctx, "iaas_public_ip", "instance_id", id)
		inst, err := r.store.connector.GetInstanceByID(ctx, r.store.infra, id)
		if gone(err) {
			log.Info(ctx, "instance already removed", "instance_id", id)
			return
		}
		if err != nil {
			resp.Diagnostics.Append(errorDiagnostic("failed to look up instance", err))
			return
		}
		resp.Diagnostics.Append(r.removeRecorded(ctx, []itypes.Instance{*inst}, addresses)...)
		return
	}

	tag := data.Tag.ValueString()
	ctx = r.store.Logger(ctx, "iaas_public_ip", "instance_tag", tag)

	instances, err := r.store.connector.GetInstanceByTag(ctx, r.store.infra, tag)
	if err != nil {
		resp.Diagnostics.Append(errorDiagnostic("failed to look up instances", err))
		return
	}
	resp.Diagnostics.Append(r.removeRecorded(ctx, instances, addresses)...)
}

// removeRecorded removes the recorded addresses the instances still carry.
// Addresses released outside of Terraform are skipped, so that removal never
// falls back to another address of the instance.
func (r *PublicIPResource) removeRecorded(ctx context.Context, instances []itypes.Instance, recorded []string) diag.Diagnostics {
	var diags diag.Diagnostics
	for _, inst := range instances {
		for _, addr := range inst.Network.PublicAddresses {
			if slices.Contains(recorded, addr) {
				diags.Append(r.remove(ctx, inst.ID, addr)...)
			}
		}
	}
	return diags
}

func (r *PublicIPResource) remove(ctx context.Context, instanceID, address string) diag.Diagnostics {
	var diags diag.Diagnostics
	err := r.store.connector.RemovePublicIP(ctx, r.store.infra, instanceID, address)
	if err != nil && !gone(err) {
		diags.Append(errorDiagnostic(fmt.Sprintf("failed to remove public ip address %s", address), err))
	}
	if gone(err) {
		log.Info(ctx, "public ip address already removed", "public_ip", address, "instance_id", instanceID)
	}
	return diags
}

// gone reports whether err means there is nothing left to remove.
func gone(err error) bool {
	return errors.Is(err, connector.ErrInstanceNotFound) || errors.Is(err, connector.ErrPublicIPNotFound)
}
