package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"

	itypes "github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// InstanceModel is a provisioned instance as reported back to Terraform.
type InstanceModel struct {
	Id               types.String `tfsdk:"id"`
	Tag              types.String `tfsdk:"tag"`
	HardwareType     types.String `tfsdk:"hardware_type"`
	Status           types.String `tfsdk:"status"`
	PublicAddresses  []string     `tfsdk:"public_addresses"`
	PrivateAddresses []string     `tfsdk:"private_addresses"`
}

var instanceAttrTypes = map[string]attr.Type{
	"id":                types.StringType,
	"tag":               types.StringType,
	"hardware_type":     types.StringType,
	"status":            types.StringType,
	"public_addresses":  types.ListType{ElemType: types.StringType},
	"private_addresses": types.ListType{ElemType: types.StringType},
}

func instanceModel(inst itypes.Instance) InstanceModel {
	return InstanceModel{
		Id:               types.StringValue(inst.ID),
		Tag:              types.StringValue(inst.Tag),
		HardwareType:     types.StringValue(inst.Hardware.Type),
		Status:           types.StringValue(inst.Status),
		PublicAddresses:  nonNil(inst.Network.PublicAddresses),
		PrivateAddresses: nonNil(inst.Network.PrivateAddresses),
	}
}

func instanceModels(insts []itypes.Instance) []InstanceModel {
	out := make([]InstanceModel, 0, len(insts))
	for _, inst := range insts {
		out = append(out, instanceModel(inst))
	}
	return out
}

func instanceList(ctx context.Context, insts []itypes.Instance) (types.List, diag.Diagnostics) {
	return types.ListValueFrom(ctx, types.ObjectType{AttrTypes: instanceAttrTypes}, instanceModels(insts))
}

// nonNil keeps empty address lists known and empty rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ImageModel is an image available for provisioning.
type ImageModel struct {
	Id       types.String `tfsdk:"id"`
	Name     types.String `tfsdk:"name"`
	Location types.String `tfsdk:"location"`
	OSType   types.String `tfsdk:"os_type"`
}

func imageModels(images []itypes.Image) []ImageModel {
	out := make([]ImageModel, 0, len(images))
	for _, img := range images {
		out = append(out, ImageModel{
			Id:       types.StringValue(img.ID),
			Name:     types.StringValue(img.Name),
			Location: types.StringValue(img.Location),
			OSType:   types.StringValue(img.OSType),
		})
	}
	return out
}

// sortedTags turns a tag map into the ordered tag list the connector expects.
func sortedTags(m map[string]string) []itypes.Tag {
	out := make([]itypes.Tag, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, itypes.Tag{Key: k, Value: m[k]})
	}
	return out
}

// validateTarget checks that exactly one of instance_id and tag is set.
// Unknown values are accepted since they are resolved at apply time.
func validateTarget(ctx context.Context, config tfsdk.Config) diag.Diagnostics {
	var diags diag.Diagnostics
	var id, tag types.String
	diags.Append(config.GetAttribute(ctx, path.Root("instance_id"), &id)...)
	diags.Append(config.GetAttribute(ctx, path.Root("tag"), &tag)...)
	if diags.HasError() || id.IsUnknown() || tag.IsUnknown() {
		return diags
	}
	if id.IsNull() == tag.IsNull() {
		diags.AddAttributeError(path.Root("instance_id"),
			"invalid target",
			fmt.Sprintf("exactly one of instance_id and tag must be set (instance_id=%s, tag=%s)", id, tag))
	}
	return diags
}
