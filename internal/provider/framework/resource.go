package framework

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/resource"
)

// WithTypeName is embedded into resources to name them
// "<provider>_<WithTypeName>".
type WithTypeName string

func (w WithTypeName) Metadata(
	_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse,
) {
	resp.TypeName = req.ProviderTypeName + "_" + string(w)
}

// WithDataSourceTypeName is the data source counterpart of WithTypeName.
type WithDataSourceTypeName string

func (w WithDataSourceTypeName) Metadata(
	_ context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse,
) {
	resp.TypeName = req.ProviderTypeName + "_" + string(w)
}

// WithNoOpDelete is embedded into resources whose destroy leaves the remote
// side untouched.
type WithNoOpDelete struct{}

func (WithNoOpDelete) Delete(_ context.Context, _ resource.DeleteRequest, _ *resource.DeleteResponse) {
}

// WithNoOpRead is embedded into resources that keep their state as applied.
type WithNoOpRead struct{}

func (WithNoOpRead) Read(_ context.Context, _ resource.ReadRequest, _ *resource.ReadResponse) {
}
