package provider

import (
	"context"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/provider/framework"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
)

var (
	_ datasource.DataSourceWithConfigure = &ImagesDataSource{}
)

func NewImagesDataSource() datasource.DataSource {
	return &ImagesDataSource{WithDataSourceTypeName: "images"}
}

// ImagesDataSource lists the images instances can be created from.
type ImagesDataSource struct {
	framework.WithDataSourceTypeName

	store *ProviderStore
}

type ImagesDataSourceModel struct {
	Images []ImageModel `tfsdk:"images"`
}

func (d *ImagesDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Attributes: map[string]schema.Attribute{
			"images": schema.ListNestedAttribute{
				Computed: true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"id": schema.StringAttribute{
							Computed: true,
						},
						"name": schema.StringAttribute{
							Computed: true,
						},
						"location": schema.StringAttribute{
							Computed: true,
						},
						"os_type": schema.StringAttribute{
							Description: "Linux or Windows.",
							Computed:    true,
						},
					},
				},
			},
		},
	}
}

func (d *ImagesDataSource) Configure(_ context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	store, diags := storeFrom(req.ProviderData)
	resp.Diagnostics.Append(diags...)
	d.store = store
}

func (d *ImagesDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data ImagesDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	ctx = d.store.Logger(ctx, "iaas_images")

	images, err := d.store.connector.GetAllImages(ctx, d.store.infra)
	if err != nil {
		resp.Diagnostics.Append(errorDiagnostic("failed to list images", err))
		return
	}
	data.Images = imageModels(images)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
