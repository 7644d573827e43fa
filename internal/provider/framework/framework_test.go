package framework

import (
	"context"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/stretchr/testify/require"
)

func TestTypeNames(t *testing.T) {
	var rresp resource.MetadataResponse
	WithTypeName("instance").Metadata(context.Background(), resource.MetadataRequest{ProviderTypeName: "iaas"}, &rresp)
	require.Equal(t, "iaas_instance", rresp.TypeName)

	var dresp datasource.MetadataResponse
	WithDataSourceTypeName("images").Metadata(context.Background(), datasource.MetadataRequest{ProviderTypeName: "iaas"}, &dresp)
	require.Equal(t, "iaas_images", dresp.TypeName)
}

func TestJoinDiagnostics(t *testing.T) {
	a := diag.NewErrorDiagnostic("a", "first")
	b := diag.NewWarningDiagnostic("b", "second")

	require.Empty(t, JoinDiagnostics())
	require.Equal(t, diag.Diagnostics{a, b}, JoinDiagnostics(diag.Diagnostics{a}, nil, diag.Diagnostics{b, a}))
}
