package connector

import (
	"testing"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud/fake"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/stretchr/testify/require"
)

const (
	testRG       = "rg-test"
	testLocation = "westeurope"
	testImage    = "ubuntu-2404"
	testPassword = "S3cret!pass"
)

var testInfra = types.Infrastructure{ID: "infra-1", Type: types.InfrastructureTypeAzure}

type harness struct {
	cloud     *fake.Cloud
	resolver  *fake.Resolver
	connector *Connector
	image     cloud.Image
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	f := fake.New()
	f.AddResourceGroup(testRG, testLocation)
	img := f.AddImage(testImage, testRG, testLocation, cloud.OSTypeLinux)
	r := &fake.Resolver{Fake: f}
	opts = append([]Option{WithConfig(Config{DefaultPassword: testPassword})}, opts...)
	return &harness{
		cloud:     f,
		resolver:  r,
		connector: New(r, opts...),
		image:     img,
	}
}

// create provisions an instance and returns the results, failing the test on
// error.
func (h *harness) create(t *testing.T, inst types.Instance) []types.Instance {
	t.Helper()
	out, err := h.connector.CreateInstance(t.Context(), testInfra, inst)
	require.NoError(t, err)
	return out
}

func (h *harness) vm(t *testing.T, instanceID string) cloud.VirtualMachine {
	t.Helper()
	vms, err := h.cloud.ListVirtualMachines(t.Context())
	require.NoError(t, err)
	for _, vm := range vms {
		if vm.VMID == instanceID {
			return vm
		}
	}
	t.Fatalf("no vm with id %q", instanceID)
	return cloud.VirtualMachine{}
}

func TestNewDefaults(t *testing.T) {
	c := New(&fake.Resolver{Fake: fake.New()})
	require.Equal(t, DefaultUsername, c.cfg.DefaultUsername)
	require.Equal(t, DefaultVMSize, c.cfg.DefaultVMSize)
	require.Equal(t, DefaultPrivateNetworkCIDR, c.cfg.DefaultPrivateNetworkCIDR)
	require.Empty(t, c.cfg.DefaultPassword)
	require.IsType(t, CustomScriptRunner{}, c.scripts)
}

func TestCreateKeyPair(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.connector.CreateKeyPair(t.Context(), testInfra, types.Instance{Tag: "vm"})
	require.ErrorIs(t, err, ErrUnsupportedOperation)
	require.Empty(t, h.cloud.Calls())
}

func TestDeleteInfrastructure(t *testing.T) {
	h := newHarness(t)
	h.connector.DeleteInfrastructure(t.Context(), testInfra)
	require.Equal(t, []string{testInfra.ID}, h.resolver.Forgotten())
}

func TestMissingInfrastructureID(t *testing.T) {
	h := newHarness(t)
	_, err := h.connector.GetAllInstances(t.Context(), types.Infrastructure{})
	require.ErrorIs(t, err, ErrInvalidRequest)
}
