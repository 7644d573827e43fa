package connector

import (
	"fmt"
	"testing"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/tags"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/stretchr/testify/require"
)

func TestDeleteInstance(t *testing.T) {
	t.Run("order-and-cleanup", func(t *testing.T) {
		h := newHarness(t)
		out := h.create(t, types.Instance{Tag: "vm", Image: testImage})
		h.cloud.ResetCalls()

		require.NoError(t, h.connector.DeleteInstance(t.Context(), testInfra, out[0].ID))
		require.Equal(t, []string{
			"DeleteVirtualMachine",
			"DeleteNetworkInterface",
			"DeletePublicIP",
			"DeleteDisk",
			"DeleteSecurityGroup",
			"DeleteVirtualNetwork",
		}, h.cloud.Writes())

		require.Empty(t, h.cloud.VirtualMachines)
		require.Empty(t, h.cloud.NetworkInterfaces)
		require.Empty(t, h.cloud.PublicIPs)
		require.Empty(t, h.cloud.Disks)
		require.Empty(t, h.cloud.SecurityGroups)
		require.Empty(t, h.cloud.VirtualNetworks)

		all, err := h.connector.GetAllInstances(t.Context(), testInfra)
		require.NoError(t, err)
		var ids []string
		for _, inst := range all {
			ids = append(ids, inst.ID)
		}
		require.NotContains(t, ids, out[0].ID)
	})

	t.Run("shared-resources-survive-until-last-replica", func(t *testing.T) {
		h := newHarness(t)
		out := h.create(t, types.Instance{Tag: "vm", Image: testImage, Number: 2})

		require.NoError(t, h.connector.DeleteInstance(t.Context(), testInfra, out[0].ID))
		require.Len(t, h.cloud.VirtualMachines, 1)
		require.Len(t, h.cloud.SecurityGroups, 1)
		require.Len(t, h.cloud.VirtualNetworks, 1)
		require.Len(t, h.cloud.NetworkInterfaces, 1)
		require.Len(t, h.cloud.PublicIPs, 1)

		require.NoError(t, h.connector.DeleteInstance(t.Context(), testInfra, out[1].ID))
		require.Empty(t, h.cloud.SecurityGroups)
		require.Empty(t, h.cloud.VirtualNetworks)
	})

	t.Run("existing-security-group-kept-while-referenced", func(t *testing.T) {
		h := newHarness(t)
		h.cloud.AddSecurityGroup("shared-sg", testRG, testLocation)
		a := h.create(t, types.Instance{Tag: "a", Image: testImage, Options: &types.Options{SecurityGroupNames: []string{"shared-sg"}}})
		h.create(t, types.Instance{Tag: "b", Image: testImage, Options: &types.Options{SecurityGroupNames: []string{"shared-sg"}}})

		require.NoError(t, h.connector.DeleteInstance(t.Context(), testInfra, a[0].ID))
		require.Len(t, h.cloud.SecurityGroups, 1)
		// Each request had its own virtual network; a's is gone.
		require.Len(t, h.cloud.VirtualNetworks, 1)
	})

	t.Run("unknown-instance", func(t *testing.T) {
		h := newHarness(t)
		err := h.connector.DeleteInstance(t.Context(), testInfra, "does-not-exist")
		require.ErrorIs(t, err, ErrInstanceNotFound)
		require.Empty(t, h.cloud.Writes())
	})

	t.Run("failure-aborts", func(t *testing.T) {
		h := newHarness(t)
		out := h.create(t, types.Instance{Tag: "vm", Image: testImage})
		h.cloud.FailOn("DeleteNetworkInterface", fmt.Errorf("throttled"))

		err := h.connector.DeleteInstance(t.Context(), testInfra, out[0].ID)
		require.ErrorIs(t, err, ErrProviderCommunication)
		require.ErrorContains(t, err, "throttled")
		require.Empty(t, h.cloud.VirtualMachines)
		require.Len(t, h.cloud.PublicIPs, 1)
		require.Zero(t, h.cloud.CallCount("DeletePublicIP"))
	})
}

func TestDeleteInstanceByTag(t *testing.T) {
	h := newHarness(t)
	h.create(t, types.Instance{Tag: "web", Image: testImage, Number: 2})
	h.create(t, types.Instance{Tag: "db", Image: testImage})

	require.NoError(t, h.connector.DeleteInstanceByTag(t.Context(), testInfra, "web"))
	remaining, err := h.connector.GetAllInstances(t.Context(), testInfra)
	require.NoError(t, err)
	// Only the exact name matches; the second replica is named web2.
	var names []string
	for _, inst := range remaining {
		names = append(names, inst.Tag)
	}
	require.ElementsMatch(t, []string{"web2", "db"}, names)

	require.NoError(t, h.connector.DeleteInstanceByTag(t.Context(), testInfra, "nothing"))
}

func TestDeleteCreatedInstances(t *testing.T) {
	h := newHarness(t)
	h.create(t, types.Instance{Tag: "mine", Image: testImage, Number: 2})

	foreign := New(h.resolver,
		WithConfig(Config{DefaultPassword: testPassword}),
		WithTagCollector(tags.New("owner", "someone-else", "")))
	_, err := foreign.CreateInstance(t.Context(), testInfra, types.Instance{Tag: "theirs", Image: testImage})
	require.NoError(t, err)

	require.NoError(t, h.connector.DeleteCreatedInstances(t.Context(), testInfra))

	left, err := h.connector.GetAllInstances(t.Context(), testInfra)
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, "theirs", left[0].Tag)
}
