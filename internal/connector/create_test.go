package connector

import (
	"fmt"
	"strings"
	"testing"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/tags"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInstance(t *testing.T) {
	t.Run("replicas-share-network-and-security-group", func(t *testing.T) {
		h := newHarness(t)
		out := h.create(t, types.Instance{Tag: "web", Image: testImage, Number: 3})
		require.Len(t, out, 3)

		require.Len(t, h.cloud.VirtualNetworks, 1)
		require.Len(t, h.cloud.SecurityGroups, 1)
		require.Len(t, h.cloud.NetworkInterfaces, 3)
		require.Len(t, h.cloud.PublicIPs, 3)
		require.Len(t, h.cloud.Disks, 3)

		names := map[string]bool{}
		for _, spec := range h.cloud.Submitted {
			for _, n := range []string{spec.Name, spec.OSDiskName, spec.NetworkInterface.Name, spec.NetworkInterface.PublicIP.New.Name} {
				require.False(t, names[n], "duplicate name %q", n)
				names[n] = true
			}
		}
	})

	t.Run("replica-names", func(t *testing.T) {
		h := newHarness(t)
		out := h.create(t, types.Instance{Tag: "web", Image: testImage, Number: 3})
		var got []string
		for _, inst := range out {
			got = append(got, inst.Tag)
			require.Equal(t, 1, inst.Number)
			require.NotEmpty(t, inst.ID)
		}
		require.Equal(t, []string{"web", "web2", "web3"}, got)
	})

	t.Run("zero-number-creates-one", func(t *testing.T) {
		h := newHarness(t)
		out := h.create(t, types.Instance{Tag: "solo", Image: testImage})
		require.Len(t, out, 1)
		require.Equal(t, "solo", out[0].Tag)
		require.Equal(t, DefaultVMSize, out[0].Hardware.Type)
	})

	t.Run("existing-public-ip-only-on-first-replica", func(t *testing.T) {
		h := newHarness(t)
		existing := h.cloud.AddPublicIP("reserved", testRG, testLocation, "52.1.2.3")

		out := h.create(t, types.Instance{
			Tag:     "web",
			Image:   testImage,
			Number:  3,
			Options: &types.Options{PublicIPAddress: "52.1.2.3"},
		})
		require.Len(t, out, 3)

		first := h.vm(t, out[0].ID)
		nic := h.cloud.NetworkInterfaces[first.PrimaryNetworkInterfaceID()]
		require.Equal(t, existing.ID, nic.PrimaryPublicIPID())

		for _, inst := range out[1:] {
			vm := h.vm(t, inst.ID)
			nic := h.cloud.NetworkInterfaces[vm.PrimaryNetworkInterfaceID()]
			require.NotEqual(t, existing.ID, nic.PrimaryPublicIPID())
			require.NotEmpty(t, nic.PrimaryPublicIPID())
		}
	})

	t.Run("existing-network-and-security-group-win", func(t *testing.T) {
		h := newHarness(t)
		vnet := h.cloud.AddVirtualNetwork("shared-vnet", testRG, testLocation, "10.1.0.0/16")
		sg := h.cloud.AddSecurityGroup("shared-sg", testRG, testLocation)

		out := h.create(t, types.Instance{
			Tag:   "web",
			Image: testImage,
			Options: &types.Options{
				SubnetID:           "shared-vnet",
				SecurityGroupNames: []string{"shared-sg", "ignored"},
			},
		})

		require.Len(t, h.cloud.VirtualNetworks, 1)
		require.Len(t, h.cloud.SecurityGroups, 1)
		nic := h.cloud.NetworkInterfaces[h.vm(t, out[0].ID).PrimaryNetworkInterfaceID()]
		require.Equal(t, sg.ID, nic.SecurityGroupID)
		require.Equal(t, vnet.ID, nic.IPConfigurations[0].VirtualNetworkID)
	})

	t.Run("private-network-cidr", func(t *testing.T) {
		h := newHarness(t)
		h.create(t, types.Instance{Tag: "web", Image: testImage, Options: &types.Options{PrivateNetworkCIDR: "192.168.0.0/24"}})
		for _, vnet := range h.cloud.VirtualNetworks {
			require.Equal(t, []string{"192.168.0.0/24"}, vnet.AddressSpace)
		}
	})

	t.Run("dynamic-public-ip", func(t *testing.T) {
		h := newHarness(t)
		static := false
		h.create(t, types.Instance{Tag: "web", Image: testImage, Options: &types.Options{StaticPublicIP: &static}})
		for _, pip := range h.cloud.PublicIPs {
			require.False(t, pip.Static)
		}
	})

	t.Run("image-by-id", func(t *testing.T) {
		h := newHarness(t)
		out := h.create(t, types.Instance{Tag: "web", Image: h.image.ID})
		require.Len(t, out, 1)
		require.Equal(t, h.image.ID, h.cloud.Submitted[0].ImageID)
	})

	t.Run("image-name-wins-over-id", func(t *testing.T) {
		h := newHarness(t)
		named := h.cloud.AddImage(h.image.ID, testRG, testLocation, cloud.OSTypeLinux)
		h.create(t, types.Instance{Tag: "web", Image: h.image.ID})
		require.Equal(t, named.ID, h.cloud.Submitted[0].ImageID)
		require.NotEqual(t, h.image.ID, named.ID)
	})

	t.Run("region-label", func(t *testing.T) {
		h := newHarness(t)
		h.create(t, types.Instance{Tag: "web", Image: testImage, Options: &types.Options{Region: "East US"}})
		require.Equal(t, "eastus", h.cloud.Submitted[0].Location)
	})

	t.Run("resource-group-option", func(t *testing.T) {
		h := newHarness(t)
		h.cloud.AddResourceGroup("other-rg", "northeurope")
		h.create(t, types.Instance{Tag: "web", Image: testImage, Options: &types.Options{ResourceGroup: "other-rg"}})
		require.Equal(t, "other-rg", h.cloud.Submitted[0].ResourceGroup)
		require.Equal(t, testLocation, h.cloud.Submitted[0].Location)
	})

	t.Run("tags", func(t *testing.T) {
		h := newHarness(t)
		h.create(t, types.Instance{
			Tag:   "web",
			Image: testImage,
			Options: &types.Options{Tags: []types.Tag{
				{Key: tags.DefaultConnectorKey, Value: "spoofed"},
				{Key: "team", Value: "containers"},
			}},
		})
		want := map[string]string{
			tags.DefaultConnectorKey:      tags.DefaultConnectorValue,
			tags.DefaultInfrastructureKey: testInfra.ID,
			"team":                        "containers",
		}
		for _, vm := range h.cloud.VirtualMachines {
			require.Equal(t, want, vm.Tags)
		}
		for _, vnet := range h.cloud.VirtualNetworks {
			require.Equal(t, want, vnet.Tags)
		}
		for _, sg := range h.cloud.SecurityGroups {
			require.Equal(t, want, sg.Tags)
		}
		for _, pip := range h.cloud.PublicIPs {
			require.Equal(t, want, pip.Tags)
		}
		for _, nic := range h.cloud.NetworkInterfaces {
			require.Equal(t, want, nic.Tags)
		}
	})

	t.Run("init-scripts-single-extension", func(t *testing.T) {
		h := newHarness(t)
		out := h.create(t, types.Instance{Tag: "web", Image: testImage, InitScript: []string{"apt update", "touch /ok"}})
		exts := h.cloud.Extensions[h.vm(t, out[0].ID).ID]
		require.Len(t, exts, 1)
		for name, ext := range exts {
			require.True(t, strings.HasPrefix(name, "web-"))
			require.Equal(t, ScriptExtensionPublisher, ext.Publisher)
			require.Equal(t, ScriptExtensionType, ext.Type)
			require.Equal(t, ScriptExtensionVersion, ext.Version)
			require.Equal(t, "apt update;touch /ok;", ext.Settings[ScriptCommandSetting])
		}
	})

	t.Run("no-init-scripts-no-extension", func(t *testing.T) {
		h := newHarness(t)
		h.create(t, types.Instance{Tag: "web", Image: testImage})
		require.Empty(t, h.cloud.Submitted[0].Extensions)
	})
}

func TestCreateInstanceLogin(t *testing.T) {
	tests := []struct {
		name         string
		os           cloud.OSType
		creds        *types.Credentials
		wantUser     string
		wantPassword string
		wantKey      string
	}{{
		name:     "linux-key-wins",
		os:       cloud.OSTypeLinux,
		creds:    &types.Credentials{Username: "root", Password: "pw", PublicKey: "ssh-ed25519 AAAA"},
		wantUser: "root",
		wantKey:  "ssh-ed25519 AAAA",
	}, {
		name:         "linux-password",
		os:           cloud.OSTypeLinux,
		creds:        &types.Credentials{Username: "root", Password: "pw"},
		wantUser:     "root",
		wantPassword: "pw",
	}, {
		name:         "linux-defaults",
		os:           cloud.OSTypeLinux,
		wantUser:     DefaultUsername,
		wantPassword: testPassword,
	}, {
		name:         "windows-ignores-key",
		os:           cloud.OSTypeWindows,
		creds:        &types.Credentials{Username: "admin", Password: "pw", PublicKey: "ssh-ed25519 AAAA"},
		wantUser:     "admin",
		wantPassword: "pw",
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.cloud.AddImage("img-"+tt.name, testRG, testLocation, tt.os)
			h.create(t, types.Instance{Tag: "vm", Image: "img-" + tt.name, Credentials: tt.creds})
			spec := h.cloud.Submitted[0]
			assert.Equal(t, tt.os, spec.OSType)
			assert.Equal(t, tt.wantUser, spec.AdminUsername)
			assert.Equal(t, tt.wantPassword, spec.AdminPassword)
			assert.Equal(t, tt.wantKey, spec.SSHPublicKey)
		})
	}
}

func TestCreateInstanceErrors(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(h *harness)
		instance types.Instance
		opts     []Option
		want     error
		// remote says whether any provider call is expected at all.
		remote bool
	}{{
		name:     "missing-tag",
		instance: types.Instance{Image: testImage},
		want:     ErrInvalidRequest,
	}, {
		name:     "missing-image",
		instance: types.Instance{Tag: "vm"},
		want:     ErrInvalidRequest,
	}, {
		name:     "negative-number",
		instance: types.Instance{Tag: "vm", Image: testImage, Number: -1},
		want:     ErrInvalidRequest,
	}, {
		name:     "unknown-image",
		instance: types.Instance{Tag: "vm", Image: "nope"},
		want:     ErrImageNotFound,
		remote:   true,
	}, {
		name:     "unknown-resource-group",
		instance: types.Instance{Tag: "vm", Image: testImage, Options: &types.Options{ResourceGroup: "nope"}},
		want:     ErrResourceGroupNotFound,
		remote:   true,
	}, {
		name:     "unknown-region",
		instance: types.Instance{Tag: "vm", Image: testImage, Options: &types.Options{Region: "Atlantis"}},
		want:     ErrInvalidRequest,
		remote:   true,
	}, {
		name:     "unknown-network",
		instance: types.Instance{Tag: "vm", Image: testImage, Options: &types.Options{SubnetID: "nope"}},
		want:     ErrInvalidRequest,
		remote:   true,
	}, {
		name:     "unknown-security-group",
		instance: types.Instance{Tag: "vm", Image: testImage, Options: &types.Options{SecurityGroupNames: []string{"nope"}}},
		want:     ErrInvalidRequest,
		remote:   true,
	}, {
		name:     "unknown-public-ip",
		instance: types.Instance{Tag: "vm", Image: testImage, Options: &types.Options{PublicIPAddress: "1.1.1.1"}},
		want:     ErrPublicIPNotFound,
		remote:   true,
	}, {
		name: "unsupported-os",
		prepare: func(h *harness) {
			h.cloud.AddImage("bsd", testRG, testLocation, cloud.OSType("FreeBSD"))
		},
		instance: types.Instance{Tag: "vm", Image: "bsd"},
		want:     ErrUnsupportedOperatingSystem,
		remote:   true,
	}, {
		name:     "no-password",
		instance: types.Instance{Tag: "vm", Image: testImage},
		opts:     []Option{WithConfig(Config{})},
		want:     ErrInvalidRequest,
		remote:   true,
	}, {
		name: "provider-failure",
		prepare: func(h *harness) {
			h.cloud.FailOn("ListImages", fmt.Errorf("connection reset"))
		},
		instance: types.Instance{Tag: "vm", Image: testImage},
		want:     ErrProviderCommunication,
		remote:   true,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opts...)
			if tt.prepare != nil {
				tt.prepare(h)
			}
			_, err := h.connector.CreateInstance(t.Context(), testInfra, tt.instance)
			require.ErrorIs(t, err, tt.want)
			require.Empty(t, h.cloud.Writes(), "no remote write may happen")
			if !tt.remote {
				require.Empty(t, h.cloud.Calls())
			}
			require.Empty(t, h.cloud.VirtualMachines)
		})
	}
}

func TestCreateInstanceBatchFailure(t *testing.T) {
	h := newHarness(t)
	h.cloud.FailOn("CreateVirtualMachines", fmt.Errorf("quota exceeded"))
	_, err := h.connector.CreateInstance(t.Context(), testInfra, types.Instance{Tag: "vm", Image: testImage, Number: 2})
	require.ErrorIs(t, err, ErrProviderCommunication)
	require.ErrorContains(t, err, "quota exceeded")
	require.Equal(t, 1, h.cloud.CallCount("CreateVirtualMachines"))
}
