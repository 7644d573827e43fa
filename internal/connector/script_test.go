package connector

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinScripts(t *testing.T) {
	tests := []struct {
		name    string
		scripts []string
		want    string
	}{
		{name: "one", scripts: []string{"uptime"}, want: "uptime;"},
		{name: "many", scripts: []string{"cd /tmp", "touch a", "ls"}, want: "cd /tmp;touch a;ls;"},
		{name: "none", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinScripts(tt.scripts))
		})
	}
}

func TestRerunMarker(t *testing.T) {
	a, b := rerunMarker(), rerunMarker()
	require.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a, "echo script-ID;echo "))
	require.True(t, strings.HasSuffix(a, ";"))
}

func TestExecuteScript(t *testing.T) {
	t.Run("first-run-installs", func(t *testing.T) {
		h := newHarness(t)
		out := h.create(t, types.Instance{Tag: "vm", Image: testImage})
		h.cloud.ResetCalls()

		res, err := h.connector.ExecuteScript(t.Context(), testInfra, out[0].ID, []string{"uptime", "df -h"})
		require.NoError(t, err)
		require.Equal(t, []types.ScriptResult{{InstanceID: out[0].ID}, {InstanceID: out[0].ID}}, res)
		require.Equal(t, []string{"PutExtension"}, h.cloud.Writes())

		exts := h.cloud.Extensions[h.vm(t, out[0].ID).ID]
		require.Len(t, exts, 1)
		for _, ext := range exts {
			require.Equal(t, "uptime;df -h;", ext.Settings[ScriptCommandSetting])
		}
	})

	t.Run("rerun-updates-same-extension", func(t *testing.T) {
		h := newHarness(t)
		out := h.create(t, types.Instance{Tag: "vm", Image: testImage, InitScript: []string{"boot"}})
		vmID := h.vm(t, out[0].ID).ID

		var name string
		for n := range h.cloud.Extensions[vmID] {
			name = n
		}

		var commands []string
		for range 2 {
			_, err := h.connector.ExecuteScript(t.Context(), testInfra, out[0].ID, []string{"uptime"})
			require.NoError(t, err)
			require.Len(t, h.cloud.Extensions[vmID], 1)
			ext, ok := h.cloud.Extensions[vmID][name]
			require.True(t, ok, "extension %q replaced", name)
			cmd, _ := ext.Settings[ScriptCommandSetting].(string)
			require.True(t, strings.HasPrefix(cmd, "echo script-ID;echo "), cmd)
			require.True(t, strings.HasSuffix(cmd, ";uptime;"), cmd)
			commands = append(commands, cmd)
		}
		require.NotEqual(t, commands[0], commands[1])
	})

	t.Run("empty", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.connector.ExecuteScript(t.Context(), testInfra, "whatever", nil)
		require.ErrorIs(t, err, ErrInvalidRequest)
		require.Empty(t, h.cloud.Calls())
	})

	t.Run("unknown-instance", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.connector.ExecuteScript(t.Context(), testInfra, "nope", []string{"uptime"})
		require.ErrorIs(t, err, ErrInstanceNotFound)
	})

	t.Run("provider-failure", func(t *testing.T) {
		h := newHarness(t)
		out := h.create(t, types.Instance{Tag: "vm", Image: testImage})
		h.cloud.FailOn("PutExtension", fmt.Errorf("extension handler busy"))
		_, err := h.connector.ExecuteScript(t.Context(), testInfra, out[0].ID, []string{"uptime"})
		require.ErrorIs(t, err, ErrProviderCommunication)
		require.ErrorContains(t, err, "extension handler busy")
	})
}

type recordingRunner struct {
	installs []string
	reruns   []string
}

func (r *recordingRunner) InstallAndRun(_ context.Context, _ cloud.Cloud, vm cloud.VirtualMachine, command string) error {
	r.installs = append(r.installs, vm.Name+":"+command)
	return nil
}

func (r *recordingRunner) UpdateAndRerun(_ context.Context, _ cloud.Cloud, vm cloud.VirtualMachine, ext cloud.Extension, command string) error {
	r.reruns = append(r.reruns, vm.Name+":"+ext.Name+":"+command)
	return nil
}

func TestExecuteScriptCustomRunner(t *testing.T) {
	runner := &recordingRunner{}
	h := newHarness(t, WithScriptRunner(runner))
	out := h.create(t, types.Instance{Tag: "vm", Image: testImage})

	_, err := h.connector.ExecuteScript(t.Context(), testInfra, out[0].ID, []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, []string{"vm:a;b;"}, runner.installs)
	require.Empty(t, runner.reruns)
	require.Zero(t, h.cloud.CallCount("PutExtension"))
}

func TestExecuteScriptByTag(t *testing.T) {
	h := newHarness(t)
	h.cloud.AddResourceGroup("rg-other", testLocation)
	a := h.create(t, types.Instance{Tag: "worker", Image: testImage})
	b := h.create(t, types.Instance{Tag: "worker", Image: testImage, Options: &types.Options{ResourceGroup: "rg-other"}})

	res, err := h.connector.ExecuteScriptByTag(t.Context(), testInfra, "worker", []string{"uptime"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	var ids []string
	for _, r := range res {
		ids = append(ids, r.InstanceID)
	}
	require.ElementsMatch(t, []string{a[0].ID, b[0].ID}, ids)

	_, err = h.connector.ExecuteScriptByTag(t.Context(), testInfra, "nobody", []string{"uptime"})
	require.ErrorIs(t, err, ErrInstanceNotFound)
}
