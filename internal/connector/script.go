package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/naming"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/o11y"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ScriptExtensionPublisher = "Microsoft.Azure.Extensions"
	ScriptExtensionType      = "CustomScript"
	ScriptExtensionVersion   = "2.0"
	// ScriptCommandSetting is the extension setting holding the command line.
	ScriptCommandSetting = "commandToExecute"

	scriptSeparator = ";"
)

// ScriptRunner runs a command line on a VM through the provider's extension
// mechanism.
//
// The extension mechanism only re-runs an extension whose settings changed,
// so UpdateAndRerun must make sure the submitted settings differ from the
// previous ones even when the command is the same.
type ScriptRunner interface {
	// InstallAndRun installs a new script extension on the VM and runs it.
	InstallAndRun(ctx context.Context, cl cloud.Cloud, vm cloud.VirtualMachine, command string) error
	// UpdateAndRerun replaces the command of the existing extension ext and
	// runs it again.
	UpdateAndRerun(ctx context.Context, cl cloud.Cloud, vm cloud.VirtualMachine, ext cloud.Extension, command string) error
}

// CustomScriptRunner runs scripts with the Linux CustomScript extension. A
// re-run is forced by prefixing the command with a unique marker.
type CustomScriptRunner struct{}

var _ ScriptRunner = CustomScriptRunner{}

func (CustomScriptRunner) InstallAndRun(ctx context.Context, cl cloud.Cloud, vm cloud.VirtualMachine, command string) error {
	return cl.PutExtension(ctx, vm.ID, scriptExtension(naming.Extension(vm.Name), command))
}

func (CustomScriptRunner) UpdateAndRerun(ctx context.Context, cl cloud.Cloud, vm cloud.VirtualMachine, ext cloud.Extension, command string) error {
	return cl.PutExtension(ctx, vm.ID, scriptExtension(ext.Name, rerunMarker()+command))
}

// rerunMarker is a no-op command line fragment that is unique per call.
func rerunMarker() string {
	return "echo script-ID" + scriptSeparator + "echo " + uuid.NewString() + scriptSeparator
}

func scriptExtension(name, command string) cloud.ExtensionSpec {
	return cloud.ExtensionSpec{
		Name:                    name,
		Publisher:               ScriptExtensionPublisher,
		Type:                    ScriptExtensionType,
		Version:                 ScriptExtensionVersion,
		AutoUpgradeMinorVersion: true,
		Settings: map[string]any{
			ScriptCommandSetting: command,
		},
	}
}

// joinScripts concatenates scripts into one command line, each followed by
// the separator.
func joinScripts(scripts []string) string {
	var b strings.Builder
	for _, s := range scripts {
		b.WriteString(s)
		b.WriteString(scriptSeparator)
	}
	return b.String()
}

func isScriptExtension(ext cloud.Extension) bool {
	return strings.EqualFold(ext.Publisher, ScriptExtensionPublisher) &&
		strings.EqualFold(ext.Type, ScriptExtensionType)
}

// ExecuteScript runs scripts, in order, on the instance identified by
// instanceID. It returns one empty result per script once the provider
// accepted the execution. An empty scripts list is rejected with
// ErrInvalidRequest rather than applying an extension that runs nothing.
func (c *Connector) ExecuteScript(ctx context.Context, infra types.Infrastructure, instanceID string, scripts []string) (_ []types.ScriptResult, err error) {
	ctx, span := o11y.Start(ctx, "connector.ExecuteScript",
		attribute.String(o11y.AttrInfrastructureID, infra.ID),
		attribute.String(o11y.AttrInstanceID, instanceID))
	defer o11y.End(span, &err)

	if len(scripts) == 0 {
		return nil, fmt.Errorf("%w: at least one script is required", ErrInvalidRequest)
	}

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return nil, err
	}
	vm, err := findVirtualMachine(ctx, cl, instanceID)
	if err != nil {
		return nil, err
	}
	return c.executeScript(ctx, cl, vm, scripts)
}

// ExecuteScriptByTag runs scripts on every instance named tag.
func (c *Connector) ExecuteScriptByTag(ctx context.Context, infra types.Infrastructure, tag string, scripts []string) (_ []types.ScriptResult, err error) {
	ctx, span := o11y.Start(ctx, "connector.ExecuteScriptByTag",
		attribute.String(o11y.AttrInfrastructureID, infra.ID),
		attribute.String(o11y.AttrInstanceTag, tag))
	defer o11y.End(span, &err)

	if len(scripts) == 0 {
		return nil, fmt.Errorf("%w: at least one script is required", ErrInvalidRequest)
	}

	cl, err := c.cloud(ctx, infra)
	if err != nil {
		return nil, err
	}
	vms, err := virtualMachinesTagged(ctx, cl, tag)
	if err != nil {
		return nil, err
	}

	var out []types.ScriptResult
	for _, vm := range vms {
		res, err := c.executeScript(ctx, cl, vm, scripts)
		if err != nil {
			return out, err
		}
		out = append(out, res...)
	}
	return out, nil
}

func (c *Connector) executeScript(ctx context.Context, cl cloud.Cloud, vm cloud.VirtualMachine, scripts []string) ([]types.ScriptResult, error) {
	log := clog.FromContext(ctx).With(o11y.AttrInstanceID, vm.VMID, "vm", vm.Name)
	command := joinScripts(scripts)

	exts, err := cl.ListExtensions(ctx, vm.ID)
	if err != nil {
		return nil, providerErr(err, "listing extensions of %q", vm.Name)
	}

	var existing *cloud.Extension
	for _, ext := range exts {
		if isScriptExtension(ext) {
			existing = &ext
			break
		}
	}

	if existing != nil {
		log.Info("re-running script extension", "extension", existing.Name, "scripts", len(scripts))
		err = c.scripts.UpdateAndRerun(ctx, cl, vm, *existing, command)
	} else {
		log.Info("installing script extension", "scripts", len(scripts))
		err = c.scripts.InstallAndRun(ctx, cl, vm, command)
	}
	if err != nil {
		return nil, providerErr(err, "running scripts on %q", vm.Name)
	}

	out := make([]types.ScriptResult, len(scripts))
	for i := range out {
		out[i] = types.ScriptResult{InstanceID: vm.VMID}
	}
	return out, nil
}
