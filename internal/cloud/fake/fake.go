// Package fake provides an in-memory cloud.Cloud. It enforces the same
// reference constraints the real provider does (in-use resources cannot be
// deleted), records every call, and can be told to fail specific methods.
package fake

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
	"github.com/chainguard-dev/terraform-provider-iaas/internal/types"
	"github.com/google/uuid"
)

const subscription = "00000000-0000-0000-0000-000000000000"

var _ cloud.Cloud = &Cloud{}

// Cloud simulates a provider account.
type Cloud struct {
	mu sync.Mutex

	Images            []cloud.Image
	ResourceGroups    map[string]*cloud.ResourceGroup
	Regions           map[string]string
	VirtualMachines   map[string]*cloud.VirtualMachine
	NetworkInterfaces map[string]*cloud.NetworkInterface
	VirtualNetworks   map[string]*cloud.VirtualNetwork
	SecurityGroups    map[string]*cloud.SecurityGroup
	PublicIPs         map[string]*cloud.PublicIP
	Disks             map[string]string
	Extensions        map[string]map[string]*cloud.Extension

	// Submitted records every VM spec passed to CreateVirtualMachines.
	Submitted []cloud.VirtualMachineSpec

	calls    []string
	failures map[string]error
	nextIP   int
}

func New() *Cloud {
	return &Cloud{
		ResourceGroups: make(map[string]*cloud.ResourceGroup),
		Regions: map[string]string{
			"West Europe":  "westeurope",
			"East US":      "eastus",
			"North Europe": "northeurope",
		},
		VirtualMachines:   make(map[string]*cloud.VirtualMachine),
		NetworkInterfaces: make(map[string]*cloud.NetworkInterface),
		VirtualNetworks:   make(map[string]*cloud.VirtualNetwork),
		SecurityGroups:    make(map[string]*cloud.SecurityGroup),
		PublicIPs:         make(map[string]*cloud.PublicIP),
		Disks:             make(map[string]string),
		Extensions:        make(map[string]map[string]*cloud.Extension),
		failures:          make(map[string]error),
	}
}

// FailOn makes every subsequent call of method return err.
func (f *Cloud) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = err
}

// Calls returns the names of the methods invoked so far, in order.
func (f *Cloud) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Writes returns the invoked methods that mutate remote state.
func (f *Cloud) Writes() []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, "Create") || strings.HasPrefix(c, "Delete") ||
			strings.HasPrefix(c, "Attach") || strings.HasPrefix(c, "Set") ||
			strings.HasPrefix(c, "Put") {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns how many times method was invoked.
func (f *Cloud) CallCount(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded calls.
func (f *Cloud) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// enter records the call and returns any injected failure. Callers must hold
// f.mu.
func (f *Cloud) enter(method string) error {
	f.calls = append(f.calls, method)
	if err, ok := f.failures[method]; ok {
		return err
	}
	return nil
}

func id(rg, kind, name string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/%s/%s", subscription, rg, kind, name)
}

func (f *Cloud) allocate(prefix string) string {
	f.nextIP++
	return fmt.Sprintf("%s.%d.%d", prefix, f.nextIP/250, f.nextIP%250+1)
}

// AddImage registers a custom image.
func (f *Cloud) AddImage(name, rg, location string, os cloud.OSType) cloud.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	img := cloud.Image{
		ID:            id(rg, "Microsoft.Compute/images", name),
		Name:          name,
		ResourceGroup: rg,
		Location:      location,
		OSType:        os,
	}
	f.Images = append(f.Images, img)
	return img
}

// AddResourceGroup registers a resource group.
func (f *Cloud) AddResourceGroup(name, location string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResourceGroups[strings.ToLower(name)] = &cloud.ResourceGroup{
		ID:       fmt.Sprintf("/subscriptions/%s/resourceGroups/%s", subscription, name),
		Name:     name,
		Location: location,
	}
}

// AddPublicIP registers an idle public IP with the given literal address.
func (f *Cloud) AddPublicIP(name, rg, location, address string) cloud.PublicIP {
	f.mu.Lock()
	defer f.mu.Unlock()
	pip := &cloud.PublicIP{
		ID:            id(rg, "Microsoft.Network/publicIPAddresses", name),
		Name:          name,
		ResourceGroup: rg,
		Location:      location,
		Address:       address,
		Static:        true,
	}
	f.PublicIPs[pip.ID] = pip
	return *pip
}

// AddVirtualNetwork registers an existing network with one subnet.
func (f *Cloud) AddVirtualNetwork(name, rg, location, cidr string) cloud.VirtualNetwork {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.createVirtualNetwork(cloud.VirtualNetworkSpec{
		Name:          name,
		ResourceGroup: rg,
		Location:      location,
		AddressPrefix: cidr,
		SubnetName:    "default",
	})
}

// AddSecurityGroup registers an existing security group.
func (f *Cloud) AddSecurityGroup(name, rg, location string) cloud.SecurityGroup {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.createSecurityGroup(cloud.SecurityGroupSpec{Name: name, ResourceGroup: rg, Location: location})
}

func (f *Cloud) ListImages(_ context.Context) ([]cloud.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListImages"); err != nil {
		return nil, err
	}
	return slices.Clone(f.Images), nil
}

func (f *Cloud) GetResourceGroup(_ context.Context, name string) (*cloud.ResourceGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetResourceGroup"); err != nil {
		return nil, err
	}
	rg, ok := f.ResourceGroups[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: resource group %q", cloud.ErrNotFound, name)
	}
	out := *rg
	return &out, nil
}

func (f *Cloud) ResolveRegion(_ context.Context, labelOrName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ResolveRegion"); err != nil {
		return "", err
	}
	for label, name := range f.Regions {
		if strings.EqualFold(label, labelOrName) || strings.EqualFold(name, labelOrName) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: region %q", cloud.ErrNotFound, labelOrName)
}

func (f *Cloud) ListVirtualMachines(_ context.Context) ([]cloud.VirtualMachine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListVirtualMachines"); err != nil {
		return nil, err
	}
	return sorted(f.VirtualMachines), nil
}

func (f *Cloud) CreateVirtualMachines(_ context.Context, specs []cloud.VirtualMachineSpec) ([]cloud.VirtualMachine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateVirtualMachines"); err != nil {
		return nil, err
	}

	f.Submitted = append(f.Submitted, specs...)

	out := make([]cloud.VirtualMachine, 0, len(specs))
	for _, spec := range specs {
		vmID := id(spec.ResourceGroup, "Microsoft.Compute/virtualMachines", spec.Name)
		if _, ok := f.VirtualMachines[vmID]; ok {
			return out, fmt.Errorf("virtual machine %q already exists", spec.Name)
		}

		nic, err := f.createNetworkInterface(spec.NetworkInterface)
		if err != nil {
			return out, err
		}
		nic.VirtualMachineID = vmID

		diskID := id(spec.ResourceGroup, "Microsoft.Compute/disks", spec.OSDiskName)
		f.Disks[diskID] = spec.OSDiskName

		vm := &cloud.VirtualMachine{
			ID:                  vmID,
			VMID:                uuid.NewString(),
			Name:                spec.Name,
			ResourceGroup:       spec.ResourceGroup,
			Location:            spec.Location,
			Size:                spec.Size,
			PowerState:          "PowerState/running",
			Tags:                maps.Clone(spec.Tags),
			NetworkInterfaceIDs: []string{nic.ID},
			OSDiskID:            diskID,
		}
		f.VirtualMachines[vmID] = vm

		for _, ext := range spec.Extensions {
			f.putExtension(vmID, ext)
		}
		out = append(out, *vm)
	}
	return out, nil
}

func (f *Cloud) DeleteVirtualMachine(_ context.Context, vmID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteVirtualMachine"); err != nil {
		return err
	}
	vm, ok := f.VirtualMachines[vmID]
	if !ok {
		return fmt.Errorf("%w: virtual machine %q", cloud.ErrNotFound, vmID)
	}
	for _, nicID := range vm.NetworkInterfaceIDs {
		if nic, ok := f.NetworkInterfaces[nicID]; ok {
			nic.VirtualMachineID = ""
		}
	}
	delete(f.VirtualMachines, vmID)
	delete(f.Extensions, vmID)
	return nil
}

func (f *Cloud) AttachNetworkInterface(_ context.Context, vmID, nicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AttachNetworkInterface"); err != nil {
		return err
	}
	vm, ok := f.VirtualMachines[vmID]
	if !ok {
		return fmt.Errorf("%w: virtual machine %q", cloud.ErrNotFound, vmID)
	}
	nic, ok := f.NetworkInterfaces[nicID]
	if !ok {
		return fmt.Errorf("%w: network interface %q", cloud.ErrNotFound, nicID)
	}
	if nic.VirtualMachineID != "" {
		return fmt.Errorf("network interface %q is already attached to %q", nicID, nic.VirtualMachineID)
	}
	vm.NetworkInterfaceIDs = append(vm.NetworkInterfaceIDs, nicID)
	nic.VirtualMachineID = vmID
	return nil
}

func (f *Cloud) ListNetworkInterfaces(_ context.Context) ([]cloud.NetworkInterface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListNetworkInterfaces"); err != nil {
		return nil, err
	}
	out := sorted(f.NetworkInterfaces)
	for i := range out {
		out[i].IPConfigurations = slices.Clone(out[i].IPConfigurations)
	}
	return out, nil
}

func (f *Cloud) GetNetworkInterface(_ context.Context, nicID string) (*cloud.NetworkInterface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetNetworkInterface"); err != nil {
		return nil, err
	}
	nic, ok := f.NetworkInterfaces[nicID]
	if !ok {
		return nil, fmt.Errorf("%w: network interface %q", cloud.ErrNotFound, nicID)
	}
	out := *nic
	out.IPConfigurations = slices.Clone(nic.IPConfigurations)
	return &out, nil
}

func (f *Cloud) CreateNetworkInterface(_ context.Context, spec cloud.NetworkInterfaceSpec) (*cloud.NetworkInterface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateNetworkInterface"); err != nil {
		return nil, err
	}
	nic, err := f.createNetworkInterface(spec)
	if err != nil {
		return nil, err
	}
	out := *nic
	return &out, nil
}

func (f *Cloud) SetPublicIP(_ context.Context, nicID, publicIPID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SetPublicIP"); err != nil {
		return err
	}
	nic, ok := f.NetworkInterfaces[nicID]
	if !ok {
		return fmt.Errorf("%w: network interface %q", cloud.ErrNotFound, nicID)
	}
	idx := primaryIndex(nic)
	if idx < 0 {
		return fmt.Errorf("network interface %q has no primary ip configuration", nicID)
	}

	var next *cloud.PublicIP
	if publicIPID != "" {
		next, ok = f.PublicIPs[publicIPID]
		if !ok {
			return fmt.Errorf("%w: public ip %q", cloud.ErrNotFound, publicIPID)
		}
		if next.IPConfigurationID != "" && next.IPConfigurationID != ipConfigID(nic, idx) {
			return fmt.Errorf("public ip %q is in use by %q", publicIPID, next.IPConfigurationID)
		}
	}

	if prev, ok := f.PublicIPs[nic.IPConfigurations[idx].PublicIPID]; ok {
		prev.IPConfigurationID = ""
	}
	nic.IPConfigurations[idx].PublicIPID = publicIPID
	if next != nil {
		next.IPConfigurationID = ipConfigID(nic, idx)
	}
	return nil
}

func (f *Cloud) DeleteNetworkInterface(_ context.Context, nicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteNetworkInterface"); err != nil {
		return err
	}
	nic, ok := f.NetworkInterfaces[nicID]
	if !ok {
		return fmt.Errorf("%w: network interface %q", cloud.ErrNotFound, nicID)
	}
	if _, attached := f.VirtualMachines[nic.VirtualMachineID]; attached {
		return fmt.Errorf("network interface %q is attached to %q", nicID, nic.VirtualMachineID)
	}
	for i, c := range nic.IPConfigurations {
		if pip, ok := f.PublicIPs[c.PublicIPID]; ok && pip.IPConfigurationID == ipConfigID(nic, i) {
			pip.IPConfigurationID = ""
		}
	}
	delete(f.NetworkInterfaces, nicID)
	return nil
}

func (f *Cloud) ListVirtualNetworks(_ context.Context) ([]cloud.VirtualNetwork, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListVirtualNetworks"); err != nil {
		return nil, err
	}
	return sorted(f.VirtualNetworks), nil
}

func (f *Cloud) DeleteVirtualNetwork(_ context.Context, vnetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteVirtualNetwork"); err != nil {
		return err
	}
	if _, ok := f.VirtualNetworks[vnetID]; !ok {
		return fmt.Errorf("%w: virtual network %q", cloud.ErrNotFound, vnetID)
	}
	for _, nic := range f.NetworkInterfaces {
		for _, c := range nic.IPConfigurations {
			if c.VirtualNetworkID == vnetID {
				return fmt.Errorf("virtual network %q is in use by %q", vnetID, nic.ID)
			}
		}
	}
	delete(f.VirtualNetworks, vnetID)
	return nil
}

func (f *Cloud) ListSecurityGroups(_ context.Context) ([]cloud.SecurityGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListSecurityGroups"); err != nil {
		return nil, err
	}
	return sorted(f.SecurityGroups), nil
}

func (f *Cloud) DeleteSecurityGroup(_ context.Context, sgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteSecurityGroup"); err != nil {
		return err
	}
	if _, ok := f.SecurityGroups[sgID]; !ok {
		return fmt.Errorf("%w: security group %q", cloud.ErrNotFound, sgID)
	}
	for _, nic := range f.NetworkInterfaces {
		if nic.SecurityGroupID == sgID {
			return fmt.Errorf("security group %q is in use by %q", sgID, nic.ID)
		}
	}
	delete(f.SecurityGroups, sgID)
	return nil
}

func (f *Cloud) ListPublicIPs(_ context.Context) ([]cloud.PublicIP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListPublicIPs"); err != nil {
		return nil, err
	}
	return sorted(f.PublicIPs), nil
}

func (f *Cloud) CreatePublicIP(_ context.Context, spec cloud.PublicIPSpec) (*cloud.PublicIP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreatePublicIP"); err != nil {
		return nil, err
	}
	out := *f.createPublicIP(spec)
	return &out, nil
}

func (f *Cloud) DeletePublicIP(_ context.Context, pipID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeletePublicIP"); err != nil {
		return err
	}
	pip, ok := f.PublicIPs[pipID]
	if !ok {
		return fmt.Errorf("%w: public ip %q", cloud.ErrNotFound, pipID)
	}
	if pip.IPConfigurationID != "" {
		return fmt.Errorf("public ip %q is in use by %q", pipID, pip.IPConfigurationID)
	}
	delete(f.PublicIPs, pipID)
	return nil
}

func (f *Cloud) DeleteDisk(_ context.Context, diskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteDisk"); err != nil {
		return err
	}
	if _, ok := f.Disks[diskID]; !ok {
		return fmt.Errorf("%w: disk %q", cloud.ErrNotFound, diskID)
	}
	for _, vm := range f.VirtualMachines {
		if vm.OSDiskID == diskID {
			return fmt.Errorf("disk %q is in use by %q", diskID, vm.ID)
		}
	}
	delete(f.Disks, diskID)
	return nil
}

func (f *Cloud) ListExtensions(_ context.Context, vmID string) ([]cloud.Extension, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListExtensions"); err != nil {
		return nil, err
	}
	if _, ok := f.VirtualMachines[vmID]; !ok {
		return nil, fmt.Errorf("%w: virtual machine %q", cloud.ErrNotFound, vmID)
	}
	var out []cloud.Extension
	for _, name := range slices.Sorted(maps.Keys(f.Extensions[vmID])) {
		ext := *f.Extensions[vmID][name]
		ext.Settings = maps.Clone(ext.Settings)
		out = append(out, ext)
	}
	return out, nil
}

func (f *Cloud) PutExtension(_ context.Context, vmID string, spec cloud.ExtensionSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutExtension"); err != nil {
		return err
	}
	if _, ok := f.VirtualMachines[vmID]; !ok {
		return fmt.Errorf("%w: virtual machine %q", cloud.ErrNotFound, vmID)
	}
	f.putExtension(vmID, spec)
	return nil
}

func (f *Cloud) putExtension(vmID string, spec cloud.ExtensionSpec) {
	if f.Extensions[vmID] == nil {
		f.Extensions[vmID] = make(map[string]*cloud.Extension)
	}
	f.Extensions[vmID][spec.Name] = &cloud.Extension{
		Name:      spec.Name,
		Publisher: spec.Publisher,
		Type:      spec.Type,
		Version:   spec.Version,
		Settings:  maps.Clone(spec.Settings),
	}
}

func (f *Cloud) createNetworkInterface(spec cloud.NetworkInterfaceSpec) (*cloud.NetworkInterface, error) {
	subnetID, vnetID, err := f.resolveNetwork(spec.Network)
	if err != nil {
		return nil, err
	}

	sgID := spec.SecurityGroup.ExistingID
	if sgID == "" && spec.SecurityGroup.New != nil {
		sgID = f.createSecurityGroup(*spec.SecurityGroup.New).ID
	} else if sgID != "" {
		if _, ok := f.SecurityGroups[sgID]; !ok {
			return nil, fmt.Errorf("%w: security group %q", cloud.ErrNotFound, sgID)
		}
	}

	pipID := spec.PublicIP.ExistingID
	if pipID == "" && spec.PublicIP.New != nil {
		pipID = f.createPublicIP(*spec.PublicIP.New).ID
	}
	if pipID != "" {
		pip, ok := f.PublicIPs[pipID]
		if !ok {
			return nil, fmt.Errorf("%w: public ip %q", cloud.ErrNotFound, pipID)
		}
		if pip.IPConfigurationID != "" {
			return nil, fmt.Errorf("public ip %q is in use by %q", pipID, pip.IPConfigurationID)
		}
	}

	nicID := id(spec.ResourceGroup, "Microsoft.Network/networkInterfaces", spec.Name)
	if _, ok := f.NetworkInterfaces[nicID]; ok {
		return nil, fmt.Errorf("network interface %q already exists", spec.Name)
	}
	nic := &cloud.NetworkInterface{
		ID:              nicID,
		Name:            spec.Name,
		ResourceGroup:   spec.ResourceGroup,
		Location:        spec.Location,
		SecurityGroupID: sgID,
		IPConfigurations: []cloud.IPConfiguration{{
			Name:             "ipconfig1",
			Primary:          true,
			SubnetID:         subnetID,
			VirtualNetworkID: vnetID,
			PrivateIP:        f.allocate("10.0"),
			PublicIPID:       pipID,
		}},
		Tags: maps.Clone(spec.Tags),
	}
	if pipID != "" {
		f.PublicIPs[pipID].IPConfigurationID = ipConfigID(nic, 0)
	}
	f.NetworkInterfaces[nicID] = nic
	return nic, nil
}

func (f *Cloud) resolveNetwork(ref cloud.NetworkRef) (string, string, error) {
	switch {
	case ref.SubnetID != "":
		vnetID, _, ok := strings.Cut(ref.SubnetID, "/subnets/")
		if !ok {
			return "", "", fmt.Errorf("malformed subnet id %q", ref.SubnetID)
		}
		if _, exists := f.VirtualNetworks[vnetID]; !exists {
			return "", "", fmt.Errorf("%w: virtual network %q", cloud.ErrNotFound, vnetID)
		}
		return ref.SubnetID, vnetID, nil
	case ref.VirtualNetworkID != "":
		vnet, ok := f.VirtualNetworks[ref.VirtualNetworkID]
		if !ok {
			return "", "", fmt.Errorf("%w: virtual network %q", cloud.ErrNotFound, ref.VirtualNetworkID)
		}
		if len(vnet.SubnetIDs) == 0 {
			return "", "", fmt.Errorf("virtual network %q has no subnets", vnet.ID)
		}
		return vnet.SubnetIDs[0], vnet.ID, nil
	case ref.New != nil:
		vnet := f.createVirtualNetwork(*ref.New)
		return vnet.SubnetIDs[0], vnet.ID, nil
	}
	return "", "", fmt.Errorf("network interface has no network")
}

// createVirtualNetwork returns the existing network of the same ID, so specs
// sharing a network within one batch create it once.
func (f *Cloud) createVirtualNetwork(spec cloud.VirtualNetworkSpec) *cloud.VirtualNetwork {
	vnetID := id(spec.ResourceGroup, "Microsoft.Network/virtualNetworks", spec.Name)
	if vnet, ok := f.VirtualNetworks[vnetID]; ok {
		return vnet
	}
	subnet := spec.SubnetName
	if subnet == "" {
		subnet = "default"
	}
	vnet := &cloud.VirtualNetwork{
		ID:            vnetID,
		Name:          spec.Name,
		ResourceGroup: spec.ResourceGroup,
		Location:      spec.Location,
		AddressSpace:  []string{spec.AddressPrefix},
		SubnetIDs:     []string{vnetID + "/subnets/" + subnet},
		Tags:          maps.Clone(spec.Tags),
	}
	f.VirtualNetworks[vnetID] = vnet
	return vnet
}

func (f *Cloud) createSecurityGroup(spec cloud.SecurityGroupSpec) *cloud.SecurityGroup {
	sgID := id(spec.ResourceGroup, "Microsoft.Network/networkSecurityGroups", spec.Name)
	if sg, ok := f.SecurityGroups[sgID]; ok {
		return sg
	}
	sg := &cloud.SecurityGroup{
		ID:            sgID,
		Name:          spec.Name,
		ResourceGroup: spec.ResourceGroup,
		Location:      spec.Location,
		Tags:          maps.Clone(spec.Tags),
	}
	f.SecurityGroups[sgID] = sg
	return sg
}

func (f *Cloud) createPublicIP(spec cloud.PublicIPSpec) *cloud.PublicIP {
	pipID := id(spec.ResourceGroup, "Microsoft.Network/publicIPAddresses", spec.Name)
	if pip, ok := f.PublicIPs[pipID]; ok {
		return pip
	}
	pip := &cloud.PublicIP{
		ID:            pipID,
		Name:          spec.Name,
		ResourceGroup: spec.ResourceGroup,
		Location:      spec.Location,
		Address:       f.allocate("20.0"),
		Static:        spec.Static,
		Tags:          maps.Clone(spec.Tags),
	}
	f.PublicIPs[pipID] = pip
	return pip
}

func primaryIndex(nic *cloud.NetworkInterface) int {
	for i, c := range nic.IPConfigurations {
		if c.Primary {
			return i
		}
	}
	if len(nic.IPConfigurations) == 1 {
		return 0
	}
	return -1
}

func ipConfigID(nic *cloud.NetworkInterface, idx int) string {
	return nic.ID + "/ipConfigurations/" + nic.IPConfigurations[idx].Name
}

// sorted returns copies of the map values ordered by key, keeping listings
// deterministic.
func sorted[T any](m map[string]*T) []T {
	out := make([]T, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, *m[k])
	}
	return out
}

// Resolver serves the same fake Cloud for every infrastructure.
type Resolver struct {
	Fake *Cloud

	mu        sync.Mutex
	forgotten []string
}

var _ cloud.Resolver = &Resolver{}

func (r *Resolver) Cloud(_ context.Context, infra types.Infrastructure) (cloud.Cloud, error) {
	if infra.ID == "" {
		return nil, fmt.Errorf("infrastructure has no id")
	}
	return r.Fake, nil
}

func (r *Resolver) Forget(infrastructureID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgotten = append(r.forgotten, infrastructureID)
}

// Forgotten returns the infrastructure IDs passed to Forget.
func (r *Resolver) Forgotten() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.forgotten)
}
