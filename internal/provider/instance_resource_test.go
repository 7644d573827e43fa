package provider

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud/fake"
	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
	"github.com/hashicorp/terraform-plugin-testing/terraform"
)

func TestAccInstanceResource(t *testing.T) {
	factories, f := testProviderWithFake(t)

	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: factories,
		CheckDestroy:             checkNoVirtualMachines(f),
		Steps: []resource.TestStep{
			{
				Config: testProviderConfig(`
resource "iaas_instance" "web" {
  tag    = "web"
  number = 2
  image  = "ubuntu-2404"

  options = {
    tags = {
      team = "qa"
    }
  }
}
`),
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttr("iaas_instance.web", "id", "web"),
					resource.TestCheckResourceAttr("iaas_instance.web", "instances.#", "2"),
					resource.TestCheckResourceAttr("iaas_instance.web", "instances.0.tag", "web"),
					resource.TestCheckResourceAttr("iaas_instance.web", "instances.1.tag", "web2"),
					resource.TestCheckResourceAttr("iaas_instance.web", "instances.0.public_addresses.#", "1"),
					resource.TestCheckResourceAttr("iaas_instance.web", "instances.0.hardware_type", "Standard_D1_v2"),
					resource.TestCheckResourceAttrSet("iaas_instance.web", "instances.1.id"),
					checkVirtualMachineCount(f, 2),
				),
			},
			{
				// Replicas removed behind Terraform's back drop out of state.
				PreConfig: func() {
					for id, vm := range f.VirtualMachines {
						if vm.Name == "web2" {
							delete(f.VirtualMachines, id)
						}
					}
				},
				RefreshState: true,
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttr("iaas_instance.web", "instances.#", "1"),
					resource.TestCheckResourceAttr("iaas_instance.web", "instances.0.tag", "web"),
				),
			},
		},
	})
}

func TestAccInstanceResource_InvalidRequest(t *testing.T) {
	factories, _ := testProviderWithFake(t)

	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: factories,
		Steps: []resource.TestStep{
			{
				Config: testProviderConfig(`
resource "iaas_instance" "web" {
  tag   = "web"
  image = "does-not-exist"
}
`),
				ExpectError: regexp.MustCompile(`image not found`),
			},
		},
	})
}

func TestAccPublicIPAndScriptResources(t *testing.T) {
	factories, f := testProviderWithFake(t)

	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: factories,
		CheckDestroy:             checkNoVirtualMachines(f),
		Steps: []resource.TestStep{
			{
				Config: testProviderConfig(`
resource "iaas_instance" "web" {
  tag    = "web"
  number = 2
  image  = "ubuntu-2404"
}

resource "iaas_public_ip" "extra" {
  tag = iaas_instance.web.tag
}

resource "iaas_instance_script" "setup" {
  instance_id = iaas_instance.web.instances[0].id
  scripts     = ["uptime", "df -h"]
}

data "iaas_instances" "created" {
  created_only = true
  depends_on   = [iaas_public_ip.extra]
}

data "iaas_images" "all" {}
`),
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttr("iaas_public_ip.extra", "addresses.#", "2"),
					resource.TestCheckResourceAttr("iaas_instance_script.setup", "instance_ids.#", "2"),
					resource.TestCheckResourceAttrPair("iaas_instance_script.setup", "instance_ids.0", "iaas_instance.web", "instances.0.id"),
					resource.TestCheckResourceAttr("data.iaas_instances.created", "instances.#", "2"),
					resource.TestCheckResourceAttr("data.iaas_instances.created", "instances.0.public_addresses.#", "2"),
					resource.TestCheckResourceAttr("data.iaas_images.all", "images.#", "1"),
					resource.TestCheckResourceAttr("data.iaas_images.all", "images.0.name", testImage),
					resource.TestCheckResourceAttr("data.iaas_images.all", "images.0.os_type", "Linux"),
				),
			},
			{
				// Removing the extra addresses leaves one per instance.
				Config: testProviderConfig(`
resource "iaas_instance" "web" {
  tag    = "web"
  number = 2
  image  = "ubuntu-2404"
}

data "iaas_instances" "web" {
  tag = iaas_instance.web.tag
}
`),
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttr("data.iaas_instances.web", "instances.#", "1"),
					resource.TestCheckResourceAttr("data.iaas_instances.web", "instances.0.public_addresses.#", "1"),
					checkPublicIPCount(f, 2),
				),
			},
		},
	})
}

func TestAccInstanceScriptResource_Conflicts(t *testing.T) {
	factories, _ := testProviderWithFake(t)

	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: factories,
		Steps: []resource.TestStep{
			{
				Config: testProviderConfig(`
resource "iaas_instance_script" "bad" {
  instance_id = "abc"
  tag         = "web"
  scripts     = ["uptime"]
}
`),
				ExpectError: regexp.MustCompile(`exactly one of instance_id and tag`),
			},
		},
	})
}

func checkNoVirtualMachines(f *fake.Cloud) resource.TestCheckFunc {
	return checkVirtualMachineCount(f, 0)
}

func checkVirtualMachineCount(f *fake.Cloud, want int) resource.TestCheckFunc {
	return func(_ *terraform.State) error {
		if got := len(f.VirtualMachines); got != want {
			return fmt.Errorf("want %d virtual machines, got %d", want, got)
		}
		return nil
	}
}

func checkPublicIPCount(f *fake.Cloud, want int) resource.TestCheckFunc {
	return func(_ *terraform.State) error {
		if got := len(f.PublicIPs); got != want {
			return fmt.Errorf("want %d public ip addresses, got %d", want, got)
		}
		return nil
	}
}
