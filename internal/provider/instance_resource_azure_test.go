//go:build azure

package provider

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
)

func TestAccInstanceResource_Azure(t *testing.T) {
	image := os.Getenv("IAAS_AZURE_IMAGE")
	resourceGroup := os.Getenv("IAAS_AZURE_RESOURCE_GROUP")
	if image == "" || resourceGroup == "" || os.Getenv("AZURE_SUBSCRIPTION_ID") == "" {
		t.Skip("IAAS_AZURE_IMAGE, IAAS_AZURE_RESOURCE_GROUP and AZURE_SUBSCRIPTION_ID must be set")
	}

	infraID := "acc-" + uuid.New().String()[:8]

	tf := fmt.Sprintf(`
provider "iaas" {
  infrastructure_id = %q
  defaults = {
    password = "Acc-%s!"
  }
}

resource "iaas_instance" "vm" {
  tag   = "acc-vm"
  image = %q

  options = {
    resource_group = %q
  }
}

resource "iaas_instance_script" "hello" {
  instance_id = iaas_instance.vm.instances[0].id
  scripts     = ["echo hello"]
}

resource "iaas_public_ip" "extra" {
  instance_id = iaas_instance.vm.instances[0].id
}
`, infraID, uuid.New().String()[:12], image, resourceGroup)

	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: testAccProtoV6ProviderFactories,
		Steps: []resource.TestStep{
			{
				Config: tf,
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttr("iaas_instance.vm", "instances.#", "1"),
					resource.TestCheckResourceAttrSet("iaas_instance.vm", "instances.0.public_addresses.0"),
					resource.TestCheckResourceAttr("iaas_instance_script.hello", "instance_ids.#", "1"),
					resource.TestCheckResourceAttr("iaas_public_ip.extra", "addresses.#", "1"),
				),
			},
		},
	})
}
