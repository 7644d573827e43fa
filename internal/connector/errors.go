package connector

import (
	"errors"
	"fmt"

	"github.com/chainguard-dev/terraform-provider-iaas/internal/cloud"
)

// These are the error kinds every connector operation reports. Returned
// errors wrap exactly one of them and name the offending identifier.
var (
	ErrInvalidRequest             = fmt.Errorf("invalid request")
	ErrImageNotFound              = fmt.Errorf("image not found")
	ErrResourceGroupNotFound      = fmt.Errorf("resource group not found")
	ErrUnsupportedOperatingSystem = fmt.Errorf("unsupported operating system")
	ErrInstanceNotFound           = fmt.Errorf("instance not found")
	ErrPublicIPNotFound           = fmt.Errorf("public ip address not found")
	ErrProviderCommunication      = fmt.Errorf("provider communication failed")
	ErrUnsupportedOperation       = fmt.Errorf("unsupported operation")
)

// providerErr wraps a failed provider call. Context cancellation and deadline
// errors are wrapped too; they remain matchable with errors.Is.
func providerErr(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrProviderCommunication, fmt.Sprintf(format, args...), err)
}

func isNotFound(err error) bool {
	return errors.Is(err, cloud.ErrNotFound)
}
