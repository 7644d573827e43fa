package framework

import (
	"github.com/hashicorp/terraform-plugin-framework/diag"
)

// JoinDiagnostics merges sets of diagnostics, dropping exact duplicates.
func JoinDiagnostics(dd ...diag.Diagnostics) diag.Diagnostics {
	r := diag.Diagnostics{}
	for _, d := range dd {
		r.Append(d...)
	}
	return r
}
