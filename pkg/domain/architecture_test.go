package domain

import (
	"testing"

	"shieldcore/testutil"
)

func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.Internal.CheckImports(t, ".")
}

func TestDomainStaysDriverFree(t *testing.T) {
	if testing.Short() {
		t.Skip("go list in short mode")
	}
	testutil.Drivers.CheckDeps(t, ".")
}
