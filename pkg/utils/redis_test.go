package utils

import "testing"

func TestAdvanceLockScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if advanceAcquireScript == nil || advanceReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}
