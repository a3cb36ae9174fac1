package process

// Notes:
// - KillTree: we only use PIDs that cannot name a live process. Real kill
//   behavior needs a browser and is left to the rod integration test.
// - PID 0 would target the current process group, so it must be a no-op.

import (
	"runtime"
	"testing"
)

// ---------------------------------------------------------------------------
// TestKillTree - Invalid PID handling
// ---------------------------------------------------------------------------

func TestKillTree_NonPositivePID(t *testing.T) {
	t.Parallel()

	for _, pid := range []int{0, -1} {
		if err := KillTree(pid); err != nil {
			t.Errorf("KillTree(%d) = %v, want nil", pid, err)
		}
	}
}

func TestKillTree_GoneProcess(t *testing.T) {
	t.Parallel()

	err := KillTree(999999999)
	if runtime.GOOS != "windows" && err != nil {
		t.Errorf("KillTree() on a missing group = %v, want nil", err)
	}
}
