package launcher

import (
	"testing"

	"github.com/stagehand/stagehand/pkg/pkgdef"
)

func TestSnapshotCompatibleIgnoresRequireOrder(t *testing.T) {
	a := ProcessConfigurationSnapshot{
		PackageName: "python",
		Version:     "3.11.4",
		Requires:    []string{"zlib@~1.2.0", "openssl@^3.0.0"},
	}
	b := ProcessConfigurationSnapshot{
		PackageName: "python",
		Version:     "3.11.4",
		Requires:    []string{"openssl@^3.0.0", "zlib@~1.2.0"},
	}
	if !a.Compatible(b) {
		t.Error("order-only difference reported as drift")
	}
}

func TestSnapshotCompatibleDetectsChanges(t *testing.T) {
	base := ProcessConfigurationSnapshot{
		PackageName: "python",
		Version:     "3.11.4",
		Requires:    []string{"zlib@~1.2.0"},
	}

	cases := []struct {
		name  string
		other ProcessConfigurationSnapshot
	}{
		{"version", ProcessConfigurationSnapshot{PackageName: "python", Version: "3.11.5", Requires: []string{"zlib@~1.2.0"}}},
		{"requirement constraint", ProcessConfigurationSnapshot{PackageName: "python", Version: "3.11.4", Requires: []string{"zlib@~1.3.0"}}},
		{"requirement added", ProcessConfigurationSnapshot{PackageName: "python", Version: "3.11.4", Requires: []string{"zlib@~1.2.0", "bzip2"}}},
		{"requirement removed", ProcessConfigurationSnapshot{PackageName: "python", Version: "3.11.4"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if base.Compatible(tc.other) {
				t.Errorf("drifted snapshot %+v reported compatible", tc.other)
			}
		})
	}
}

func TestEncodeDecodeSnapshots(t *testing.T) {
	pkg := &pkgdef.Package{
		Name:    "python",
		Version: "3.11.4",
		Requires: []pkgdef.Ref{
			{Name: "zlib", Constraint: "~1.2.0"},
		},
	}

	encoded, err := EncodeSnapshots([]ProcessConfigurationSnapshot{SnapshotOf(pkg)})
	if err != nil {
		t.Fatalf("EncodeSnapshots() error = %v", err)
	}

	environ := []string{"PATH=/bin", SnapshotsEnvVar + "=" + encoded}
	snaps, err := DecodeSnapshots(environ)
	if err != nil {
		t.Fatalf("DecodeSnapshots() error = %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if snaps[0].PackageName != "python" || snaps[0].Requires[0] != "zlib@~1.2.0" {
		t.Errorf("decoded snapshot = %+v", snaps[0])
	}
}

func TestDecodeSnapshotsAbsent(t *testing.T) {
	snaps, err := DecodeSnapshots([]string{"PATH=/bin"})
	if err != nil {
		t.Fatalf("DecodeSnapshots() error = %v", err)
	}
	if snaps != nil {
		t.Errorf("snapshots = %v, want none", snaps)
	}
}

func TestMergeSnapshotReplaces(t *testing.T) {
	snaps := []ProcessConfigurationSnapshot{
		{PackageName: "python", Version: "3.10.0"},
		{PackageName: "maya", Version: "2024.1"},
	}
	merged := mergeSnapshot(snaps, ProcessConfigurationSnapshot{PackageName: "python", Version: "3.11.4"})
	if len(merged) != 2 {
		t.Fatalf("len = %d, want 2", len(merged))
	}
	if merged[0].Version != "3.11.4" {
		t.Errorf("python snapshot not replaced: %+v", merged[0])
	}
}
