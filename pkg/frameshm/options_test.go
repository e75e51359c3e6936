package frameshm

import (
	"strings"
	"testing"
)

func Test_ArchivedSuffix_Has_Marker_Prefix(t *testing.T) {
	t.Parallel()

	suffix := archivedSuffix()
	if !strings.HasPrefix(suffix, archivedMarker+"-") {
		t.Fatalf("archivedSuffix()=%q, want prefix %q", suffix, archivedMarker+"-")
	}
}

func Test_ArchivedSuffix_Is_Unique_Across_Calls(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		suffix := archivedSuffix()
		if seen[suffix] {
			t.Fatalf("archivedSuffix() produced a duplicate: %q", suffix)
		}
		seen[suffix] = true
	}
}

func Test_ArchivedSuffix_Rejected_By_ValidateName(t *testing.T) {
	t.Parallel()

	name := "cam-0" + archivedSuffix()
	if err := validateName(name); err == nil {
		t.Fatalf("validateName(%q) = nil, want ErrInvalidName", name)
	}
}
