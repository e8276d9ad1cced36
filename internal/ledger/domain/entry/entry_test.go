package entry

import "testing"

func TestTypeNamespace(t *testing.T) {
	tests := []struct {
		value Type
		want  string
	}{
		{"index:file:modified", "index"},
		{"mcp:query", "mcp"},
		{"system:error", "system"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := tc.value.Namespace(); got != tc.want {
			t.Fatalf("namespace of %q: expected %q, got %q", tc.value, tc.want, got)
		}
	}
}

func TestTypeIsValid(t *testing.T) {
	if !Type("index:file:created").IsValid() {
		t.Fatal("expected namespaced type to be valid")
	}
	if Type("   ").IsValid() {
		t.Fatal("expected blank type to be invalid")
	}
}

func TestTypeIsError(t *testing.T) {
	tests := []struct {
		value Type
		want  bool
	}{
		{TypeSystemError, true},
		{"index:parse:error", true},
		{"graph:write:failed", true},
		{"index:file:modified", false},
	}
	for _, tc := range tests {
		if got := tc.value.IsError(); got != tc.want {
			t.Fatalf("IsError(%q): expected %v, got %v", tc.value, tc.want, got)
		}
	}
}

func TestTypeIsSessionMarker(t *testing.T) {
	if !TypeSystemStartup.IsSessionMarker() || !TypeSystemShutdown.IsSessionMarker() {
		t.Fatal("expected startup/shutdown to be session markers")
	}
	if Type("system:error").IsSessionMarker() {
		t.Fatal("expected system:error not to be a session marker")
	}
}

func TestFilesystemOrigin(t *testing.T) {
	byType := Entry{Type: "index:file:modified", Source: SourceClassifier}
	if !byType.FilesystemOrigin() {
		t.Fatal("expected index namespace to imply filesystem origin")
	}
	bySource := Entry{Type: "classify:updated", Source: SourceWatcher}
	if !bySource.FilesystemOrigin() {
		t.Fatal("expected watcher source to imply filesystem origin")
	}
	neither := Entry{Type: "user:feedback", Source: SourceClassifier}
	if neither.FilesystemOrigin() {
		t.Fatal("expected classifier user event not to be filesystem origin")
	}
}

func TestGraphDiffEmpty(t *testing.T) {
	if !(GraphDiff{}).Empty() {
		t.Fatal("expected zero diff to be empty")
	}
	if (GraphDiff{EdgesAdded: 1}).Empty() {
		t.Fatal("expected non-zero diff to be non-empty")
	}
}
