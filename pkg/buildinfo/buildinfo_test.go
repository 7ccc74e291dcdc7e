package buildinfo

import "testing"

func TestBinaryVersionDefault(t *testing.T) {
	if BinaryVersion != "dev" {
		t.Errorf("Expected BinaryVersion to be 'dev', got '%s'", BinaryVersion)
	}
}

func TestVersionPrefersStamp(t *testing.T) {
	original := BinaryVersion
	defer func() { BinaryVersion = original }()

	BinaryVersion = "v1.2.3"
	if got := Version(); got != "v1.2.3" {
		t.Errorf("Version() = %q, expected stamped version", got)
	}
}

func TestVersionFallback(t *testing.T) {
	original := BinaryVersion
	defer func() { BinaryVersion = original }()

	BinaryVersion = "dev"
	got := Version()
	if mv := ModuleVersion(); mv != "" {
		if got != mv {
			t.Errorf("Version() = %q, expected module version %q", got, mv)
		}
		return
	}
	if got != "dev" {
		t.Errorf("Version() = %q, expected dev", got)
	}
}
