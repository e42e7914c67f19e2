package transport

import "testing"

func TestBuildSessionConfigRejectsTinyMessages(t *testing.T) {
	if _, err := BuildSessionConfig(4); err == nil {
		t.Fatalf("expected error for maxoutgoingmsg below the control-message floor")
	}
}

func TestBuildSessionConfigAccepts(t *testing.T) {
	cfg, err := BuildSessionConfig(4096)
	if err != nil {
		t.Fatalf("BuildSessionConfig: %v", err)
	}
	if cfg.MaxOutgoingMsg != 4096 {
		t.Fatalf("MaxOutgoingMsg = %d, want 4096", cfg.MaxOutgoingMsg)
	}
}
