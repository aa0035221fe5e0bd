package cec

import (
	"errors"
	"testing"
)

func TestParsePhysicalAddress(t *testing.T) {
	tests := []struct {
		input   string
		want    PhysicalAddress
		wantErr bool
	}{
		{"0.0.0.0", 0x0000, false},
		{"1.0.0.0", 0x1000, false},
		{"1.1.0.0", 0x1100, false},
		{"3.2.1.f", 0x321F, false},
		{" 2.0.0.0 ", 0x2000, false},
		{"1.0.0", 0, true},
		{"1.0.0.0.0", 0, true},
		{"1.g.0.0", 0, true},
		{"1.10.0.0", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePhysicalAddress(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPhysicalAddress) {
					t.Errorf("ParsePhysicalAddress(%q) error = %v, want ErrInvalidPhysicalAddress", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePhysicalAddress(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParsePhysicalAddress(%q) = 0x%04X, want 0x%04X", tt.input, uint16(got), uint16(tt.want))
			}
		})
	}
}

func TestPhysicalAddressString(t *testing.T) {
	if got := PhysicalAddress(0x1200).String(); got != "1.2.0.0" {
		t.Errorf("String() = %q, want 1.2.0.0", got)
	}
	if got := PhysicalAddress(0xA0B0).String(); got != "a.0.b.0" {
		t.Errorf("String() = %q, want a.0.b.0", got)
	}
	if InvalidPhysicalAddress.IsValid() {
		t.Error("InvalidPhysicalAddress.IsValid() = true")
	}
}

func TestPortUnder(t *testing.T) {
	tests := []struct {
		name     string
		child    PhysicalAddress
		parent   PhysicalAddress
		wantPort int
		wantOK   bool
	}{
		{"display input", 0x2000, 0x0000, 2, true},
		{"direct child", 0x1200, 0x1000, 2, true},
		{"grandchild", 0x1230, 0x1000, 2, true},
		{"self", 0x1000, 0x1000, 0, true},
		{"sibling branch", 0x2100, 0x1000, 0, false},
		{"ancestor", 0x1000, 0x1200, 0, false},
		{"leaf parent", 0x1111, 0x1111, 0, true},
		{"below leaf", 0x1112, 0x1111, 0, false},
		{"invalid child", InvalidPhysicalAddress, 0x1000, 0, false},
		{"invalid parent", 0x1000, InvalidPhysicalAddress, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, ok := tt.child.PortUnder(tt.parent)
			if port != tt.wantPort || ok != tt.wantOK {
				t.Errorf("%s.PortUnder(%s) = (%d, %v), want (%d, %v)",
					tt.child, tt.parent, port, ok, tt.wantPort, tt.wantOK)
			}
		})
	}
}

func TestParseDeviceType(t *testing.T) {
	got, err := ParseDeviceType("Playback")
	if err != nil || got != DeviceTypePlayback {
		t.Errorf("ParseDeviceType(Playback) = %v, %v", got, err)
	}
	if _, err := ParseDeviceType("toaster"); err == nil {
		t.Error("ParseDeviceType(toaster) expected error")
	}
}

func TestLogicalAddressString(t *testing.T) {
	if AddrPlayback1.String() != "playback_1" {
		t.Errorf("AddrPlayback1 = %q", AddrPlayback1.String())
	}
	if AddrBroadcast.String() != "broadcast" {
		t.Errorf("AddrBroadcast = %q", AddrBroadcast.String())
	}
	if LogicalAddress(16).IsValid() {
		t.Error("LogicalAddress(16).IsValid() = true")
	}
}

func TestPhysicalAddressText(t *testing.T) {
	text, err := PhysicalAddress(0x1200).MarshalText()
	if err != nil || string(text) != "1.2.0.0" {
		t.Errorf("MarshalText() = %q, %v", text, err)
	}

	var pa PhysicalAddress
	if err := pa.UnmarshalText([]byte("2.1.0.0")); err != nil || pa != 0x2100 {
		t.Errorf("UnmarshalText() = %s, %v", pa, err)
	}
	if err := pa.UnmarshalText(nil); err != nil || pa.IsValid() {
		t.Errorf("UnmarshalText(empty) = %s, %v", pa, err)
	}
	if err := pa.UnmarshalText([]byte("1.2")); !errors.Is(err, ErrInvalidPhysicalAddress) {
		t.Errorf("UnmarshalText(1.2) error = %v", err)
	}
}
