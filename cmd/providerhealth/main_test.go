package main

import (
	"os"
	"strings"
	"testing"
)

func TestAnyCritical(t *testing.T) {
	cases := []struct {
		name string
		in   []ProviderStatus
		want bool
	}{
		{name: "all healthy", in: []ProviderStatus{{Name: "hetzner", Reachable: true}}, want: false},
		{name: "one critical", in: []ProviderStatus{{Name: "hetzner", Reachable: true}, {Name: "ovh", Critical: true}}, want: true},
		{name: "empty", in: nil, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := anyCritical(Report{Providers: tc.in})
			if got != tc.want {
				t.Fatalf("anyCritical() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWriteSystemdUnit(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/providerhealth.service"
	if err := writeSystemdUnit(path); err != nil {
		t.Fatalf("writeSystemdUnit: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back unit file: %v", err)
	}
	if !strings.Contains(string(data), "ExecStart=/usr/local/bin/providerhealth --daemon") {
		t.Fatalf("unit file missing ExecStart line: %s", data)
	}
}
