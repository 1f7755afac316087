package main

import (
	"os"
	"testing"

	"github.com/wopr-systems/beacon-orchestrator/pkg/config"
)

func TestDetermineAddr(t *testing.T) {
	cases := []struct {
		name string
		flag string
		cfg  func() *config.Config
		want string
	}{
		{
			name: "flag wins",
			flag: ":9000",
			cfg:  func() *config.Config { return config.New() },
			want: ":9000",
		},
		{
			name: "config host and port",
			flag: "",
			cfg: func() *config.Config {
				cfg := config.New()
				cfg.Server.Host = "127.0.0.1"
				cfg.Server.Port = 9090
				return cfg
			},
			want: "127.0.0.1:9090",
		},
		{
			name: "blank host defaults to wildcard",
			flag: "",
			cfg: func() *config.Config {
				cfg := config.New()
				cfg.Server.Host = ""
				cfg.Server.Port = 8081
				return cfg
			},
			want: "0.0.0.0:8081",
		},
		{
			name: "falls back to default addr",
			flag: "",
			cfg: func() *config.Config {
				cfg := config.New()
				cfg.Server.Port = 0
				return cfg
			},
			want: ":8080",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := determineAddr(tc.flag, tc.cfg())
			if got != tc.want {
				t.Fatalf("determineAddr() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSplitTokens(t *testing.T) {
	got := splitTokens(" tok-a, tok-b ,, tok-c")
	want := []string{"tok-a", "tok-b", "tok-c"}
	if len(got) != len(want) {
		t.Fatalf("splitTokens() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitTokens()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitTokensEmpty(t *testing.T) {
	if got := splitTokens("   "); got != nil {
		t.Fatalf("splitTokens(blank) = %v, want nil", got)
	}
}

func TestResolveAPITokens(t *testing.T) {
	os.Unsetenv("API_TOKENS")
	t.Cleanup(func() { os.Unsetenv("API_TOKENS") })

	cfg := config.New()
	cfg.Auth.Tokens = []string{"cfg-tok"}
	os.Setenv("API_TOKENS", "env-tok")

	got := resolveAPITokens("flag-tok", cfg)
	want := []string{"flag-tok", "cfg-tok", "env-tok"}
	if len(got) != len(want) {
		t.Fatalf("resolveAPITokens() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("resolveAPITokens()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
