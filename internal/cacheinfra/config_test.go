package cacheinfra

import (
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "with remote", mutate: func(c *Config) { c.Remote = DefaultRemoteConfig("localhost:6379") }},
		{name: "zero memory capacity", mutate: func(c *Config) { c.Memory.Capacity = 0 }, wantErr: true},
		{name: "memory eviction above 100", mutate: func(c *Config) { c.Memory.EvictionPercentage = 150 }, wantErr: true},
		{name: "negative sweep interval", mutate: func(c *Config) { c.Memory.EvictionInterval = -time.Second }, wantErr: true},
		{
			name: "remote without addrs",
			mutate: func(c *Config) {
				c.Remote = DefaultRemoteConfig("")
				c.Remote.Addrs = nil
			},
			wantErr: true,
		},
		{
			name: "remote prefix with glob",
			mutate: func(c *Config) {
				c.Remote = DefaultRemoteConfig("localhost:6379")
				c.Remote.KeyPrefix = "cache*"
			},
			wantErr: true,
		},
		{
			name: "remote without timeout",
			mutate: func(c *Config) {
				c.Remote = DefaultRemoteConfig("localhost:6379")
				c.Remote.Timeout = 0
			},
			wantErr: true,
		},
		{
			name: "breaker threshold above 1",
			mutate: func(c *Config) {
				c.Remote = DefaultRemoteConfig("localhost:6379")
				c.Remote.Breaker.FailureThreshold = 1.5
			},
			wantErr: true,
		},
		{
			name: "negative local ttl",
			mutate: func(c *Config) {
				c.Remote = DefaultRemoteConfig("localhost:6379")
				c.Remote.LocalTTL = -time.Second
			},
			wantErr: true,
		},
		{name: "invalid query section", mutate: func(c *Config) { c.Query.NumShards = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
