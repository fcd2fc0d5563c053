/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package tier

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/config"
)

func TestTier_Validate(t *testing.T) {
	longestWindow := MaxWindowSeconds
	tooLongWindow := MaxWindowSeconds + 1
	tests := []struct {
		name    string
		tier    Tier
		wantErr string
	}{
		{name: "valid", tier: Tier{Name: "gold", QuotaPerWindow: 5, WindowSeconds: 1}},
		{name: "empty name", tier: Tier{Name: " ", QuotaPerWindow: 5, WindowSeconds: 1}, wantErr: "tier name cannot be empty"},
		{name: "zero quota", tier: Tier{Name: "gold", WindowSeconds: 1}, wantErr: "quota per window should be positive"},
		{name: "negative window", tier: Tier{Name: "gold", QuotaPerWindow: 5, WindowSeconds: -1}, wantErr: "window seconds should be positive"},
		{name: "longest window", tier: Tier{Name: "gold", QuotaPerWindow: 5, WindowSeconds: int(longestWindow)}},
		{name: "window overflows duration", tier: Tier{Name: "gold", QuotaPerWindow: 5, WindowSeconds: int(tooLongWindow)},
			wantErr: "window seconds should be <= 9223372036"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tier.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				require.Positive(t, tt.tier.Window())
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	require.Equal(t, []string{NameHigh, NameLow, NameMedium}, reg.Names())

	low, err := reg.Lookup("LOW")
	require.NoError(t, err)
	require.Equal(t, 10, low.QuotaPerWindow)
	require.Equal(t, 10*time.Second, low.Window())

	high, err := reg.Lookup(NameHigh)
	require.NoError(t, err)
	require.Equal(t, Tier{Name: NameHigh, QuotaPerWindow: 50, WindowSeconds: 50}, high)

	_, err = reg.Lookup("platinum")
	require.ErrorIs(t, err, ErrUnknownTier)
	require.ErrorContains(t, err, `"platinum"`)
}

func TestNewRegistry(t *testing.T) {
	_, err := NewRegistry(Tier{Name: "gold", QuotaPerWindow: 1, WindowSeconds: 1}, Tier{Name: "Gold", QuotaPerWindow: 2, WindowSeconds: 2})
	require.ErrorContains(t, err, "defined more than once")

	_, err = NewRegistry(Tier{Name: "gold"})
	require.Error(t, err)

	reg, err := NewRegistry()
	require.NoError(t, err)
	require.Empty(t, reg.Tiers())
}

func TestConfig(t *testing.T) {
	load := func(t *testing.T, cfgData string) (*Config, error) {
		t.Helper()
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
		return cfg, err
	}

	t.Run("defaults only", func(t *testing.T) {
		cfg, err := load(t, "")
		require.NoError(t, err)
		require.True(t, cfg.UseDefaults)
		reg, err := cfg.Registry()
		require.NoError(t, err)
		require.Equal(t, []string{NameHigh, NameLow, NameMedium}, reg.Names())
	})

	t.Run("custom tiers merged with defaults", func(t *testing.T) {
		cfg, err := load(t, `
tiers:
  definitions:
    - name: enterprise
      quotaPerWindow: 500
      windowSeconds: 60
    - name: low
      quotaPerWindow: 2
      windowSeconds: 10
`)
		require.NoError(t, err)
		reg, err := cfg.Registry()
		require.NoError(t, err)
		require.Equal(t, []string{"enterprise", NameHigh, NameLow, NameMedium}, reg.Names())
		low, err := reg.Lookup(NameLow)
		require.NoError(t, err)
		require.Equal(t, 2, low.QuotaPerWindow)
	})

	t.Run("custom tiers only", func(t *testing.T) {
		cfg, err := load(t, `
tiers:
  useDefaults: false
  definitions:
    - name: trial
      quotaPerWindow: 1
      windowSeconds: 5
`)
		require.NoError(t, err)
		reg, err := cfg.Registry()
		require.NoError(t, err)
		require.Equal(t, []Tier{{Name: "trial", QuotaPerWindow: 1, WindowSeconds: 5}}, reg.Tiers())
		_, err = reg.Lookup(NameLow)
		require.ErrorIs(t, err, ErrUnknownTier)
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		_, err := load(t, `
tiers:
  definitions:
    - name: trial
      quota: 1
      windowSeconds: 5
`)
		require.ErrorContains(t, err, "tiers.definitions")
	})

	t.Run("invalid tier is rejected", func(t *testing.T) {
		_, err := load(t, `
tiers:
  definitions:
    - name: trial
      quotaPerWindow: 0
      windowSeconds: 5
`)
		require.ErrorContains(t, err, "tiers.definitions")
		require.ErrorContains(t, err, "quota per window should be positive")
	})
}
