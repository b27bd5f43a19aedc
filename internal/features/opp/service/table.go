package service

import (
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Tools-cx-app/gpu-governor/internal/common"
	"github.com/Tools-cx-app/gpu-governor/internal/features/opp/domain"
)

// minTableEntries is the smallest table a governor can step through.
const minTableEntries = 2

// Load reads the packaged frequency table resource and returns the
// validated OPP table. A malformed table is fatal to startup: there is
// no safe default frequency set to invent for unknown silicon.
func Load(path string) (*domain.Table, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if configType := strings.TrimPrefix(filepath.Ext(path), "."); configType != "" {
		v.SetConfigType(configType)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, common.ConfigError("failed to read frequency table %s", path)
	}

	var points []domain.OperatingPoint
	if err := v.UnmarshalKey("freq_table", &points); err != nil {
		return nil, common.ConfigError("failed to parse frequency table %s: %v", path, err)
	}

	if err := validate(points); err != nil {
		return nil, err
	}

	for i := range points {
		points[i].Index = i
	}

	return domain.NewTable(points), nil
}

// validate enforces the table invariants: at least two entries,
// frequencies strictly ascending, voltages monotonically non-decreasing.
func validate(points []domain.OperatingPoint) error {
	if len(points) < minTableEntries {
		return common.ConfigError("frequency table needs at least %d entries, got %d",
			minTableEntries, len(points))
	}

	for i, point := range points {
		if point.FreqKHz <= 0 {
			return common.ConfigError("frequency table entry %d has non-positive frequency %d",
				i, point.FreqKHz)
		}
		if point.VoltUV < 0 {
			return common.ConfigError("frequency table entry %d has negative voltage %d",
				i, point.VoltUV)
		}
		if i == 0 {
			continue
		}
		if point.FreqKHz <= points[i-1].FreqKHz {
			return common.ConfigError("frequency table not strictly ascending at entry %d: %d after %d",
				i, point.FreqKHz, points[i-1].FreqKHz)
		}
		if point.VoltUV < points[i-1].VoltUV {
			return common.ConfigError("frequency table voltage decreases at entry %d: %d after %d",
				i, point.VoltUV, points[i-1].VoltUV)
		}
	}

	return nil
}
