package runlog

import (
	"fmt"
	"strconv"
)

// RunInfoToHash converts run info to the Redis hash layout.
func RunInfoToHash(r *RunInfo) map[string]interface{} {
	return map[string]interface{}{
		"name":              r.Name,
		"molecules":         r.Molecules,
		"hydrogen_delay_ms": r.HydrogenDelayMs,
		"oxygen_delay_ms":   r.OxygenDelayMs,
		"bond_delay_ms":     r.BondDelayMs,
		"status":            string(r.Status),
		"started_at_ms":     r.StartedAtMs,
		"finished_at_ms":    r.FinishedAtMs,
	}
}

// HashToRunInfo converts a Redis hash back to run info.
func HashToRunInfo(hash map[string]string) (*RunInfo, error) {
	molecules, err := strconv.Atoi(hash["molecules"])
	if err != nil {
		return nil, fmt.Errorf("invalid molecules field: %w", err)
	}

	info := &RunInfo{
		Name:      hash["name"],
		Molecules: molecules,
		Status:    RunStatus(hash["status"]),
	}

	ints := []struct {
		field string
		dst   *int
	}{
		{"hydrogen_delay_ms", &info.HydrogenDelayMs},
		{"oxygen_delay_ms", &info.OxygenDelayMs},
		{"bond_delay_ms", &info.BondDelayMs},
	}
	for _, f := range ints {
		if raw := hash[f.field]; raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s field: %w", f.field, err)
			}
			*f.dst = v
		}
	}

	timestamps := []struct {
		field string
		dst   *int64
	}{
		{"started_at_ms", &info.StartedAtMs},
		{"finished_at_ms", &info.FinishedAtMs},
	}
	for _, f := range timestamps {
		if raw := hash[f.field]; raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s field: %w", f.field, err)
			}
			*f.dst = v
		}
	}

	if err := info.Status.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}
