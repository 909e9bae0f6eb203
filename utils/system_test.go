package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptimalWorkerCount(t *testing.T) {
	orig := cpuCounts
	defer func() { cpuCounts = orig }()

	testCases := []struct {
		name     string
		value    string
		cores    int
		coresErr error
		expected int
	}{
		{"Empty Uses Fallback", "", 8, nil, 5},
		{"Manual", "7", 8, nil, 7},
		{"Auto Half Cores", "auto", 8, nil, 4},
		{"Auto Single Core", "AUTO", 1, nil, 1},
		{"Auto Capped", "auto", 64, nil, 16},
		{"Invalid Means Auto", "lots", 12, nil, 6},
		{"Negative Means Auto", "-3", 4, nil, 2},
		{"Detection Error", "auto", 0, errors.New("no cpuinfo"), 5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cpuCounts = func(bool) (int, error) { return tc.cores, tc.coresErr }
			assert.Equal(t, tc.expected, OptimalWorkerCount(tc.value, 5))
		})
	}
}
