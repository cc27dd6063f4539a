package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"authlog-service/internal/config"
	"authlog-service/internal/models"
)

func TestIsSuspicious(t *testing.T) {
	tests := []struct {
		name        string
		newDevice   bool
		newLocation bool
		rules       config.SuspicionRules
		want        bool
	}{
		{
			name:  "clean record trips nothing",
			rules: config.SuspicionRules{NewDevice: true, NewLocation: true},
			want:  false,
		},
		{
			name:      "new device with device rule on",
			newDevice: true,
			rules:     config.SuspicionRules{NewDevice: true},
			want:      true,
		},
		{
			name:        "new location with location rule on",
			newLocation: true,
			rules:       config.SuspicionRules{NewLocation: true},
			want:        true,
		},
		{
			name:      "new device but device rule off",
			newDevice: true,
			rules:     config.SuspicionRules{NewLocation: true},
			want:      false,
		},
		{
			name:        "new location but location rule off",
			newLocation: true,
			rules:       config.SuspicionRules{NewDevice: true},
			want:        false,
		},
		{
			name:        "both flags with both rules",
			newDevice:   true,
			newLocation: true,
			rules:       config.SuspicionRules{NewDevice: true, NewLocation: true},
			want:        true,
		},
		{
			name:        "both flags with all rules off",
			newDevice:   true,
			newLocation: true,
			rules:       config.SuspicionRules{},
			want:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &models.AuthLog{
				IsNewDevice:   tt.newDevice,
				IsNewLocation: tt.newLocation,
			}
			assert.Equal(t, tt.want, IsSuspicious(record, tt.rules))
		})
	}
}
