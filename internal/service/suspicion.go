package service

import (
	"authlog-service/internal/config"
	"authlog-service/internal/models"
)

// IsSuspicious reports whether a record trips any enabled anomaly rule.
// The check is a pure function of the record's flags and the configured
// rules; it performs no I/O.
func IsSuspicious(record *models.AuthLog, rules config.SuspicionRules) bool {
	if rules.NewDevice && record.IsNewDevice {
		return true
	}
	if rules.NewLocation && record.IsNewLocation {
		return true
	}
	return false
}
