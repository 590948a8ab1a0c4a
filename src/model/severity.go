package model

import "time"

// Detection thresholds, in minutes.
const (
	ReceivingDelayThreshold  = 20
	LateShipmentThreshold    = 20
	CycleCountStaleThreshold = 30
	HeartbeatTimeout         = 2 * time.Minute
)

// ReceivingSeverity grades a delayed receiving document.
func ReceivingSeverity(status string, sinceMinutes int) ExceptionSeverity {
	if status == ReceivingStatusOnHold {
		return SeverityHigh
	}
	switch {
	case sinceMinutes > 60:
		return SeverityCritical
	case sinceMinutes > 30:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// ShippingSeverity grades a late shipping order.
func ShippingSeverity(sinceMinutes int) ExceptionSeverity {
	switch {
	case sinceMinutes > 60:
		return SeverityCritical
	case sinceMinutes > 40:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// Overloaded reports used/capacity > 1. Locations without a positive capacity never are.
func Overloaded(used, capacity int) bool {
	return capacity > 0 && int64(used) > int64(capacity)
}

// CapacitySeverity grades an overloaded location. The 1.15 boundary is exclusive
// and compared in integers so large locations are not rounded below it.
func CapacitySeverity(used, capacity int) ExceptionSeverity {
	if int64(used)*100 > int64(capacity)*115 {
		return SeverityCritical
	}
	return SeverityHigh
}

// ComplianceSeverityFor rates elapsed minutes against an SLA limit.
func ComplianceSeverityFor(elapsedMinutes, limitMinutes int) ComplianceSeverity {
	if limitMinutes <= 0 {
		return ComplianceHigh
	}
	ratio := float64(elapsedMinutes) / float64(limitMinutes)
	switch {
	case ratio >= 1:
		return ComplianceHigh
	case ratio >= 0.8:
		return ComplianceMedium
	default:
		return ComplianceLow
	}
}

// MinutesBetween returns whole minutes from start to end, never negative.
func MinutesBetween(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
