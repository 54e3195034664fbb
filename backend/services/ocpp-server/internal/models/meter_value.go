package models

import (
	"math"
	"sort"
	"time"

	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

// MeterValue is an append-only stored reading.
type MeterValue struct {
	ID                 int64                   `db:"id" json:"id"`
	StationID          string                  `db:"station_id" json:"stationId"`
	TransactionDBID    *int64                  `db:"transaction_db_id" json:"transactionDbId,omitempty"`
	TransactionEventID *int64                  `db:"transaction_event_id" json:"transactionEventId,omitempty"`
	Timestamp          time.Time               `db:"timestamp" json:"timestamp"`
	SampledValue       []protocol.SampledValue `db:"sampled_value" json:"sampledValue"`
}

// TotalKwh derives the energy delivered across meterValues from the main import register:
// the last reading minus the first, in kWh, never negative. Phase readings and other
// measurands are ignored; a missing measurand is the import register by default.
func TotalKwh(meterValues []MeterValue) float64 {
	readings := make(map[time.Time]float64)
	for _, mv := range meterValues {
		for _, sv := range mv.SampledValue {
			if !isImportRegister(sv) {
				continue
			}
			readings[mv.Timestamp] = toKwh(sv)
		}
	}
	if len(readings) < 2 {
		return 0
	}

	stamps := make([]time.Time, 0, len(readings))
	for ts := range readings {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	delta := readings[stamps[len(stamps)-1]] - readings[stamps[0]]
	if delta < 0 {
		return 0
	}
	return delta
}

func isImportRegister(sv protocol.SampledValue) bool {
	if sv.Phase != "" {
		return false
	}
	return sv.Measurand == "" || sv.Measurand == protocol.MeasurandEnergyActiveImportRegister
}

func toKwh(sv protocol.SampledValue) float64 {
	unit := protocol.UnitWh
	multiplier := 0
	if sv.UnitOfMeasure != nil {
		if sv.UnitOfMeasure.Unit != "" {
			unit = sv.UnitOfMeasure.Unit
		}
		multiplier = sv.UnitOfMeasure.Multiplier
	}

	value := sv.Value * math.Pow10(multiplier)
	if unit == protocol.UnitKWh {
		return value
	}
	return value / 1000
}
