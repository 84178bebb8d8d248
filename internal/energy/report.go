// Package energy coordinates repeated energy-measurement runs, parses the
// tracker's emissions artifact and aggregates per-run statistics.
package energy

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// RawSample is the last row of the tracker's emissions CSV. Energies are in
// Wh, power in W, emissions in kg CO2e, duration in seconds, matching what
// the tracker writes.
type RawSample struct {
	EnergyConsumed float64
	Emissions      float64
	Duration       float64
	CPUPower       float64
	GPUPower       float64
	RAMPower       float64
	CPUEnergy      float64
	GPUEnergy      float64
	RAMEnergy      float64
	CountryName    string
	CountryISOCode string
	Region         string
	CPUModel       string
	CPUCount       int
	RAMTotalSize   float64
	TrackingMode   string
	Timestamp      string
}

// ParseEmissionsCSV reads the most recent row of an emissions artifact.
// A missing file or a header-only file is an error; measurement runs are
// never silently zero-filled.
func ParseEmissionsCSV(path string) (*RawSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open measurement artifact: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse measurement artifact %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("measurement artifact %s contains no data rows", path)
	}

	header := records[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	last := records[len(records)-1]
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(last) {
			return ""
		}
		return last[i]
	}
	num := func(name string) float64 {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			return 0
		}
		return v
	}

	sample := &RawSample{
		EnergyConsumed: num("energy_consumed"),
		Emissions:      num("emissions"),
		Duration:       num("duration"),
		CPUPower:       num("cpu_power"),
		GPUPower:       num("gpu_power"),
		RAMPower:       num("ram_power"),
		CPUEnergy:      num("cpu_energy"),
		GPUEnergy:      num("gpu_energy"),
		RAMEnergy:      num("ram_energy"),
		CountryName:    orUnknown(field("country_name")),
		CountryISOCode: orUnknown(field("country_iso_code")),
		Region:         orUnknown(field("region")),
		CPUModel:       orUnknown(field("cpu_model")),
		CPUCount:       int(num("cpu_count")),
		RAMTotalSize:   num("ram_total_size"),
		TrackingMode:   orUnknown(field("tracking_mode")),
		Timestamp:      field("timestamp"),
	}
	return sample, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// MeasurementReport is the normalized per-run report written as energy.json.
type MeasurementReport struct {
	Framework       string         `json:"framework"`
	Language        string         `json:"language"`
	Timestamp       string         `json:"timestamp"`
	Energy          EnergyTotals   `json:"energy"`
	Power           PowerDraw      `json:"power"`
	Emissions       EmissionTotals `json:"emissions"`
	DurationSeconds float64        `json:"duration_seconds"`
	Metadata        ReportMeta     `json:"metadata"`
}

type EnergyTotals struct {
	TotalWattHours float64 `json:"total_watt_hours"`
	CPUWattHours   float64 `json:"cpu_watt_hours"`
	RAMWattHours   float64 `json:"ram_watt_hours"`
	GPUWattHours   float64 `json:"gpu_watt_hours"`
	KilowattHours  float64 `json:"kilowatt_hours"`
}

type PowerDraw struct {
	CPUWatts float64 `json:"cpu_watts"`
	RAMWatts float64 `json:"ram_watts"`
	GPUWatts float64 `json:"gpu_watts"`
}

type EmissionTotals struct {
	MgCarbon float64 `json:"mg_carbon"`
	GCarbon  float64 `json:"g_carbon"`
	KgCarbon float64 `json:"kg_carbon"`
}

type ReportMeta struct {
	CountryName    string  `json:"country_name"`
	CountryISOCode string  `json:"country_iso_code"`
	Region         string  `json:"region"`
	CPUModel       string  `json:"cpu_model"`
	CPUCount       int     `json:"cpu_count"`
	RAMTotalSize   float64 `json:"ram_total_size"`
	TrackingMode   string  `json:"tracking_mode"`
	Timestamp      string  `json:"timestamp"`
}

// BuildReport derives a MeasurementReport from a raw sample. Pure
// arithmetic, no re-measurement.
func BuildReport(raw *RawSample, framework, language string) *MeasurementReport {
	// the tracker reports emissions in kg CO2e
	emissionsMg := raw.Emissions * 1e6

	return &MeasurementReport{
		Framework: framework,
		Language:  language,
		Timestamp: time.Now().Format(time.RFC3339),
		Energy: EnergyTotals{
			TotalWattHours: raw.EnergyConsumed,
			CPUWattHours:   raw.CPUEnergy,
			RAMWattHours:   raw.RAMEnergy,
			GPUWattHours:   raw.GPUEnergy,
			KilowattHours:  raw.EnergyConsumed / 1000,
		},
		Power: PowerDraw{
			CPUWatts: raw.CPUPower,
			RAMWatts: raw.RAMPower,
			GPUWatts: raw.GPUPower,
		},
		Emissions: EmissionTotals{
			MgCarbon: emissionsMg,
			GCarbon:  emissionsMg / 1e3,
			KgCarbon: emissionsMg / 1e6,
		},
		DurationSeconds: raw.Duration,
		Metadata: ReportMeta{
			CountryName:    raw.CountryName,
			CountryISOCode: raw.CountryISOCode,
			Region:         raw.Region,
			CPUModel:       raw.CPUModel,
			CPUCount:       raw.CPUCount,
			RAMTotalSize:   raw.RAMTotalSize,
			TrackingMode:   raw.TrackingMode,
			Timestamp:      raw.Timestamp,
		},
	}
}
