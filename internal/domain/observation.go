package domain

import (
	"time"
)

// Region is one entry of the region catalog.
type Region struct {
	Country   string  `validate:"required"`
	Name      string  `validate:"required"`
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
}

// Key identifies a region by (country, name).
func (r Region) Key() string {
	return r.Country + "|" + r.Name
}

// Measurements holds the daily values of every queried parameter.
// A nil field means the upstream API had no value for that day.
type Measurements struct {
	TempAvg                *float64 `json:"temp_avg"`
	TempMax                *float64 `json:"temp_max"`
	TempMin                *float64 `json:"temp_min"`
	Humidity               *float64 `json:"humidity"`
	Precipitation          *float64 `json:"precipitation"`
	WindSpeed              *float64 `json:"wind_speed"`
	WindDirection          *float64 `json:"wind_direction"`
	SolarRadiation         *float64 `json:"solar_radiation"`
	AtmosphericPressure    *float64 `json:"atmospheric_pressure"`
	LandSurfaceTemperature *float64 `json:"land_surface_temperature"`
}

// Parameter binds an upstream parameter code to its snapshot column and field.
type Parameter struct {
	Code   string
	Column string
	field  func(m *Measurements) **float64
}

// Parameters lists the queried parameters in snapshot column order.
var Parameters = []Parameter{
	{Code: "T2M", Column: "Temp_Avg", field: func(m *Measurements) **float64 { return &m.TempAvg }},
	{Code: "T2M_MAX", Column: "Temp_Max", field: func(m *Measurements) **float64 { return &m.TempMax }},
	{Code: "T2M_MIN", Column: "Temp_Min", field: func(m *Measurements) **float64 { return &m.TempMin }},
	{Code: "RH2M", Column: "Humidity", field: func(m *Measurements) **float64 { return &m.Humidity }},
	{Code: "PRECTOTCORR", Column: "Precipitations", field: func(m *Measurements) **float64 { return &m.Precipitation }},
	{Code: "WS2M", Column: "Wind_Speed", field: func(m *Measurements) **float64 { return &m.WindSpeed }},
	{Code: "WD2M", Column: "Wind_Direction", field: func(m *Measurements) **float64 { return &m.WindDirection }},
	{Code: "ALLSKY_SFC_SW_DWN", Column: "Solar_Radiation", field: func(m *Measurements) **float64 { return &m.SolarRadiation }},
	{Code: "PS", Column: "Atmospheric_Pressure", field: func(m *Measurements) **float64 { return &m.AtmosphericPressure }},
	{Code: "TS", Column: "Land_Surface_Temperature", field: func(m *Measurements) **float64 { return &m.LandSurfaceTemperature }},
}

// ParameterCodes returns the upstream codes in column order.
func ParameterCodes() []string {
	codes := make([]string, len(Parameters))
	for i, p := range Parameters {
		codes[i] = p.Code
	}
	return codes
}

// Get returns the value stored for the parameter.
func (p Parameter) Get(m *Measurements) *float64 {
	return *p.field(m)
}

// Set stores a copy of v for the parameter. A nil v clears the field.
func (p Parameter) Set(m *Measurements, v *float64) {
	if v == nil {
		*p.field(m) = nil
		return
	}
	val := *v
	*p.field(m) = &val
}

// RawObservation is one day of values for one region as returned by the
// fetcher, before normalization. DateKey is the compact YYYYMMDD key.
type RawObservation struct {
	DateKey string
	Region  Region
	Measurements
}

// Observation is one normalized row of the dataset.
type Observation struct {
	Date      time.Time `json:"date"`
	Country   string    `json:"country"`
	Region    string    `json:"region"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Measurements
}

// Key identifies the (region, date) pair of an observation.
func (o Observation) Key() string {
	return o.Country + "|" + o.Region + "|" + o.Date.Format(DateLayout)
}

// DateLayout is the calendar date rendering used in snapshots and keys.
const DateLayout = "2006-01-02"

// Float returns a pointer to v, for building measurements.
func Float(v float64) *float64 {
	return &v
}
