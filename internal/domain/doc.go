// Package domain models daily climate observations collected from the NASA
// POWER (Prediction Of Worldwide Energy Resources) daily point API.
//
// # Data Source
//
// Observations come from https://power.larc.nasa.gov/api/temporal/daily/point.
// One request per region asks for a single calendar day (the day LookbackDays
// before now; POWER data lags real time by several days) and a fixed list of
// parameters. The response nests values by parameter code and date key:
//
//	{
//	  "header": {"fill_value": -999.0, ...},
//	  "properties": {
//	    "parameter": {
//	      "T2M":     {"20240615": 30.2},
//	      "T2M_MAX": {"20240615": 36.9},
//	      ...
//	    }
//	  }
//	}
//
// # Parameter Codes
//
//	T2M                temperature at 2 m, daily mean (°C)       -> Temp_Avg
//	T2M_MAX            temperature at 2 m, daily max (°C)        -> Temp_Max
//	T2M_MIN            temperature at 2 m, daily min (°C)        -> Temp_Min
//	RH2M               relative humidity at 2 m (%)              -> Humidity
//	PRECTOTCORR        bias-corrected precipitation (mm/day)     -> Precipitations
//	WS2M               wind speed at 2 m (m/s)                   -> Wind_Speed
//	WD2M               wind direction at 2 m (degrees)           -> Wind_Direction
//	ALLSKY_SFC_SW_DWN  all-sky surface shortwave (kWh/m²/day)    -> Solar_Radiation
//	PS                 surface pressure (kPa)                    -> Atmospheric_Pressure
//	TS                 earth skin temperature (°C)               -> Land_Surface_Temperature
//
// # Missing Values
//
// POWER marks missing values with header.fill_value (-999). Both the fill
// value and a date absent from a parameter series become a nil measurement.
// Nil is persisted as an empty cell and read back as nil; it is never zero.
//
// # Date Keys
//
// Date keys are compact YYYYMMDD integers. [ParseDateKey] turns them into a
// UTC calendar date. The persisted snapshot renders dates as YYYY-MM-DD, which
// ParseDateKey rejects: date coercion is a one-way step.
//
// # Text Normalization
//
// Country and region names are NFKD-decomposed and stripped of every
// non-ASCII code point ("Ségou" -> "Segou"). This is lossy: letters without an
// ASCII base vanish entirely. See [NormalizeText].
//
// # Snapshot Merge
//
// The snapshot is rewritten whole on each run from concatenate(previous,
// fresh). Runs over overlapping days accumulate duplicate (region, date) rows
// unless deduplication is enabled. See [Merge].
package domain
