package breadcrumb

import "time"

// Raw is one breadcrumb as delivered by the API, the bus and the day files.
// Pointer fields distinguish a missing field from a zero value.
type Raw struct {
	EventNoTrip   *int64   `json:"EVENT_NO_TRIP" validate:"required"`
	EventNoStop   *int64   `json:"EVENT_NO_STOP,omitempty"`
	OpdDate       *string  `json:"OPD_DATE" validate:"required,min=9"`
	VehicleID     *int64   `json:"VEHICLE_ID" validate:"required"`
	Meters        *float64 `json:"METERS" validate:"required"`
	ActTime       *int64   `json:"ACT_TIME" validate:"required,gte=0"`
	GPSLongitude  *float64 `json:"GPS_LONGITUDE" validate:"required,gte=-180,lte=180"`
	GPSLatitude   *float64 `json:"GPS_LATITUDE" validate:"required,gte=-90,lte=90"`
	GPSSatellites *float64 `json:"GPS_SATELLITES,omitempty"`
	GPSHdop       *float64 `json:"GPS_HDOP,omitempty"`
}

// Record is a validated breadcrumb with its decoded timestamp.
type Record struct {
	TripID    int64
	VehicleID int64
	OpdDate   string
	ActTime   int64
	Latitude  float64
	Longitude float64
	Meters    float64
	Timestamp time.Time
}

// ServiceKey classifies a service day.
type ServiceKey string

const (
	Weekday  ServiceKey = "Weekday"
	Saturday ServiceKey = "Saturday"
	Sunday   ServiceKey = "Sunday"
)

// DefaultDirection is the direction stored for every trip; the feed carries none.
const DefaultDirection = "Out"

// Trip is the per-trip summary row.
type Trip struct {
	TripID     int64
	RouteID    *int64 // not populated by the transform
	VehicleID  int64
	ServiceKey ServiceKey
	Direction  string
}

// Breadcrumb is one stored sample.
type Breadcrumb struct {
	Timestamp time.Time
	Latitude  float64
	Longitude float64
	Speed     *float64 // meters per second; nil when undefined
	TripID    int64
}
