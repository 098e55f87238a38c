package models

// Location is where a report was filed: a free-text description plus an
// optional coordinate picked on the map.
type Location struct {
	Description string   `bson:"description" json:"description"`
	Lat         *float64 `bson:"lat,omitempty" json:"lat,omitempty"`
	Lng         *float64 `bson:"lng,omitempty" json:"lng,omitempty"`
}

// HasCoordinate reports whether both latitude and longitude are set.
func (l Location) HasCoordinate() bool {
	return l.Lat != nil && l.Lng != nil
}

// NewCoordinate builds a Location carrying a coordinate.
func NewCoordinate(description string, lat, lng float64) Location {
	return Location{Description: description, Lat: &lat, Lng: &lng}
}
