package models

// Bus represents a fleet vehicle a report can be filed against.
type Bus struct {
	ID     string `bson:"bus_id" json:"bus_id"`
	Name   string `bson:"bus_name" json:"bus_name"`
	Plate  string `bson:"bus_plate,omitempty" json:"bus_plate,omitempty"`
	Status string `bson:"bus_status,omitempty" json:"bus_status,omitempty"` // "active" or "inactive"
}

// Label is the dropdown text for the bus, falling back to its code.
func (b Bus) Label() string {
	if b.Name != "" {
		return b.Name
	}
	return b.ID
}
