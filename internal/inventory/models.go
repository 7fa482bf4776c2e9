// Package inventory is the equipment hierarchy the audit pipeline fronts:
// Site→Cell→Equipment→PLC→Tag. It is deliberately thin; its job here is
// to produce the mutating statements the audit engine observes.
package inventory

import (
	"time"
)

type Site struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Cell struct {
	ID         string    `json:"id"`
	SiteID     string    `json:"site_id"`
	Name       string    `json:"name"`
	LineNumber int       `json:"line_number,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Equipment struct {
	ID            string    `json:"id"`
	CellID        string    `json:"cell_id"`
	Name          string    `json:"name"`
	EquipmentType string    `json:"equipment_type,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type PLC struct {
	ID              string    `json:"id"`
	EquipmentID     string    `json:"equipment_id"`
	Name            string    `json:"name"`
	IPAddress       string    `json:"ip_address,omitempty"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
	Rack            int       `json:"rack,omitempty"`
	Slot            int       `json:"slot,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Tag struct {
	ID        string    `json:"id"`
	PLCID     string    `json:"plc_id"`
	Name      string    `json:"name"`
	DataType  string    `json:"data_type,omitempty"`
	Address   string    `json:"address,omitempty"`
	Scaling   string    `json:"scaling,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
