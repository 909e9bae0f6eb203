package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Seller is a shop that lists devices. ScraperID names the parser that knows
// how to read the seller's product pages; several sellers may share one.
type Seller struct {
	ID        int64  `db:"id" yaml:"id"`
	Name      string `db:"name" yaml:"name"`
	ScraperID string `db:"scraper_id" yaml:"scraper_id"`
}

// Listing is a seller's sale page for a device, the unit of scraping.
type Listing struct {
	ID        int64     `db:"id" yaml:"id"`
	DeviceID  int64     `db:"device_id" yaml:"device_id"`
	SellerID  int64     `db:"seller_id" yaml:"seller_id"`
	URL       string    `db:"url" yaml:"url"`
	Active    bool      `db:"active" yaml:"active"`
	Metadata  Metadata  `db:"metadata" yaml:"metadata"`
	CreatedAt time.Time `db:"created_at" yaml:"-"`
}

// Metadata holds seller-specific parsing hints as a raw JSON document.
// Each scraper decodes it into its own typed structure.
type Metadata json.RawMessage

// Decode unmarshals the metadata into v. Empty metadata decodes as "{}".
func (m Metadata) Decode(v interface{}) error {
	if len(m) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(m, v)
}

// MarshalJSON keeps the document verbatim.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return m, nil
}

// UnmarshalJSON stores a copy of the raw document.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = append((*m)[:0], data...)
	return nil
}

// UnmarshalYAML lets catalog files write metadata as a plain YAML mapping.
func (m *Metadata) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw map[string]interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	*m = data
	return nil
}

// Value implements the driver.Valuer interface to store metadata as JSON text.
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	return string(m), nil
}

// Scan implements the sql.Scanner interface.
func (m *Metadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = nil
	case []byte:
		*m = append(Metadata(nil), v...)
	case string:
		*m = Metadata(v)
	default:
		return errors.New("unsupported type for Metadata")
	}
	return nil
}
