package amqp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chantier/internal/core"
)

// ExportRequestMessage asks the worker to write a site report to the
// spreadsheet. The worker loads the records itself; Date limits the report
// to one day when set.
type ExportRequestMessage struct {
	SiteID    int64     `json:"site_id"`
	OwnerID   string    `json:"owner_id"`
	Date      string    `json:"date,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExportRequestMessage(ownerID string, siteID int64, date *core.Date) *ExportRequestMessage {
	msg := &ExportRequestMessage{
		SiteID:    siteID,
		OwnerID:   ownerID,
		Timestamp: time.Now(),
	}
	if date != nil {
		msg.Date = date.String()
	}
	return msg
}

func (m *ExportRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExportRequestMessageFromJSON(data []byte) (*ExportRequestMessage, error) {
	var msg ExportRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.SiteID <= 0 || strings.TrimSpace(msg.OwnerID) == "" {
		return nil, fmt.Errorf("export request missing site or owner")
	}
	return &msg, nil
}

// Session returns the session the export runs under.
func (m *ExportRequestMessage) Session() core.Session {
	return core.Session{OwnerID: m.OwnerID}
}

// Day returns the requested day, or nil for a whole-site export.
func (m *ExportRequestMessage) Day() (*core.Date, error) {
	if m.Date == "" {
		return nil, nil
	}
	d, err := core.ParseDate(m.Date)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
