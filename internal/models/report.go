package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ReportKind enumerates aggregation granularities.
type ReportKind string

const (
	ReportKindDaily   ReportKind = "DAILY"
	ReportKindWeekly  ReportKind = "WEEKLY"
	ReportKindMonthly ReportKind = "MONTHLY"
)

// Valid reports whether the kind is a supported value.
func (k ReportKind) Valid() bool {
	switch k {
	case ReportKindDaily, ReportKindWeekly, ReportKindMonthly:
		return true
	default:
		return false
	}
}

// UsageReportStatus captures report lifecycle states.
type UsageReportStatus string

const (
	UsageReportCompleted UsageReportStatus = "COMPLETED"
	UsageReportFailed    UsageReportStatus = "FAILED"
)

// UsageStatistics holds the aggregate counters for a report. Counts are exact
// integers; VerificationRate is a whole-number percentage rounded half-up and
// is the only derived field.
type UsageStatistics struct {
	Total            int `json:"total"`
	Verified         int `json:"verified"`
	Pending          int `json:"pending"`
	Rejected         int `json:"rejected"`
	VerificationRate int `json:"verification_rate"`
}

// ClassroomUsage is the per-classroom slice of a report's statistics.
type ClassroomUsage struct {
	ClassroomID string `json:"classroom_id"`
	Total       int    `json:"total"`
	Verified    int    `json:"verified"`
	Pending     int    `json:"pending"`
	Rejected    int    `json:"rejected"`
}

// UsageReport is an immutable aggregation result.
//
// Daily reports reference time entries; weekly and monthly reports reference
// the finer-grained reports they were summed from. Once Status is COMPLETED
// the report never changes; a correction requires a superseding report.
type UsageReport struct {
	ID          string             `db:"id" json:"id"`
	Kind        ReportKind         `db:"kind" json:"kind"`
	PeriodStart time.Time          `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time          `db:"period_end" json:"period_end"`
	SourceRefs  pq.StringArray     `db:"source_refs" json:"source_refs"`
	Statistics  UsageStatistics    `db:"statistics" json:"statistics"`
	Breakdown   ClassroomBreakdown `db:"breakdown" json:"breakdown"`
	Status      UsageReportStatus  `db:"status" json:"status"`
	GeneratedBy string             `db:"generated_by" json:"generated_by"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}

// UsageReportFilter scopes report listing.
type UsageReportFilter struct {
	Kind     *ReportKind
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// ClassroomBreakdown is the JSONB-persisted per-classroom slice list.
type ClassroomBreakdown []ClassroomUsage

// Value marshals the breakdown for persistence.
func (b ClassroomBreakdown) Value() (driver.Value, error) {
	if b == nil {
		b = ClassroomBreakdown{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal classroom breakdown: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the breakdown slice.
func (b *ClassroomBreakdown) Scan(value interface{}) error {
	if value == nil {
		*b = ClassroomBreakdown{}
		return nil
	}
	data, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("scan classroom breakdown: %w", err)
	}
	if len(data) == 0 {
		*b = ClassroomBreakdown{}
		return nil
	}
	if err := json.Unmarshal(data, b); err != nil {
		return fmt.Errorf("unmarshal classroom breakdown: %w", err)
	}
	return nil
}

// Value marshals statistics for persistence.
func (s UsageStatistics) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal usage statistics: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the statistics struct.
func (s *UsageStatistics) Scan(value interface{}) error {
	if value == nil {
		*s = UsageStatistics{}
		return nil
	}
	data, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("scan usage statistics: %w", err)
	}
	if len(data) == 0 {
		*s = UsageStatistics{}
		return nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("unmarshal usage statistics: %w", err)
	}
	return nil
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}
