package models

import "time"

// BiometricScan is a raw device scan, ingested independently of any
// session and kept forever as an audit trail.
type BiometricScan struct {
	ID             string     `db:"id" json:"id"`
	DeviceID       string     `db:"device_id" json:"device_id"`
	DeviceType     string     `db:"device_type" json:"device_type"`
	BiometricID    string     `db:"biometric_id" json:"biometric_id"`
	ScanTime       time.Time  `db:"scan_time" json:"scan_time"`
	Processed      bool       `db:"processed" json:"processed"`
	LinkedRecordID *string    `db:"linked_record_id" json:"linked_record_id,omitempty"`
	IngestedAt     time.Time  `db:"ingested_at" json:"ingested_at"`
	ProcessedAt    *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// IngestResult summarises a device sync batch.
type IngestResult struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
}

// ReconcileResult summarises one reconciliation run.
type ReconcileResult struct {
	Processed int `json:"processed"`
	Unmatched int `json:"unmatched"`
}
