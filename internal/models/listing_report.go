package models

import "time"

// ReportStatus is the lifecycle state of a listing report.
type ReportStatus string

const (
	ReportOpen     ReportStatus = "OPEN"
	ReportResolved ReportStatus = "RESOLVED"
	ReportRejected ReportStatus = "REJECTED"
)

// ReportReason classifies why a listing was flagged.
type ReportReason string

const (
	ReasonCounterfeit ReportReason = "COUNTERFEIT"
	ReasonMisleading  ReportReason = "MISLEADING"
	ReasonScam        ReportReason = "SCAM"
	ReasonOffensive   ReportReason = "OFFENSIVE"
	ReasonOther       ReportReason = "OTHER"
)

// ListingReport is a user's complaint about a listing, triaged by admins.
type ListingReport struct {
	ID             string       `db:"id" json:"id"`
	ListingID      string       `db:"listing_id" json:"listingId"`
	ReporterUserID string       `db:"reporter_user_id" json:"reporterUserId"`
	Reason         ReportReason `db:"reason" json:"reason"`
	Details        string       `db:"details" json:"details"`
	Status         ReportStatus `db:"status" json:"status"`
	ResolvedBy     *string      `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolvedAt     *time.Time   `db:"resolved_at" json:"resolvedAt,omitempty"`
	ResolutionNote *string      `db:"resolution_note" json:"resolutionNote,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updatedAt"`
}

// ReportFilter narrows report queries.
type ReportFilter struct {
	Status ReportStatus
	Page   Page
}
