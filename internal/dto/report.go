package dto

import "github.com/noah-isme/card-market-api/internal/models"

// CreateReportRequest flags a listing for moderation.
type CreateReportRequest struct {
	Reason  models.ReportReason `json:"reason" validate:"required,oneof=COUNTERFEIT MISLEADING SCAM OFFENSIVE OTHER"`
	Details string              `json:"details" validate:"max=2000"`
}

// ResolveReportRequest closes a report with an optional note.
type ResolveReportRequest struct {
	Note string `json:"note" validate:"max=1000"`
}
