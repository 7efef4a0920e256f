package esign

import "strings"

// Status is a transaction status as understood by this application.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusSigned    Status = "signed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

var statusByAPIValue = map[string]Status{
	"DRAFT":       StatusPending,
	"CREATED":     StatusPending,
	"PENDING":     StatusSent,
	"STARTED":     StatusSent,
	"LAUNCHED":    StatusSent,
	"SENT":        StatusSent,
	"IN_PROGRESS": StatusSent,
	"SIGNED":      StatusSigned,
	"FINISHED":    StatusSigned,
	"COMPLETED":   StatusSigned,
	"EXPIRED":     StatusExpired,
	"CANCELED":    StatusCancelled,
	"CANCELLED":   StatusCancelled,
	"REJECTED":    StatusCancelled,
	"ABORTED":     StatusCancelled,
}

// ParseStatus maps an API status value. Unrecognized values yield StatusUnknown.
func ParseStatus(raw string) Status {
	if s, ok := statusByAPIValue[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusUnknown
}
