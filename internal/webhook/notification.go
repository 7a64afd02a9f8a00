package webhook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"gazeta/internal/model"
)

// EventConcursoFindings is the event type for public competition
// notifications.
const EventConcursoFindings = "concurso.findings"

// Notification is the JSON body posted to subscribers.
type Notification struct {
	NotificationID string          `json:"notificationId"`
	EventType      string          `json:"eventType"`
	Timestamp      time.Time       `json:"timestamp"`
	TerritoryID    string          `json:"territoryId"`
	GazetteID      string          `json:"gazetteId"`
	GazetteDate    string          `json:"gazetteDate"`
	AnalysisJobID  string          `json:"analysisJobId"`
	Summary        string          `json:"summary"`
	TotalFindings  int             `json:"totalFindings"`
	HighConfidence int             `json:"highConfidenceFindings"`
	StoredCount    int             `json:"storedCount"`
	Findings       []model.Finding `json:"findings"`
	PDFURL         string          `json:"pdfUrl,omitempty"`
}

// NotificationInput carries what the analysis worker knows when it
// prepares a notification. StoredCount is the re-queried number of
// persisted concurso rows, never an assumed one.
type NotificationInput struct {
	TerritoryID    string
	GazetteID      string
	GazetteDate    string
	AnalysisJobID  string
	Summary        string
	TotalFindings  int
	HighConfidence int
	StoredCount    int
	Findings       []model.Finding
	PDFURL         string
}

// NewConcursoNotification builds the notification body for one
// analysis outcome. The notification id is fresh per preparation, so
// redelivered queue messages reuse the id carried in the message.
func NewConcursoNotification(in NotificationInput) Notification {
	return Notification{
		NotificationID: uuid.New().String(),
		EventType:      EventConcursoFindings,
		Timestamp:      time.Now().UTC(),
		TerritoryID:    in.TerritoryID,
		GazetteID:      in.GazetteID,
		GazetteDate:    in.GazetteDate,
		AnalysisJobID:  in.AnalysisJobID,
		Summary:        in.Summary,
		TotalFindings:  in.TotalFindings,
		HighConfidence: in.HighConfidence,
		StoredCount:    in.StoredCount,
		Findings:       in.Findings,
		PDFURL:         in.PDFURL,
	}
}

// Encode renders the notification body.
func (n Notification) Encode() (json.RawMessage, error) {
	return json.Marshal(n)
}
