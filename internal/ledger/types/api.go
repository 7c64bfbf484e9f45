package types

// ObservationRequest is the JSON body a networked reader module posts.
type ObservationRequest struct {
	CardID     string `json:"card_id"`
	ObservedAt string `json:"observed_at,omitempty"` // optional RFC 3339 device timestamp
}

type ObservationResponse struct {
	OK           bool         `json:"ok"`
	Outcome      OutcomeKind  `json:"outcome"`
	Granted      bool         `json:"granted"`
	Transition   Transition   `json:"transition,omitempty"`
	ExternalCode string       `json:"external_code,omitempty"`
	DisplayName  string       `json:"display_name,omitempty"`
	Dwell        *DwellRecord `json:"dwell,omitempty"`
	Warnings     []string     `json:"warnings,omitempty"`
	ServerTime   string       `json:"server_time"`
}

type EnrollRequest struct {
	CardID       string `json:"card_id"`
	DisplayName  string `json:"display_name"`
	ExternalCode string `json:"external_code"`
	TypeCode     string `json:"type_code,omitempty"`
}

type EnrollResponse struct {
	OK       bool     `json:"ok"`
	Identity Identity `json:"identity"`
}

type OccupancyResponse struct {
	Count     int              `json:"count"`
	Occupants []OccupantRecord `json:"occupants"`
}

type EventsResponse struct {
	ExternalCode string  `json:"external_code"`
	Events       []Event `json:"events"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
