package transcriptapi

// Transcript is the payload returned by the remote transcript source
type Transcript struct {
	Ticker      string    `json:"ticker"`
	Year        int       `json:"year"`
	Quarter     int       `json:"quarter"`
	CompanyName string    `json:"company_name"`
	CallDate    string    `json:"call_date"` // YYYY-MM-DD
	Text        string    `json:"text"`
	Speakers    []Speaker `json:"speakers,omitempty"`
}

// Speaker identifies a participant on the call
type Speaker struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"` // CEO, CFO, Analyst, Operator...
}
