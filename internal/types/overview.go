package types

// Overview is a system-wide snapshot of discovery and sending.
type Overview struct {
	Companies int            `json:"companies"`
	Emails    EmailOverview  `json:"emails"`
	Campaigns CampaignCounts `json:"campaigns"`
	TotalSent int            `json:"total_sent"`
}

// EmailOverview counts email candidates by state.
type EmailOverview struct {
	Total      int `json:"total"`
	Discovered int `json:"discovered"`
	Validated  int `json:"validated"`
	Rejected   int `json:"rejected"`
	Queued     int `json:"queued"`
}

// CampaignCounts counts campaigns.
type CampaignCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}
