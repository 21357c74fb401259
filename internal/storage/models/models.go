package models

// PartyProjection is one entry of the national overview's projection
// list, stored as JSON alongside the overview row.
type PartyProjection struct {
	Party     string  `json:"party"`
	VoteShare float64 `json:"voteShare"`
	SeatShare float64 `json:"seatShare"`
	Trend     float64 `json:"trend"`
}

type NationalOverview struct {
	LastUpdated      string            `json:"lastUpdated"`
	TurnoutEstimate  float64           `json:"turnoutEstimate"`
	Uncertainty      float64           `json:"uncertainty"`
	PartyProjections []PartyProjection `json:"partyProjections"`
	ScenarioNotes    []string          `json:"scenarioNotes"`
	PrimaryChart     map[string]any    `json:"primaryChart,omitempty"`
}

type MunicipalitySnapshot struct {
	ID           int64   `json:"id"`
	Slug         string  `json:"slug"`
	Name         string  `json:"name"`
	Region       string  `json:"region"`
	LeadingParty string  `json:"leadingParty"`
	VoteShare    float64 `json:"voteShare"`
	Turnout      float64 `json:"turnout"`
}

type Party struct {
	Letter     string `json:"letter"`
	Name       string `json:"name"`
	LeaderName string `json:"leaderName"`
	LogoURL    string `json:"logoUrl"`
	Color      string `json:"color"`
	Order      int    `json:"order"`
}

type Pollster struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
	LogoURL    string `json:"logoUrl,omitempty"`
	WebsiteURL string `json:"websiteUrl,omitempty"`
}

type Poll struct {
	ID          string `json:"id"`
	PollsterID  string `json:"pollsterId"`
	ConductedAt string `json:"conductedAt"`
	SampleSize  int    `json:"sampleSize"`
	Methodology string `json:"methodology"`
}

// PollResult is one party's share in one poll; many-to-one with Poll.
type PollResult struct {
	PollID string  `json:"pollId"`
	Party  string  `json:"party"`
	Value  float64 `json:"value"`
}

// PollWithResults is the joined read-side shape served to the
// dashboard: the header plus pollster info and per-party values.
type PollWithResults struct {
	Poll
	Pollster     string       `json:"pollster"`
	PollsterCode string       `json:"pollsterCode"`
	Parties      []PollResult `json:"parties"`
}

type Scenario struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Probability     float64        `json:"probability"`
	ImpactedParties []string       `json:"impactedParties"`
	ChartSummary    map[string]any `json:"chartSummary,omitempty"`
}

type Region struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
	Order     int    `json:"order"`
}

// ElectionResult is a raw precinct-level tally row from the live
// election feed. Field names follow the upstream Danish feed.
type ElectionResult struct {
	ID                int64  `json:"id"`
	Afstemningsomrade string `json:"afstemningsomrade"`
	Bogstavbetegnelse string `json:"bogstavbetegnelse"`
	Listenavn         string `json:"listenavn"`
	Navn              string `json:"navn"`
	Stemmetal         int    `json:"stemmetal"`
	Municipality      string `json:"municipality"`
	LastPull          string `json:"lastPull"`
}
