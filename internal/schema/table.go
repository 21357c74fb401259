package schema

// Table enumerates the ingestable tables. The mapper, validator and
// upsert engine all switch over this closed set; anything else is
// skipped rather than guessed at.
type Table string

const (
	TableNationalOverview      Table = "national_overview"
	TableMunicipalitySnapshots Table = "municipality_snapshots"
	TablePolls                 Table = "polls"
	TableScenarios             Table = "scenarios"
	TableCurrentResults        Table = "current_election_results"
)

// Known reports whether t is one of the five ingestable tables.
func (t Table) Known() bool {
	switch t {
	case TableNationalOverview, TableMunicipalitySnapshots, TablePolls, TableScenarios, TableCurrentResults:
		return true
	}
	return false
}
