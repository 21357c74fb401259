package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/valgdash/backend/internal/storage/models"
)

// GetNationalOverview returns the singleton overview row, or nil when
// nothing has been ingested yet.
func (c *Client) GetNationalOverview(ctx context.Context) (*models.NationalOverview, error) {
	var (
		overview        models.NationalOverview
		projectionsJSON string
		notesJSON       string
		chartJSON       sql.NullString
	)

	err := c.db.QueryRowContext(ctx,
		`SELECT last_updated, turnout_estimate, uncertainty, party_projections, scenario_notes, primary_chart
		 FROM national_overview LIMIT 1`,
	).Scan(&overview.LastUpdated, &overview.TurnoutEstimate, &overview.Uncertainty, &projectionsJSON, &notesJSON, &chartJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get national overview: %w", err)
	}

	json.Unmarshal([]byte(projectionsJSON), &overview.PartyProjections)
	json.Unmarshal([]byte(notesJSON), &overview.ScenarioNotes)
	if chartJSON.Valid {
		json.Unmarshal([]byte(chartJSON.String), &overview.PrimaryChart)
	}

	return &overview, nil
}

func (c *Client) ListMunicipalities(ctx context.Context) ([]models.MunicipalitySnapshot, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, slug, name, region, leading_party, vote_share, turnout FROM municipality_snapshots ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list municipalities: %w", err)
	}
	defer rows.Close()

	var snapshots []models.MunicipalitySnapshot
	for rows.Next() {
		var m models.MunicipalitySnapshot
		if err := rows.Scan(&m.ID, &m.Slug, &m.Name, &m.Region, &m.LeadingParty, &m.VoteShare, &m.Turnout); err != nil {
			return nil, fmt.Errorf("failed to scan municipality: %w", err)
		}
		snapshots = append(snapshots, m)
	}
	return snapshots, rows.Err()
}

func (c *Client) GetMunicipalityBySlug(ctx context.Context, slug string) (*models.MunicipalitySnapshot, error) {
	var m models.MunicipalitySnapshot
	err := c.db.QueryRowContext(ctx,
		`SELECT id, slug, name, region, leading_party, vote_share, turnout
		 FROM municipality_snapshots WHERE slug = ? ORDER BY id DESC LIMIT 1`, slug,
	).Scan(&m.ID, &m.Slug, &m.Name, &m.Region, &m.LeadingParty, &m.VoteShare, &m.Turnout)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get municipality: %w", err)
	}
	return &m, nil
}

// ListPolls returns polls newest-first, each joined with its pollster
// and per-party results.
func (c *Client) ListPolls(ctx context.Context) ([]models.PollWithResults, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT p.id, p.pollster_id, p.conducted_at, p.sample_size, p.methodology,
		        COALESCE(ps.name, 'Unknown'), COALESCE(ps.code, '')
		 FROM polls p
		 LEFT JOIN pollsters ps ON ps.id = p.pollster_id
		 ORDER BY p.conducted_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}
	defer rows.Close()

	var polls []models.PollWithResults
	for rows.Next() {
		var p models.PollWithResults
		if err := rows.Scan(&p.ID, &p.PollsterID, &p.ConductedAt, &p.SampleSize, &p.Methodology, &p.Pollster, &p.PollsterCode); err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range polls {
		results, err := c.listPollResults(ctx, polls[i].ID)
		if err != nil {
			return nil, err
		}
		polls[i].Parties = results
	}
	return polls, nil
}

func (c *Client) listPollResults(ctx context.Context, pollID string) ([]models.PollResult, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT poll_id, party, value FROM poll_results WHERE poll_id = ? ORDER BY id`, pollID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list poll results: %w", err)
	}
	defer rows.Close()

	var results []models.PollResult
	for rows.Next() {
		var r models.PollResult
		if err := rows.Scan(&r.PollID, &r.Party, &r.Value); err != nil {
			return nil, fmt.Errorf("failed to scan poll result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (c *Client) ListPollsters(ctx context.Context) ([]models.Pollster, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, code, name, ord, COALESCE(logo_url, ''), COALESCE(website_url, '') FROM pollsters ORDER BY ord`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pollsters: %w", err)
	}
	defer rows.Close()

	var pollsters []models.Pollster
	for rows.Next() {
		var p models.Pollster
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Order, &p.LogoURL, &p.WebsiteURL); err != nil {
			return nil, fmt.Errorf("failed to scan pollster: %w", err)
		}
		pollsters = append(pollsters, p)
	}
	return pollsters, rows.Err()
}

func (c *Client) ListParties(ctx context.Context) ([]models.Party, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT letter, name, COALESCE(leader_name, ''), COALESCE(logo_url, ''), COALESCE(color, ''), ord
		 FROM parties ORDER BY ord`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list parties: %w", err)
	}
	defer rows.Close()

	var parties []models.Party
	for rows.Next() {
		var p models.Party
		if err := rows.Scan(&p.Letter, &p.Name, &p.LeaderName, &p.LogoURL, &p.Color, &p.Order); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

func (c *Client) ListRegions(ctx context.Context) ([]models.Region, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT code, name, COALESCE(short_name, ''), ord FROM regions ORDER BY ord`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	defer rows.Close()

	var regions []models.Region
	for rows.Next() {
		var r models.Region
		if err := rows.Scan(&r.Code, &r.Name, &r.ShortName, &r.Order); err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

func (c *Client) ListScenarios(ctx context.Context) ([]models.Scenario, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, description, probability, impacted_parties, chart_summary
		 FROM scenarios ORDER BY probability DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []models.Scenario
	for rows.Next() {
		var (
			s           models.Scenario
			partiesJSON string
			chartJSON   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Probability, &partiesJSON, &chartJSON); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		json.Unmarshal([]byte(partiesJSON), &s.ImpactedParties)
		if chartJSON.Valid {
			json.Unmarshal([]byte(chartJSON.String), &s.ChartSummary)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, rows.Err()
}

func (c *Client) ListCurrentResults(ctx context.Context) ([]models.ElectionResult, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, afstemningsomrade, bogstavbetegnelse, listenavn, navn, stemmetal, municipality, last_pull
		 FROM current_election_results ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list current results: %w", err)
	}
	defer rows.Close()

	var results []models.ElectionResult
	for rows.Next() {
		var r models.ElectionResult
		if err := rows.Scan(&r.ID, &r.Afstemningsomrade, &r.Bogstavbetegnelse, &r.Listenavn, &r.Navn, &r.Stemmetal, &r.Municipality, &r.LastPull); err != nil {
			return nil, fmt.Errorf("failed to scan current result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
