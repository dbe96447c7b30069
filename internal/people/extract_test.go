package people

import (
	"testing"

	"github.com/jonathan/outreach-agent/internal/roles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func extract(t *testing.T, html string) *Extraction {
	t.Helper()
	res, err := NewExtractor(zaptest.NewLogger(t)).ExtractAll(html, "https://acme.com/team", "acme.com")
	require.NoError(t, err)
	return res
}

func TestExtract_TeamCard(t *testing.T) {
	html := `
	<section class="team">
		<div class="team-member">
			<img src="jane.jpg" alt="">
			<h3>Jane Doe</h3>
			<p>Co-Founder</p>
			<a href="mailto:jane@acme.com">Email</a>
		</div>
	</section>`

	res := extract(t, html)
	require.Len(t, res.People, 1)

	p := res.People[0]
	assert.Equal(t, "Jane Doe", p.Name)
	assert.Equal(t, "jane doe", p.NormalizedName)
	assert.Equal(t, roles.CoFounder, p.Role)
	assert.Equal(t, StrategyTeamCard, p.Strategy)
	assert.Equal(t, TeamCardConfidence, p.Confidence)
	assert.Equal(t, "https://acme.com/team", p.SourceURL)
}

func TestExtract_RoleGateDropsNonDecisionMakers(t *testing.T) {
	html := `
	<div class="team-member"><h3>Tom Young</h3><p>Marketing Intern</p></div>
	<div class="team-member"><h3>Ann Lee</h3><p>CEO</p></div>
	<div class="team-member"><h3>Bob Ray</h3><span class="role">Office Manager</span></div>`

	res := extract(t, html)
	require.Len(t, res.People, 1)
	assert.Equal(t, "Ann Lee", res.People[0].Name)
	assert.Equal(t, 2, res.RolesRejected)

	for _, p := range res.People {
		assert.True(t, roles.Valid(p.Role))
	}
}

func TestExtract_DedupKeepsHighestConfidence(t *testing.T) {
	// The card is seen by both the card strategy (0.90) and the heading strategy (0.85).
	html := `
	<div class="team-member"><h3>John Smith</h3><p>CTO</p></div>
	<article><span class="byline">By John Smith, CTO</span></article>`

	res := extract(t, html)
	require.Len(t, res.People, 1)
	assert.Equal(t, TeamCardConfidence, res.People[0].Confidence)
	assert.Equal(t, StrategyTeamCard, res.People[0].Strategy)
}

func TestExtract_AuthorByline(t *testing.T) {
	html := `
	<article>
		<h1>Why we rebuilt our billing stack</h1>
		<div class="post-meta">
			<span class="author-name">Priya Patel</span>
			<span class="author-title">VP of Engineering</span>
		</div>
	</article>`

	res := extract(t, html)
	require.Len(t, res.People, 1)
	assert.Equal(t, "Priya Patel", res.People[0].Name)
	assert.Equal(t, roles.VPEngineering, res.People[0].Role)
	assert.Equal(t, StrategyAuthor, res.People[0].Strategy)
	assert.Equal(t, AuthorConfidence, res.People[0].Confidence)
}

func TestExtract_BylineWithInlineTitle(t *testing.T) {
	res := extract(t, `<p class="byline">Written by Marco Rossi | Head of Growth</p>`)
	require.Len(t, res.People, 1)
	assert.Equal(t, "Marco Rossi", res.People[0].Name)
	assert.Equal(t, roles.HeadOfGrowth, res.People[0].Role)
}

func TestExtract_HeadingFollowedByRole(t *testing.T) {
	html := `
	<h2>Our Leadership</h2>
	<h3>Maria van Dijk</h3>
	<div>Chief Operating Officer</div>
	<h3>Sam Carter - Founder</h3>`

	res := extract(t, html)
	require.Len(t, res.People, 2)

	assert.Equal(t, "Maria van Dijk", res.People[0].Name)
	assert.Equal(t, roles.COO, res.People[0].Role)
	assert.Equal(t, StrategyHeading, res.People[0].Strategy)
	assert.Equal(t, HeadingConfidence, res.People[0].Confidence)

	assert.Equal(t, "Sam Carter", res.People[1].Name)
	assert.Equal(t, roles.Founder, res.People[1].Role)
}

func TestExtract_SkipsCompanyBranding(t *testing.T) {
	res := extract(t, `<h2>Acme Labs</h2><p>CEO</p>`)
	assert.Empty(t, res.People)
}

func TestExtract_NoPeople(t *testing.T) {
	res := extract(t, `<html><body><h1>Pricing</h1><p>Plans start at $10</p></body></html>`)
	assert.Empty(t, res.People)
	assert.Zero(t, res.RolesRejected)
}

func TestExtract_Wrapper(t *testing.T) {
	people, err := NewExtractor(nil).Extract(`<div class="person"><h4>Lena Park</h4><p>Founder</p></div>`, "https://acme.com/about", "acme.com")
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, roles.Founder, people[0].Role)
}

func TestLooksLikeName(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"Jane Doe", true},
		{"Dr. Jane Doe", true},
		{"Mary-Jane O'Neil", true},
		{"José Álvarez", true},
		{"Maria van Dijk", true},
		{"Jane", false},
		{"Meet The Team", false},
		{"Chief Executive Officer", false},
		{"Head of Product", false},
		{"jane doe", false},
		{"Jane Doe 2024", false},
		{"Our Story So Far Today Now", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeName(tt.input))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "jane doe", NormalizeName("  Jane   DOE "))
	assert.Equal(t, "jane doe", NormalizeName(CleanName("Dr. Jane Doe")))
}
