package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexroute/internal/domain"
)

func testProfile(id string) domain.AgentProfile {
	return domain.AgentProfile{
		ID:           id,
		Name:         id + " agent",
		Keywords:     []string{id},
		SystemPrompt: "You are {{.AgentName}}.",
		Output: domain.OutputSchema{Sections: []domain.SectionSpec{
			{Key: "summary", Title: "Summary", Required: true},
		}},
	}
}

func TestBuiltinRegistry(t *testing.T) {
	r, err := New(Builtin(), FallbackID)
	require.NoError(t, err)

	assert.Equal(t, 11, r.Len())
	assert.Equal(t, FallbackID, r.Fallback().ID)
	assert.Empty(t, r.Fallback().Keywords)

	all := r.All()
	assert.Equal(t, "property_violations", all[0].ID)
	assert.Equal(t, "public_nuisance", all[9].ID)
	assert.Equal(t, FallbackID, all[10].ID)

	for _, p := range all {
		assert.NotEmpty(t, p.Name, p.ID)
		assert.NotEmpty(t, p.Output.RequiredKeys(), p.ID)
		if p.ID != FallbackID {
			assert.NotEmpty(t, p.Keywords, p.ID)
		}
	}
}

func TestLookup(t *testing.T) {
	r, err := New(Builtin(), FallbackID)
	require.NoError(t, err)

	p, err := r.Lookup("rti_transparency")
	require.NoError(t, err)
	assert.Equal(t, "RTI & Transparency Specialist", p.Name)

	_, err = r.Lookup("tax_evasion")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
	assert.Equal(t, domain.CodeAgentNotFound, domain.ErrorCodeOf(err))
}

func TestLookupReturnsCopy(t *testing.T) {
	r, err := New(Builtin(), FallbackID)
	require.NoError(t, err)

	p, _ := r.Lookup("water_drainage")
	p.Keywords[0] = "mutated"
	p.Name = "mutated"

	again, _ := r.Lookup("water_drainage")
	assert.Equal(t, "water supply", again.Keywords[0])
	assert.Equal(t, "Water & Drainage Specialist", again.Name)
}

func TestNewRejectsInvalidProfiles(t *testing.T) {
	badTemplate := testProfile("b")
	badTemplate.SystemPrompt = "You are {{.AgentName"

	emptyPrompt := testProfile("c")
	emptyPrompt.SystemPrompt = "  "

	badSchema := testProfile("d")
	badSchema.Output.JSONSchema = `{not json`

	dupSection := testProfile("e")
	dupSection.Output.Sections = append(dupSection.Output.Sections, domain.SectionSpec{Key: "Summary"})

	tests := []struct {
		name     string
		profiles []domain.AgentProfile
		fallback string
	}{
		{"empty", nil, "a"},
		{"empty id", []domain.AgentProfile{testProfile("")}, ""},
		{"duplicate id", []domain.AgentProfile{testProfile("a"), testProfile("a")}, "a"},
		{"bad template", []domain.AgentProfile{testProfile("a"), badTemplate}, "a"},
		{"empty prompt", []domain.AgentProfile{testProfile("a"), emptyPrompt}, "a"},
		{"bad json schema", []domain.AgentProfile{testProfile("a"), badSchema}, "a"},
		{"duplicate section", []domain.AgentProfile{testProfile("a"), dupSection}, "a"},
		{"unknown fallback", []domain.AgentProfile{testProfile("a")}, "zzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.profiles, tt.fallback)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestNewDuplicateIsAlsoDuplicate(t *testing.T) {
	_, err := New([]domain.AgentProfile{testProfile("a"), testProfile("a")}, "a")
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestNewDoesNotAliasInput(t *testing.T) {
	in := []domain.AgentProfile{testProfile("a")}
	r, err := New(in, "a")
	require.NoError(t, err)

	in[0].Keywords[0] = "changed"
	p, _ := r.Lookup("a")
	assert.Equal(t, "a", p.Keywords[0])
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	content := `agents:
  - id: consumer_disputes
    name: Consumer Disputes Specialist
    specialization: Consumer Protection Law
    keywords: [refund, defective product, consumer forum]
  - id: general
    name: General
    system_prompt: "You are {{.AgentName}} for {{.Jurisdiction}}."
    jurisdiction: Maharashtra
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	profiles, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	assert.Equal(t, DefaultSystemPrompt, profiles[0].SystemPrompt)
	assert.Equal(t, DefaultJurisdiction, profiles[0].Jurisdiction)
	assert.Equal(t, []string{"refund", "defective product", "consumer forum"}, profiles[0].Keywords)
	assert.NotEmpty(t, profiles[0].Output.Sections)

	assert.Equal(t, "You are {{.AgentName}} for {{.Jurisdiction}}.", profiles[1].SystemPrompt)
	assert.Equal(t, "Maharashtra", profiles[1].Jurisdiction)

	r, err := New(profiles, "general")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents: []\n"), 0o600))
	_, err = LoadFile(path)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	path = filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents: [::"), 0o600))
	_, err = LoadFile(path)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestProfilesAppendsInline(t *testing.T) {
	profiles, err := Profiles("", []domain.AgentProfile{{ID: "tax", Keywords: []string{"income tax"}}})
	require.NoError(t, err)
	require.Len(t, profiles, 12)
	assert.Equal(t, "tax", profiles[11].ID)
	assert.Equal(t, "tax", profiles[11].Name)
	assert.Equal(t, DefaultSystemPrompt, profiles[11].SystemPrompt)

	_, err = New(profiles, FallbackID)
	require.NoError(t, err)
}

func TestProfilesDuplicateInlineIsFatal(t *testing.T) {
	profiles, err := Profiles("", []domain.AgentProfile{{ID: "rti_transparency"}})
	require.NoError(t, err)
	_, err = New(profiles, FallbackID)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
