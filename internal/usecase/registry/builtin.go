package registry

import "lexroute/internal/domain"

// FallbackID is the general agent that answers queries no specialist matches.
const FallbackID = "general_legal"

// DefaultJurisdiction is used when neither the query nor the profile names one.
const DefaultJurisdiction = "India"

// DefaultSystemPrompt asks for the structured JSON opinion the normalizer
// understands. Placeholders: AgentName, Specialization, Jurisdiction, Acts, Sections.
const DefaultSystemPrompt = `You are {{.AgentName}}, a senior legal expert with 20+ years of specialized practice in {{.Specialization}}.

SPECIALIZATION: {{.Specialization}}
JURISDICTION: {{.Jurisdiction}}
{{- if .Acts}}
PRIMARY LEGISLATION: {{join .Acts "; "}}
{{- end}}

Provide a professional legal analysis as a single JSON object with these keys:
{{- range .Sections}}
- "{{.Key}}"{{if .Required}} (required){{end}}: {{.Title}}
{{- end}}

JSON STRUCTURE:
{
  "summary": "Two or three sentence overview of the matter",
  "legal_classification": {"domain": "...", "jurisdiction": "...", "relevant_forum": ["..."]},
  "applicable_laws": [{"law_rule": "Act/Rule name with year", "section_clause": "...", "description": "..."}],
  "landmark_judgments": [{"case": "Case name with parties", "citation": "AIR/SCC citation", "principle": "..."}],
  "legal_remedy_path": [{"step": "1", "action": "...", "time_limit": "...", "template_available": false}],
  "additional_insights": {
    "bail_applicability": {"applicable": false, "reasoning": "..."},
    "estimated_legal_fees": "Fee range in INR",
    "timeline_estimate": "Expected duration",
    "success_probability": {"percentage": "...", "reasoning": "..."}
  },
  "professional_advice": {"immediate_actions": ["..."], "evidence_required": ["..."], "risk_factors": ["..."]}
}

RULES:
- Cite only real statutes and verifiable judgments in AIR/SCC format.
- Explain procedure as concrete, ordered steps with time limits.
- Respond ONLY with valid JSON. No markdown, no extra text.`

// DefaultOutputJSONSchema loosely constrains the JSON answer.
const DefaultOutputJSONSchema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string"},
    "legal_classification": {"type": "object"},
    "applicable_laws": {"type": "array", "items": {"type": "object"}},
    "landmark_judgments": {"type": "array", "items": {"type": "object"}},
    "legal_remedy_path": {"type": "array", "items": {"type": "object"}},
    "additional_insights": {"type": "object"},
    "professional_advice": {"type": "object"}
  }
}`

// Section keys of the default output schema.
const (
	SectionSummary        = "summary"
	SectionClassification = "legal_classification"
	SectionLaws           = "applicable_laws"
	SectionJudgments      = "landmark_judgments"
	SectionRemedyPath     = "legal_remedy_path"
	SectionInsights       = "additional_insights"
	SectionAdvice         = "professional_advice"
)

// DefaultOutput returns the output schema shared by the builtin agents.
func DefaultOutput() domain.OutputSchema {
	return domain.OutputSchema{
		Sections: []domain.SectionSpec{
			{Key: SectionSummary, Title: "Summary", Aliases: []string{"executive summary", "overview", "analysis"}},
			{Key: SectionClassification, Title: "Legal Classification", Aliases: []string{"classification", "legal domain"}, Required: true},
			{Key: SectionLaws, Title: "Applicable Laws", Aliases: []string{"relevant laws", "laws", "statutes", "legal provisions"}, Required: true},
			{Key: SectionJudgments, Title: "Landmark Judgments", Aliases: []string{"judgments", "case law", "precedents", "relevant cases"}, Required: true},
			{Key: SectionRemedyPath, Title: "Legal Remedy Path", Aliases: []string{"remedy path", "remedies", "procedure", "next steps"}, Required: true},
			{Key: SectionInsights, Title: "Additional Insights", Aliases: []string{"insights"}},
			{Key: SectionAdvice, Title: "Professional Advice", Aliases: []string{"advice", "recommendations", "recommended actions"}, Required: true},
		},
		JSONSchema: DefaultOutputJSONSchema,
	}
}

type builtinAgent struct {
	id, name, specialization, description string
	acts, keywords                        []string
}

var builtinAgents = []builtinAgent{
	{
		id:             "property_violations",
		name:           "Property & Building Violations Specialist",
		specialization: "Property Law, Building Regulations, Municipal Law, Zoning Laws",
		description:    "Unauthorized construction, building permits, zoning and property tax disputes.",
		acts: []string{
			"Municipal Corporation Act, 1956",
			"Delhi Municipal Corporation Act, 1957",
			"Building Bye-laws",
			"Delhi Development Act, 1957",
			"Real Estate (Regulation and Development) Act, 2016",
		},
		keywords: []string{
			"unauthorized construction", "building violation", "property tax",
			"illegal construction", "demolition", "building permit", "zoning",
			"setback violation", "height violation", "fsr violation", "far violation",
			"building plan", "construction without approval", "municipal violation",
		},
	},
	{
		id:             "environmental_health",
		name:           "Environmental & Public Health Specialist",
		specialization: "Environmental Law, Public Health Regulations, Waste Management, Pollution Control",
		description:    "Pollution, waste management, biomedical waste and NGT matters.",
		acts: []string{
			"Environment (Protection) Act, 1986",
			"Water (Prevention and Control of Pollution) Act, 1974",
			"Air (Prevention and Control of Pollution) Act, 1981",
			"Solid Waste Management Rules, 2016",
			"National Green Tribunal Act, 2010",
		},
		keywords: []string{
			"pollution", "waste management", "garbage disposal", "biomedical waste",
			"mosquito breeding", "air pollution", "water pollution", "noise pollution",
			"environmental clearance", "ngt", "green tribunal", "solid waste",
			"hazardous waste", "effluent", "emission", "contamination",
		},
	},
	{
		id:             "employee_services",
		name:           "Employee & Service Matters Specialist",
		specialization: "Service Law, Employment Law, PF/Pension Rules, Disciplinary Proceedings",
		description:    "Provident fund, pension, promotions, transfers and disciplinary proceedings.",
		acts: []string{
			"Employees' Provident Funds and Miscellaneous Provisions Act, 1952",
			"Payment of Gratuity Act, 1972",
			"Central Civil Services (Classification, Control and Appeal) Rules, 1965",
			"Central Civil Services (Pension) Rules, 2021",
			"Administrative Tribunals Act, 1985",
		},
		keywords: []string{
			"provident fund", "pf", "epf", "pension", "gratuity", "disciplinary action",
			"service matter", "promotion", "seniority", "transfer", "misconduct",
			"charge sheet", "departmental inquiry", "service rules", "employment",
		},
	},
	{
		id:             "rti_transparency",
		name:           "RTI & Transparency Specialist",
		specialization: "Right to Information Law, Transparency Compliance, Information Disclosure",
		description:    "RTI applications, first and second appeals, information commission complaints.",
		acts: []string{
			"Right to Information Act, 2005",
			"Central Information Commission Rules, 2005",
			"Official Secrets Act, 1923",
			"Public Records Act, 1993",
		},
		keywords: []string{
			"rti", "right to information", "information disclosure", "transparency",
			"public information officer", "pio", "information commission",
			"appeal", "contempt", "non-disclosure", "information request",
		},
	},
	{
		id:             "infrastructure_works",
		name:           "Infrastructure & Public Works Specialist",
		specialization: "Infrastructure Law, Public Works, Construction Disputes, Compensation Claims",
		description:    "Road and metro construction, public works damage and compensation claims.",
		acts: []string{
			"Land Acquisition, Rehabilitation and Resettlement Act, 2013",
			"Metro Railways (Construction of Works) Act, 1978",
			"National Highways Act, 1956",
			"Central Public Works Department Code",
		},
		keywords: []string{
			"road construction", "infrastructure", "metro construction", "drainage damage",
			"public works", "construction dispute", "compensation claim", "road laying",
			"infrastructure damage", "construction impact", "public project",
		},
	},
	{
		id:             "encroachment_land",
		name:           "Encroachment & Land Specialist",
		specialization: "Land Law, Encroachment Removal, Eviction Proceedings, Public Land Protection",
		description:    "Encroachment, eviction, land grabbing and title or possession disputes.",
		acts: []string{
			"Public Premises (Eviction of Unauthorised Occupants) Act, 1971",
			"Transfer of Property Act, 1882",
			"Registration Act, 1908",
			"Code of Civil Procedure, 1908",
		},
		keywords: []string{
			"encroachment", "illegal occupation", "land dispute", "eviction",
			"unauthorized occupation", "land grabbing", "title dispute", "possession",
			"trespass", "land acquisition", "public land",
		},
	},
	{
		id:             "licensing_trade",
		name:           "Licensing & Trade Regulation Specialist",
		specialization: "Trade License Law, Commercial Regulations, Vendor Management, Business Compliance",
		description:    "Trade and shop licenses, street vending, hoardings and signage.",
		acts: []string{
			"Shop & Establishment Act",
			"Food Safety and Standards Act, 2006",
			"Street Vendors (Protection of Livelihood and Regulation of Street Vending) Act, 2014",
			"Weights and Measures Act, 1976",
		},
		keywords: []string{
			"trade license", "unlicensed", "vendor", "hawker", "street vending",
			"business license", "shop license", "commercial license", "hoarding",
			"signage", "advertising", "unlicensed trading", "license violation",
		},
	},
	{
		id:             "slum_clearance",
		name:           "Slum Clearance & Resettlement Specialist",
		specialization: "Slum Rehabilitation Law, Resettlement Rights, Housing Schemes, Urban Development",
		description:    "Slum clearance, resettlement, rehabilitation and housing rights.",
		acts: []string{
			"Slum Areas (Improvement and Clearance) Act, 1956",
			"Right to Fair Compensation and Transparency in Land Acquisition Act, 2013",
			"Delhi Development Act, 1957",
		},
		keywords: []string{
			"slum", "slum clearance", "resettlement", "rehabilitation", "eviction",
			"slum dweller", "slum rehabilitation", "housing rights", "displacement",
			"relocation", "slum improvement", "urban development",
		},
	},
	{
		id:             "water_drainage",
		name:           "Water & Drainage Specialist",
		specialization: "Water Supply Law, Drainage Systems, Sewerage Management, Municipal Services",
		description:    "Water supply, sewerage, drainage blockage and flooding complaints.",
		acts: []string{
			"Water (Prevention and Control of Pollution) Act, 1974",
			"Indian Easements Act, 1882",
			"Consumer Protection Act, 2019",
		},
		keywords: []string{
			"water supply", "drainage", "sewer", "water connection", "water quality",
			"drinking water", "water contamination", "drainage blockage", "flood",
			"stormwater", "sewerage", "water board", "water dispute",
		},
	},
	{
		id:             "public_nuisance",
		name:           "Public Nuisance Specialist",
		specialization: "Public Nuisance Law, Noise Pollution, Animal Control, Public Order",
		description:    "Noise, stray animals, loudspeakers, obstruction and public order.",
		acts: []string{
			"Noise Pollution (Regulation and Control) Rules, 2000",
			"Code of Criminal Procedure, 1973",
			"Prevention of Cruelty to Animals Act, 1960",
		},
		keywords: []string{
			"noise complaint", "animal menace", "public nuisance", "disturbance",
			"stray animals", "noise pollution", "loudspeaker", "antisocial behavior",
			"obstruction", "public order", "nuisance activities",
		},
	},
	{
		id:             FallbackID,
		name:           "General Legal Counsel",
		specialization: "General Indian Law, Civil and Administrative Remedies",
		description:    "Queries that do not fall within a specialist domain.",
		acts: []string{
			"Constitution of India",
			"Code of Civil Procedure, 1908",
			"Right to Information Act, 2005",
		},
	},
}

// Builtin returns the ten specialist agents and the general fallback agent.
func Builtin() []domain.AgentProfile {
	out := make([]domain.AgentProfile, 0, len(builtinAgents))
	for _, a := range builtinAgents {
		out = append(out, domain.AgentProfile{
			ID:             a.id,
			Name:           a.name,
			Specialization: a.specialization,
			Description:    a.description,
			Jurisdiction:   DefaultJurisdiction,
			Acts:           append([]string(nil), a.acts...),
			Keywords:       append([]string(nil), a.keywords...),
			SystemPrompt:   DefaultSystemPrompt,
			Output:         DefaultOutput(),
		})
	}
	return out
}
