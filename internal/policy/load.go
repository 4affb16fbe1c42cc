package policy

import (
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rezahh107/Matrix2/internal/alloerr"
)

// expectedMajorMinor is the major.minor prefix Load requires of
// version. A patch-level mismatch is accepted; a major.minor mismatch is
// not, matching spec §4.1 ("version matches the expected major.minor").
const expectedMajorMinor = "1.0"

// Load parses and validates a PolicyConfig from r. It returns a
// *alloerr.Error with Kind alloerr.PolicyInvalid on any validation failure,
// matching the fail-fast contract in spec §4.1 — the first violation found
// aborts loading.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, alloerr.Wrap(alloerr.PolicyInvalid, err, "reading policy source")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, alloerr.Wrap(alloerr.PolicyInvalid, err, "parsing policy document")
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile opens path and delegates to Load.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, alloerr.Wrap(alloerr.PolicyInvalid, err, "opening policy file %s", path)
	}
	defer f.Close()
	return Load(f)
}

func validate(c *Config) error {
	if err := validateVersion(c.Version); err != nil {
		return err
	}
	if err := validateJoinKeys(c.JoinKeys); err != nil {
		return err
	}
	if err := validateRankingRules(c.RankingRules); err != nil {
		return err
	}
	if err := validateTraceStages(c.TraceStages); err != nil {
		return err
	}
	if err := validateChannels(c.AllocationChannels); err != nil {
		return err
	}
	if err := validateSchoolBinding(c.SchoolBinding); err != nil {
		return err
	}
	validateCenterGate(c)
	return nil
}

func validateVersion(v string) error {
	if v == "" {
		return alloerr.New(alloerr.PolicyInvalid, "version is required")
	}
	parts := strings.Split(v, ".")
	if len(parts) < 2 {
		return alloerr.New(alloerr.PolicyInvalid, "version %q is not major.minor[.patch]", v)
	}
	gotMajorMinor := parts[0] + "." + parts[1]
	if gotMajorMinor != expectedMajorMinor {
		return alloerr.New(alloerr.PolicyInvalid, "version %q does not match expected major.minor %q", v, expectedMajorMinor)
	}
	return nil
}

func validateJoinKeys(keys JoinKeys) error {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" {
			return alloerr.New(alloerr.PolicyInvalid, "join_keys entries must be non-empty")
		}
		if seen[k] {
			return alloerr.New(alloerr.PolicyInvalid, "join_keys entry %q is duplicated", k)
		}
		seen[k] = true
	}
	return nil
}

func validateRankingRules(rules []RankingRule) error {
	if len(rules) != len(RankingOrder) {
		return alloerr.New(alloerr.PolicyInvalid, "ranking_rules must have exactly %d entries, got %d", len(RankingOrder), len(rules))
	}
	for i, want := range RankingOrder {
		if rules[i] != want {
			return alloerr.New(alloerr.PolicyInvalid, "ranking_rules[%d] must be %q, got %q", i, want, rules[i])
		}
	}
	return nil
}

func validateTraceStages(stages []StageSpec) error {
	if len(stages) != len(StageOrder) {
		return alloerr.New(alloerr.PolicyInvalid, "trace_stages must have exactly %d entries, got %d", len(StageOrder), len(stages))
	}
	for i, want := range StageOrder {
		s := stages[i]
		if s.Name != want {
			return alloerr.New(alloerr.PolicyInvalid, "trace_stages[%d] must be %q, got %q", i, want, s.Name)
		}
		if s.SourceColumn == "" {
			return alloerr.New(alloerr.PolicyInvalid, "trace_stages[%d] (%s) missing source_column", i, s.Name)
		}
		if s.DropReason == "" {
			return alloerr.New(alloerr.PolicyInvalid, "trace_stages[%d] (%s) missing drop_reason", i, s.Name)
		}
		switch s.Kind {
		case KindExactInt, KindMembership, KindWildcardAware, KindCapacityGate:
		default:
			return alloerr.New(alloerr.PolicyInvalid, "trace_stages[%d] (%s) has unknown kind %q", i, s.Name, s.Kind)
		}
	}
	// type and group both source from the same join-key column by design
	// (spec §4.1: "one-to-many mapping is required, not a bug").
	if stages[0].SourceColumn != stages[1].SourceColumn {
		return alloerr.New(alloerr.PolicyInvalid,
			"trace_stages[0] (type) and trace_stages[1] (group) must share source_column, got %q and %q",
			stages[0].SourceColumn, stages[1].SourceColumn)
	}
	return nil
}

func validateChannels(rules []ChannelRule) error {
	if len(rules) == 0 {
		return alloerr.New(alloerr.PolicyInvalid, "allocation_channels must be non-empty")
	}
	for i, r := range rules {
		if !ValidChannels[r.Tag] {
			return alloerr.New(alloerr.PolicyInvalid, "allocation_channels[%d] has unknown tag %q", i, r.Tag)
		}
	}
	return nil
}

func validateSchoolBinding(b SchoolBinding) error {
	switch b.Mode {
	case BindingGlobal, BindingRestricted:
	default:
		return alloerr.New(alloerr.PolicyInvalid, "school_binding.mode must be %q or %q, got %q", BindingGlobal, BindingRestricted, b.Mode)
	}
	return nil
}

// validateCenterGate fills in the default wildcard downgrade (SPEC_FULL §D)
// when the policy document leaves invalid_center_mode unset; this is a
// defaulting step, not a hard validation failure, so it never errors.
func validateCenterGate(c *Config) {
	if c.CenterGate.InvalidCenterMode == "" {
		c.CenterGate.InvalidCenterMode = InvalidCenterWildcard
	}
}
