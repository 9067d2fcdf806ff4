// Package policyfile loads the deployment policy set from a YAML file.
package policyfile

import (
	"fmt"
	"os"

	domainservices "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/services"

	"gopkg.in/yaml.v3"
)

type penaltyConfig struct {
	Kind        string `yaml:"kind"`
	Bps         int64  `yaml:"bps"`
	Destination string `yaml:"destination"`
}

type votingConfig struct {
	AllowSplit       bool   `yaml:"allow_split"`
	ZeroVoteFallback string `yaml:"zero_vote_fallback"`
}

type fileConfig struct {
	Penalty penaltyConfig `yaml:"penalty"`
	Voting  votingConfig  `yaml:"voting"`
}

// Load reads the policy set from path. An empty path returns the defaults;
// fields missing from the file keep their default values.
func Load(path string) (domainservices.PolicySet, error) {
	policies := domainservices.DefaultPolicySet()
	if path == "" {
		return policies, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domainservices.PolicySet{}, fmt.Errorf("read policy file: %w", err)
	}
	config := fileConfig{
		Penalty: penaltyConfig{
			Kind:        string(policies.Penalty.Kind),
			Bps:         policies.Penalty.Bps,
			Destination: string(policies.Penalty.Destination),
		},
		Voting: votingConfig{
			AllowSplit:       policies.Voting.AllowSplit,
			ZeroVoteFallback: policies.Voting.ZeroVoteFallback,
		},
	}
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return domainservices.PolicySet{}, fmt.Errorf("parse policy file: %w", err)
	}

	policies = domainservices.PolicySet{
		Penalty: domainservices.PenaltyPolicy{
			Kind:        domainservices.PenaltyKind(config.Penalty.Kind),
			Bps:         config.Penalty.Bps,
			Destination: domainservices.PenaltyDestination(config.Penalty.Destination),
		},
		Voting: domainservices.VotingPolicy{
			AllowSplit:       config.Voting.AllowSplit,
			ZeroVoteFallback: config.Voting.ZeroVoteFallback,
		},
	}
	if err := policies.Validate(); err != nil {
		return domainservices.PolicySet{}, fmt.Errorf("invalid policy file: %w", err)
	}
	return policies, nil
}
