// Package rules loads matching rules from a directory of YAML files and
// scores them against an upload's filename, caller hint, and detected
// columns. Rules are re-read on every request; the directory is the
// source of truth.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultName is the reserved fallback rule. When present it matches
// any upload at a floor score of 0.1.
const DefaultName = "default"

// Match lists the signals a rule scores an upload against.
type Match struct {
	Filenames []string `yaml:"filenames"`
	Hints     []string `yaml:"hints"`
	Columns   []string `yaml:"columns"`
}

// Rule maps file and column signals onto column aliases and a dataset
// classification, with optional export hints.
type Rule struct {
	Name           string            `yaml:"-"`
	Match          Match             `yaml:"match"`
	ColumnAliases  map[string]string `yaml:"column_aliases"`
	DatasetType    string            `yaml:"dataset_type"`
	PrimaryKey     string            `yaml:"primary_key"`
	SheetsMode     string            `yaml:"sheets_mode"`
	WarehouseTable string            `yaml:"warehouse_table"`
}

// ListNames returns the rule names available in the directory, sorted.
func ListNames(rulesDir string) []string {
	entries, err := os.ReadDir(rulesDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !isRuleFile(entry.Name()) {
			continue
		}
		names = append(names, ruleName(entry.Name()))
	}
	sort.Strings(names)
	return names
}

// LoadMatching scores every rule in the directory and returns the best
// positive match, falling back to "default" at score 0.1. A nil rule
// means nothing matched. The notes trail records what happened.
func LoadMatching(rulesDir, filename, sourceHint string, columns []string) (*Rule, []string) {
	var notes []string

	entries, err := os.ReadDir(rulesDir)
	if err != nil {
		notes = append(notes, "rules_directory_missing")
		return nil, notes
	}

	type candidate struct {
		rule  *Rule
		score float64
	}
	var candidates []candidate

	for _, entry := range entries {
		if entry.IsDir() || !isRuleFile(entry.Name()) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(rulesDir, entry.Name()))
		if err != nil {
			notes = append(notes, fmt.Sprintf("rule_invalid:%s", entry.Name()))
			continue
		}
		var rule Rule
		if err := yaml.Unmarshal(raw, &rule); err != nil {
			notes = append(notes, fmt.Sprintf("rule_invalid:%s", entry.Name()))
			continue
		}
		rule.Name = ruleName(entry.Name())

		score := scoreRule(&rule, filename, sourceHint, columns)
		if score > 0 {
			candidates = append(candidates, candidate{rule: &rule, score: score})
		} else if rule.Name == DefaultName {
			candidates = append(candidates, candidate{rule: &rule, score: 0.1})
		}
	}

	if len(candidates) == 0 {
		return nil, notes
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}

	if best.rule.Name == DefaultName && best.score < 0.5 {
		notes = append(notes, "default_rule_applied")
	} else {
		notes = append(notes, fmt.Sprintf("rule_selected:%s", best.rule.Name))
	}
	return best.rule, notes
}

func scoreRule(rule *Rule, filename, sourceHint string, columns []string) float64 {
	score := 0.0

	loweredFilename := strings.ToLower(filename)
	for _, token := range rule.Match.Filenames {
		token = strings.ToLower(token)
		if token != "" && strings.Contains(loweredFilename, token) {
			score += 0.6
		}
	}

	if sourceHint != "" {
		loweredHint := strings.ToLower(sourceHint)
		for _, token := range rule.Match.Hints {
			token = strings.ToLower(token)
			if token != "" && strings.Contains(loweredHint, token) {
				score += 0.6
			}
		}
	}

	if len(rule.Match.Columns) > 0 {
		detected := make(map[string]bool, len(columns))
		for _, column := range columns {
			detected[strings.ToLower(column)] = true
		}
		overlap := 0
		for _, keyword := range rule.Match.Columns {
			if detected[strings.ToLower(keyword)] {
				overlap++
			}
		}
		if overlap > 0 {
			bonus := 0.1 * float64(overlap)
			if bonus > 0.4 {
				bonus = 0.4
			}
			score += bonus
		}
	}

	return score
}

func isRuleFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func ruleName(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	return name
}
