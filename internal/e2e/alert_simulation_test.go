package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

var headingPattern = regexp.MustCompile(`(?m)^#+\s+(.+)$`)

func loadRules(t *testing.T) []alertRule {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "stockledger.yml"))
	require.NoError(t, err)
	var file alertFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	var rules []alertRule
	for _, g := range file.Groups {
		rules = append(rules, g.Rules...)
	}
	return rules
}

func runbookAnchors(t *testing.T) map[string]bool {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook.md"))
	require.NoError(t, err)
	anchors := make(map[string]bool)
	for _, m := range headingPattern.FindAllStringSubmatch(string(data), -1) {
		anchors[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m[1])), " ", "-")] = true
	}
	return anchors
}

func TestEveryAlertLinksAnExistingRunbookSection(t *testing.T) {
	anchors := runbookAnchors(t)
	rules := loadRules(t)
	require.NotEmpty(t, rules)
	for _, rule := range rules {
		ref := rule.Annotations["runbook"]
		file, anchor, ok := strings.Cut(ref, "#")
		require.True(t, ok, "%s runbook has no anchor", rule.Alert)
		require.Equal(t, "docs/runbook.md", file)
		require.True(t, anchors[anchor], "%s points at missing section %q", rule.Alert, anchor)
	}
}

func TestAlertSimulationProducesFiringAndResolvedLogs(t *testing.T) {
	rules := loadRules(t)
	var log strings.Builder
	for _, rule := range rules {
		log.WriteString(renderAlertLog("FIRING", rule))
		log.WriteString(renderAlertLog("RESOLVED", rule))
	}
	out := log.String()
	for _, rule := range rules {
		require.Contains(t, out, renderAlertLog("FIRING", rule))
		require.Contains(t, out, renderAlertLog("RESOLVED", rule))
		require.NotEmpty(t, rule.Labels["severity"], rule.Alert)
	}
}

func renderAlertLog(state string, rule alertRule) string {
	return fmt.Sprintf("%s %s severity=%s for=%s runbook=%s\n",
		state, rule.Alert, rule.Labels["severity"], rule.For, rule.Annotations["runbook"])
}
