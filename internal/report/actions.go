package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/gptscan/gptscan/internal/record"
)

// ActionUsage describes one custom-action API integration found across the
// workspace: the external domain it calls and which GPTs declare it.
type ActionUsage struct {
	Domain           string   `json:"domain"`
	AuthType         string   `json:"auth_type,omitempty"`
	PrivacyPolicyURL string   `json:"privacy_policy_url,omitempty"`
	GPTIDs           []string `json:"gpt_ids"`
}

// CollectActions enumerates custom-action tools across the records, grouped
// by domain and sorted for deterministic output.
func CollectActions(gpts []record.GPT) []ActionUsage {
	sorted := make([]record.GPT, len(gpts))
	copy(sorted, gpts)
	record.SortByID(sorted)

	byDomain := make(map[string]*ActionUsage)
	for i := range sorted {
		g := &sorted[i]
		for _, tool := range g.Tools() {
			if !tool.IsCustomAction() {
				continue
			}
			domain := tool.ActionDomain
			if domain == "" {
				domain = "(unspecified)"
			}
			usage, ok := byDomain[domain]
			if !ok {
				usage = &ActionUsage{
					Domain:           domain,
					AuthType:         tool.AuthType,
					PrivacyPolicyURL: tool.ActionPrivacyPolicyURL,
				}
				byDomain[domain] = usage
			}
			usage.GPTIDs = append(usage.GPTIDs, g.ID)
		}
	}

	usages := make([]ActionUsage, 0, len(byDomain))
	for _, u := range byDomain {
		usages = append(usages, *u)
	}
	sort.Slice(usages, func(i, j int) bool { return usages[i].Domain < usages[j].Domain })
	return usages
}

// WriteActions renders the action usage table.
func WriteActions(w io.Writer, usages []ActionUsage) error {
	if len(usages) == 0 {
		_, err := fmt.Fprintln(w, "No custom actions found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tAUTH\tGPTS")
	for _, u := range usages {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", u.Domain, u.AuthType, len(u.GPTIDs))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nTotal action domains: %d\n", len(usages))
	return err
}
