package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	statsDomain string
	statsJSON   bool

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print learning statistics for the configured store",
		RunE:  runStats,
	}
)

func init() {
	statsCmd.Flags().StringVar(&statsDomain, "domain", "", "restrict statistics to one domain")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the raw statistics record")
}

func runStats(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr)
	ctx := cmd.Context()

	svc, closeStore, err := openService(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	st, err := svc.GetStatistics(ctx, statsDomain)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if statsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	scope := st.Domain
	if scope == "" {
		scope = "all domains"
	}
	fmt.Fprintf(w, "Scope:\t%s\n", scope)
	fmt.Fprintf(w, "Concepts:\t%d\n", st.TotalNodes)
	fmt.Fprintf(w, "Edges:\t%d\n", st.TotalEdges)
	fmt.Fprintf(w, "Average mastery:\t%.0f%%\n", st.AverageMastery*100)
	fmt.Fprintf(w, "Due for review:\t%d\n", st.DueForReview)
	fmt.Fprintf(w, "Struggling:\t%d\n", st.Struggling)
	fmt.Fprintf(w, "Stalled:\t%d\n", st.Stalled)
	fmt.Fprintf(w, "With misconceptions:\t%d\n", st.WithMisconceptions)
	fmt.Fprintf(w, "Knowledge gaps:\t%d\n", st.KnowledgeGaps)

	if statsDomain == "" {
		domains, err := svc.Domains(ctx)
		if err != nil {
			return err
		}
		if len(domains) > 0 {
			fmt.Fprintln(w, "Average mastery by domain:")
		}
		for _, d := range domains {
			fmt.Fprintf(w, "  %s:\t%.0f%%\n", d, st.AverageByDomain[d]*100)
		}
	}

	buckets := make([]string, 0, len(st.Distribution))
	for b := range st.Distribution {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	for _, b := range buckets {
		fmt.Fprintf(w, "Mastery %s:\t%d\n", b, st.Distribution[b])
	}
	for _, s := range st.TopStruggling {
		fmt.Fprintf(w, "Struggling with %s:\t%.0f%% (difficulty %.2f)\n", s.Concept, s.Mastery*100, s.Difficulty)
	}
	return w.Flush()
}
