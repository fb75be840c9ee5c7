package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Inspect and maintain the knowledge store",
}

var knowledgeLimit int

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned records, most recent first",
	RunE:  knowledgeList,
}

var knowledgeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge store statistics",
	RunE:  knowledgeStats,
}

var knowledgeReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild every embedding vector from stored text",
	Long: `Re-embeds every stored record and rewrites the embedding index.
Run after changing the embedding provider or its dimensions; until then
semantic dedup silently degrades because old vectors are unusable.`,
	RunE: knowledgeReindex,
}

func init() {
	knowledgeListCmd.Flags().IntVar(&knowledgeLimit, "limit", 20, "maximum records to show (0 for all)")

	knowledgeCmd.AddCommand(knowledgeListCmd)
	knowledgeCmd.AddCommand(knowledgeStatsCmd)
	knowledgeCmd.AddCommand(knowledgeReindexCmd)
}

func knowledgeList(cmd *cobra.Command, args []string) error {
	p, err := openPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	records := p.store.List(knowledgeLimit)
	if len(records) == 0 {
		fmt.Println("knowledge store is empty")
		return nil
	}

	for _, r := range records {
		marker := " "
		if r.SafetyReview != nil && r.SafetyReview.Waived {
			marker = "!"
		}
		fmt.Printf("%s %s  conf=%.2f  %s  (%s)\n", marker, r.ID[:8], r.Confidence, r.OriginFile, r.Source)
		fmt.Printf("    Q: %s\n", r.Question)
		fmt.Printf("    A: %s\n", truncate(r.Answer, 120))
	}
	return nil
}

func knowledgeStats(cmd *cobra.Command, args []string) error {
	p, err := openPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	data, err := json.MarshalIndent(p.store.Stats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func knowledgeReindex(cmd *cobra.Command, args []string) error {
	p, err := openPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	if err := p.store.Reindex(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("reindexed %d records\n", p.store.Len())
	return nil
}
