package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var stagingCmd = &cobra.Command{
	Use:   "staging",
	Short: "Review quarantined knowledge candidates",
}

var stagingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending staging items",
	RunE:  stagingList,
}

var (
	approveEdit   string
	approveEditor string
)

var stagingApproveCmd = &cobra.Command{
	Use:   "approve [item-id]",
	Short: "Approve a staged item into the knowledge store",
	Long: `Merges a quarantined item into the knowledge store and re-runs the
threat scan on the merged text. If the item is still suspicious and no
--edit override was supplied, the merge is undone and the item is
rejected; with --edit, the approval is recorded as an explicit safety
waiver attributed to --editor.`,
	Args: cobra.ExactArgs(1),
	RunE: stagingApprove,
}

var stagingRejectCmd = &cobra.Command{
	Use:   "reject [item-id] [reason]",
	Short: "Reject a staged item",
	Args:  cobra.MinimumNArgs(1),
	RunE:  stagingReject,
}

func init() {
	stagingApproveCmd.Flags().StringVar(&approveEdit, "edit", "", "replacement answer text (marks a human editor as involved)")
	stagingApproveCmd.Flags().StringVar(&approveEditor, "editor", "", "name recorded on a safety waiver")

	stagingCmd.AddCommand(stagingListCmd)
	stagingCmd.AddCommand(stagingApproveCmd)
	stagingCmd.AddCommand(stagingRejectCmd)
}

func stagingList(cmd *cobra.Command, args []string) error {
	p, err := openPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	pending := p.queue.ListPending()
	if len(pending) == 0 {
		fmt.Println("staging queue is empty")
		return nil
	}

	fmt.Printf("%d pending items:\n\n", len(pending))
	for _, item := range pending {
		fmt.Printf("  %s  [%s]  %s\n", item.ID, item.Severity, item.Path)
		fmt.Printf("      Q: %s\n", item.Question)
		fmt.Printf("      A: %s\n", truncate(item.Answer, 120))
		if len(item.Threat.Reasons) > 0 {
			fmt.Printf("      threat: %.1f (%s)\n", item.Threat.Score, strings.Join(item.Threat.Reasons, ", "))
		}
		fmt.Printf("      %s\n\n", item.Message)
	}
	return nil
}

func stagingApprove(cmd *cobra.Command, args []string) error {
	p, err := openPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	res, err := p.queue.Approve(cmd.Context(), p.store, p.scorer, args[0], approveEdit, approveEditor)
	if err != nil {
		return err
	}

	switch {
	case res.Waived:
		fmt.Printf("approved with safety waiver (score %.1f: %s)\n",
			res.Report.Score, strings.Join(res.Report.Reasons, ", "))
	case res.Merged:
		fmt.Printf("approved, merged as %s\n", res.RecordID)
	default:
		fmt.Printf("rejected on safety re-scan (score %.1f: %s)\n",
			res.Report.Score, strings.Join(res.Report.Reasons, ", "))
	}
	return nil
}

func stagingReject(cmd *cobra.Command, args []string) error {
	p, err := openPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	reason := "curator"
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}
	if err := p.queue.Reject(args[0], reason); err != nil {
		return err
	}
	fmt.Printf("rejected %s\n", args[0])
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
