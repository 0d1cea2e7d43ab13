package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/smartdevs17/etherfund-dashboard/internal/contract"
	"github.com/smartdevs17/etherfund-dashboard/internal/forms"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

func addCampaignCommands(root *cobra.Command) {
	showCmd := &cobra.Command{
		Use:   "show <campaign-id>",
		Short: "Load and print a campaign dashboard",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	showCmd.Flags().Bool("json", false, "print the dashboard as JSON")

	postUpdateCmd := &cobra.Command{
		Use:   "post-update <campaign-id> <text>",
		Short: "Post a campaign update",
		Args:  cobra.ExactArgs(2),
		RunE:  runPostUpdate,
	}
	postUpdateCmd.Flags().BoolP("yes", "y", false, "sign without asking")

	createCmd := &cobra.Command{
		Use:   "create-campaign",
		Short: "Create a new campaign",
		RunE:  runCreateCampaign,
	}
	createCmd.Flags().String("min-contribution", "", "minimum contribution in ETH")
	createCmd.Flags().String("name", "", "campaign name")
	createCmd.Flags().String("description", "", "campaign description")
	createCmd.Flags().String("image-url", "", "campaign image URL")
	createCmd.Flags().String("target", "", "funding target in ETH")
	createCmd.Flags().BoolP("yes", "y", false, "sign without asking")

	root.AddCommand(showCmd, postUpdateCmd, createCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	campaignID, err := utils.ParseCampaignID(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := NewApplication(cfg, nil)
	if err != nil {
		return err
	}
	defer app.Stop()

	view, err := app.loaders.Reload(cmd.Context(), campaignID)
	if err != nil {
		return fmt.Errorf("dashboard unavailable: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	printView(cmd.OutOrStdout(), view, cfg.Chain.ExplorerTxURL)
	return nil
}

func runPostUpdate(cmd *cobra.Command, args []string) error {
	campaignID, err := utils.ParseCampaignID(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := NewApplication(cfg, approval(cmd))
	if err != nil {
		return err
	}
	defer app.Stop()

	result, err := app.forms.PostUpdate(cmd.Context(), campaignID, args[1])
	printNotice(cmd.OutOrStdout(), result)
	return err
}

func runCreateCampaign(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	form := forms.CampaignForm{}
	form.MinimumContribution, _ = flags.GetString("min-contribution")
	form.Name, _ = flags.GetString("name")
	form.Description, _ = flags.GetString("description")
	form.ImageURL, _ = flags.GetString("image-url")
	form.Target, _ = flags.GetString("target")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := NewApplication(cfg, approval(cmd))
	if err != nil {
		return err
	}
	defer app.Stop()

	result, err := app.forms.CreateCampaign(cmd.Context(), form)
	printNotice(cmd.OutOrStdout(), result)
	if err == nil && result.Receipt != nil && result.Receipt.CampaignID != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Campaign id: %s\n", result.Receipt.CampaignID)
	}
	return err
}

// approval asks on the terminal before each signature unless --yes was given
func approval(cmd *cobra.Command) contract.ApprovalFunc {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return nil
	}
	return promptApproval(os.Stdin, cmd.ErrOrStderr())
}

func promptApproval(in io.Reader, out io.Writer) contract.ApprovalFunc {
	scanner := bufio.NewScanner(in)
	return func(ctx context.Context, tx *types.Transaction) (bool, error) {
		fmt.Fprintf(out, "Sign transaction to %s (nonce %d, gas %d)? [y/N] ", tx.To().Hex(), tx.Nonce(), tx.Gas())
		if !scanner.Scan() {
			return false, scanner.Err()
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}
}

func printNotice(w io.Writer, result *forms.Result) {
	if result == nil {
		return
	}
	fmt.Fprintf(w, "[%s] %s\n", result.Notice.Status, result.Notice.Title)
	if result.Notice.Detail != "" {
		fmt.Fprintf(w, "  %s\n", result.Notice.Detail)
	}
}

func printView(w io.Writer, view *models.DashboardView, explorerTxURL string) {
	snap := view.Snapshot
	fmt.Fprintf(w, "Campaign %s\n", view.CampaignID)
	fmt.Fprintf(w, "Owner:        %s\n", utils.ShortAddress(snap.Owner.Hex()))
	fmt.Fprintf(w, "Raised:       %s / %s ETH (%.2f%%)\n", utils.FormatEther(snap.Raised), utils.FormatEther(snap.Goal), view.ProgressPercent())
	fmt.Fprintf(w, "Contributors: %d\n", snap.ContributorCount)

	fmt.Fprintln(w, "\nAudit log:")
	for _, entry := range view.AuditLog {
		fmt.Fprintf(w, "  %-12s %-13s %s ETH  %s  %s%s\n",
			entry.Kind,
			utils.ShortAddress(entry.Counterparty),
			utils.FormatEther(entry.Amount),
			entry.OccurredAt.UTC().Format("2006-01-02 15:04"),
			explorerTxURL,
			entry.TxHash,
		)
	}

	fmt.Fprintln(w, "\nUpdates:")
	for _, update := range view.Updates {
		fmt.Fprintf(w, "  %s  %s\n", update.Body.AuthoredAt().Format("2006-01-02 15:04"), update.Body.Content)
	}
	if len(view.DroppedUpdates) > 0 {
		fmt.Fprintf(w, "  (%d updates could not be loaded)\n", len(view.DroppedUpdates))
	}
}
