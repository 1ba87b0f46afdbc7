package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loupe-ai/loupe/internal/server"
	"github.com/loupe-ai/loupe/internal/session"
	"github.com/loupe-ai/loupe/pkg/types"
)

var (
	researchWait   bool
	researchSystem string
	researchOwner  string
	researchOrg    string
	researchAttach []string
)

var researchCmd = &cobra.Command{
	Use:   "research <goal>",
	Short: "Start a research session",
	Long: `Start a research session for the given goal.

By default the session runs in the background and its ID is printed.
With --wait the command blocks until the research settles and prints
the final answer.`,
	Args: exactArgs(1),
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().BoolVarP(&researchWait, "wait", "w", false, "Block until the final answer")
	researchCmd.Flags().StringVar(&researchSystem, "system-message", "", "Custom system prompt prelude")
	researchCmd.Flags().StringVar(&researchOwner, "owner", "", "Owner user ID, for credit accounting")
	researchCmd.Flags().StringVar(&researchOrg, "org", "", "Organization ID, for credit accounting")
	researchCmd.Flags().StringArrayVar(&researchAttach, "attach", nil, "Attachment URL (repeatable)")
}

func runResearch(cmd *cobra.Command, args []string) error {
	req := session.StartResearchRequest{Goal: args[0]}
	if researchSystem != "" {
		req.SystemMessage = &researchSystem
	}
	if researchOwner != "" {
		req.OwnerUserID = &researchOwner
	}
	if researchOrg != "" {
		req.OrganizationID = &researchOrg
	}
	for _, url := range researchAttach {
		req.Attachments = append(req.Attachments, types.Attachment{
			FileName: filepath.Base(url),
			URL:      url,
		})
	}

	client := newAPIClient()

	if researchWait {
		var resp server.ResearchResponse
		if err := client.postJSON(cmd.Context(), "/research?wait=true", req, &resp); err != nil {
			return err
		}

		if resp.Answer == nil {
			fmt.Printf("Session %s ended with status %s and no answer\n", resp.Session.ID, resp.Session.Status)
			return nil
		}
		fmt.Printf("# %s\n\n%s\n", resp.Answer.Title, resp.Answer.Content)
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	var created types.Session
	if err := client.postJSON(ctx, "/research", req, &created); err != nil {
		return err
	}

	fmt.Println(created.ID)
	return nil
}
