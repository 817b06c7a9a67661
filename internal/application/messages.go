package application

import (
	"fmt"
	"strings"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

const (
	msgNeedEditorFirst      = "You need to assign an editor first."
	msgReviewAlreadyStarted = "Can't start a review when the review has already started"
	msgNoReviewers          = "Can't start a review without reviewers"
	msgNoEditor             = "Can't start a review without an editor"
	msgNotReviewed          = "I can't accept a paper that hasn't been reviewed!"
	msgNoArchive            = "No archive DOI set. Exiting..."
	msgDryRun               = "```\nAttempting dry run of processing paper acceptance...\n```"
	msgLiveRun              = "```\nDoing it live! Attempting automated processing of paper acceptance...\n```"
	msgPaperRejected        = "Paper rejected."
	msgPaperWithdrawn       = "Paper withdrawn."
	msgRejectFailed         = "There was a problem rejecting the paper."
	msgWithdrawFailed       = "There was a problem withdrawing the paper."
	msgQueryScope           = "Submission flagged for editorial review."
	msgPreReviewReminder    = "Sorry, I can't set reminders on PRE-REVIEW issues."
	msgNoVersion            = "Please set a version before archiving the software."
	msgNoLicense            = "Failed to discover a valid open source license."
	msgNoStatementOfNeed    = "Failed to discover a `Statement of need` section in paper"
	msgNoBibliography       = "Can't find a bibtex file for this submission"
)

func notUnderstood(bot string) string {
	return fmt.Sprintf("I'm sorry human, I don't understand that. You can see what commands I support by typing:\n\n`@%s commands`\n", bot)
}

func alreadyTerminal(stage model.Stage) string {
	return fmt.Sprintf("This submission has already been %s, so I can't do that.", stage)
}

func missingField(field model.Field) string {
	return fmt.Sprintf("I can't find a `**%s:**` line in this issue, so I can't update it.", field)
}

func customBranchSuffix(branch string) string {
	if branch == "" {
		return ""
	}
	return " from custom branch " + branch
}

func editorCommands(bot string) string {
	cmds := []string{
		"# List all of my commands", "commands",
		"# Add to this issue's reviewers list", "add @username as reviewer",
		"# Replace this issue's reviewers list", "assign @username as reviewer",
		"# Remove from this issue's reviewers list", "remove @username as reviewer",
		"# Re-invite a reviewer who missed the repository invitation", "re-invite @username as reviewer",
		"# Assign a user as the editor of this submission", "assign @username as editor",
		"# Invite an editor to edit this submission (editor-in-chief only)", "invite @username as editor",
		"# List the available editors", "list editors",
		"# List the available reviewers", "list reviewers",
		"# Change editorial status to editorial review", "query scope",
		"# Set the software archive DOI", "set 10.0000/zenodo.00000 as archive",
		"# Set the software version", "set v1.2.3 as version",
		"# Archive the software release", "archive software",
		"# Open the review issue", "start review",
		"# Remind an author or reviewer", "remind @username in 2 weeks",
		"# Check the references of the paper for missing DOIs", "check references",
		"# Detect the languages and license of the repository", "check repository",
		"# Compile the paper", "generate pdf",
		"# Compile the paper from a custom git branch", "generate pdf from branch custom-branch-name",
		"# Build the Jupyter book", "build jupyter-book",
		"# Recommend an accept (dry run of the final deposit)", "accept",
		"# Accept and publish the paper (editor-in-chief only)", "accept deposit=true",
		"# Reject the paper (editor-in-chief only)", "reject",
		"# Withdraw the paper (editor-in-chief only)", "withdraw",
	}
	return renderCommandList(bot, "Here are some things you can ask me to do:", cmds)
}

func publicCommands(bot string) string {
	cmds := []string{
		"# List all of my commands", "commands",
		"# Check the references of the paper for missing DOIs", "check references",
		"# Detect the languages and license of the repository", "check repository",
		"# Compile the paper", "generate pdf",
		"# Compile the paper from a custom git branch", "generate pdf from branch custom-branch-name",
		"# Build the Jupyter book", "build jupyter-book",
		"# List the available editors", "list editors",
		"# List the available reviewers", "list reviewers",
	}
	return renderCommandList(bot, "Here are some things you can ask me to do:", cmds)
}

func renderCommandList(bot, intro string, lines []string) string {
	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\n```\n")
	for i := 0; i < len(lines); i += 2 {
		fmt.Fprintf(&b, "%s\n@%s %s\n\n", lines[i], bot, lines[i+1])
	}
	b.WriteString("```\n")
	return b.String()
}

func welcomeMessage(venue model.Venue, bot string, editor string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello human, I'm @%s, a robot that can help you with some common editorial tasks.", bot)
	fmt.Fprintf(&b, " For a list of things I can do to help you, just type:\n\n```\n@%s commands\n```\n\n", bot)
	if editor != "" {
		fmt.Fprintf(&b, "%s, this submission is assigned to you. ", model.Mention(editor))
	}
	b.WriteString("I'm now checking the repository, the references and the paper proof. Results will be posted here shortly.")
	if venue.ReviewersURL != "" {
		fmt.Fprintf(&b, "\n\nThe list of potential reviewers is available [here](%s).", venue.ReviewersURL)
	}
	return b.String()
}

func reviewerWelcomeMessage(venue model.Venue, repo string, reviewers []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s, welcome to the review of this %s submission.", strings.Join(reviewers, ", "), venue.Name)
	b.WriteString(" Please use the checklist in the issue body to record your progress.")
	fmt.Fprintf(&b, " If you have not been granted write access yet, accept the invitation at https://github.com/%s/invitations.", repo)
	b.WriteString("\n\nI'll post a gentle reminder in two weeks.")
	return b.String()
}

func goodbyeMessage(venue model.Venue, issue int) string {
	doi := model.PaperDOI(venue.DOIPrefix, venue.JournalAlias, issue)
	return fmt.Sprintf(":tada::tada::tada: Congratulations on your paper acceptance! :tada::tada::tada:\n\n"+
		"Your paper is published at %s/papers/%s with the DOI [%s](https://doi.org/%s).\n\n"+
		"Thanks to the reviewers and the editor for volunteering their time.", venue.SiteHost, doi, doi, doi)
}

func startReviewMessage(repo string, reviewIssue int) string {
	return fmt.Sprintf("OK, I've started the review over in https://github.com/%s/issues/%d.\n\nFeel free to close this issue now!", repo, reviewIssue)
}

func pendingInviteMessage(repo, handle string) string {
	return fmt.Sprintf("The reviewer already has a pending invite.\n\n@%s please accept the invite by clicking this link: https://github.com/%s/invitations", handle, repo)
}

func reinvitedMessage(repo, handle string) string {
	return fmt.Sprintf("OK, the reviewer has been re-invited.\n\n@%s please accept the invite by clicking this link: https://github.com/%s/invitations", handle, repo)
}

func archiveLink(doi string) string {
	return fmt.Sprintf(`<a href="https://doi.org/%s" target="_blank">%s</a>`, doi, doi)
}
