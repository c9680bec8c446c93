package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"etraxis/internal/app"
	"etraxis/internal/domain"
	"etraxis/internal/engine"
)

func issueCmd() *cobra.Command {
	iss := &cobra.Command{Use: "issue", Short: "Work with issues"}
	iss.AddCommand(issueCreateCmd())
	iss.AddCommand(issueShowCmd())
	iss.AddCommand(issueStateCmd())
	iss.AddCommand(issueActionsCmd())
	iss.AddCommand(issueHistoryCmd())
	iss.AddCommand(issueReassignCmd())
	iss.AddCommand(issueSuspendCmd())
	iss.AddCommand(issueResumeCmd())
	iss.AddCommand(issueDependCmd())
	iss.AddCommand(issueSetFieldCmd())
	return iss
}

func issueCreateCmd() *cobra.Command {
	var in engine.IssueInput
	var responsible int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open an issue in the template's initial state",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ResponsibleID = optionalID(responsible)
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				issue, err := s.CreateIssue(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(issue)
				}
				fmt.Printf("Created issue %d: %s\n", issue.ID, issue.Subject)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&in.TemplateID, "template", 0, "template id")
	cmd.Flags().StringVar(&in.Subject, "subject", "", "issue subject")
	cmd.Flags().Int64Var(&responsible, "responsible", 0, "responsible user id when the initial state assigns")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func issueShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <issue-id>",
		Short: "Show an issue with its status flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				ic, err := s.ViewIssue(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ic)
				}
				now := s.CurrentTime()
				responsible := "-"
				if ic.Issue.ResponsibleID != nil {
					responsible = fmt.Sprint(*ic.Issue.ResponsibleID)
				}
				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.AppendRows([]table.Row{
					{"ID", ic.Issue.ID},
					{"Subject", ic.Issue.Subject},
					{"Template", ic.Template.Name},
					{"State", ic.State.Name},
					{"Author", ic.Issue.AuthorID},
					{"Responsible", responsible},
					{"Age (days)", ic.Age(now)},
					{"Closed", ic.IsClosed()},
					{"Suspended", ic.IsSuspended(now)},
					{"Frozen", ic.IsFrozen(now)},
					{"Critical", ic.IsCritical(now)},
				})
				t.Render()
				return nil
			})
		},
	}
}

func issueStateCmd() *cobra.Command {
	var responsible int64
	cmd := &cobra.Command{
		Use:   "state <issue-id> <state-id>",
		Short: "Move the issue to another state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			stateID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				issue, err := s.ChangeState(ctx, id, stateID, optionalID(responsible))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(issue)
				}
				fmt.Printf("Issue %d moved to state %d\n", issue.ID, issue.StateID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&responsible, "responsible", 0, "responsible user id when the state assigns")
	return cmd
}

func issueActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions <issue-id>",
		Short: "List the actions and target states available to the acting user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				ic, err := s.ViewIssue(ctx, id)
				if err != nil {
					return err
				}
				actions, err := s.IssueActions(ctx, ic, s.Actor)
				if err != nil {
					return err
				}
				states, err := s.ReachableStates(ctx, ic)
				if err != nil {
					return err
				}
				names := make(map[string]bool, len(actions))
				for a, ok := range actions {
					names[a.String()] = ok
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"actions": names, "states": states})
				}
				keys := make([]string, 0, len(names))
				for k := range names {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"ACTION", "GRANTED"})
				for _, k := range keys {
					t.AppendRow(table.Row{k, names[k]})
				}
				for _, st := range states {
					t.AppendRow(table.Row{"-> " + st.Name, fmt.Sprintf("state %d", st.ID)})
				}
				t.Render()
				return nil
			})
		},
	}
}

func issueHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <issue-id>",
		Short: "List the issue's state changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				records, err := s.History(ctx, id)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(records))
				for _, r := range records {
					rows = append(rows, table.Row{r.CreatedAt.Format(time.RFC3339), r.StateID, r.UserID})
				}
				return printJSONOrTable(records, table.Row{"AT", "STATE", "USER"}, rows)
			})
		},
	}
}

func issueReassignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reassign <issue-id> <user-id>",
		Short: "Hand the issue to another responsible user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			userID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				_, err := s.Reassign(ctx, id, userID)
				return err
			})
		},
	}
}

func issueSuspendCmd() *cobra.Command {
	var until string
	cmd := &cobra.Command{
		Use:   "suspend <issue-id>",
		Short: "Suspend the issue until a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			at, err := time.Parse(time.DateOnly, until)
			if err != nil {
				return fmt.Errorf("invalid --until %q: want YYYY-MM-DD", until)
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				_, err := s.Suspend(ctx, id, at)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "resume date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("until")
	return cmd
}

func issueResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <issue-id>",
		Short: "Resume a suspended issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				_, err := s.Resume(ctx, id)
				return err
			})
		},
	}
}

func issueDependCmd() *cobra.Command {
	var remove, related bool
	cmd := &cobra.Command{
		Use:   "depend <issue-id> <other-id>",
		Short: "Link the issue to a dependency (or a related issue with --related)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			otherID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				switch {
				case related && remove:
					return s.RemoveRelated(ctx, id, otherID)
				case related:
					return s.AddRelated(ctx, id, otherID)
				case remove:
					return s.RemoveDependency(ctx, id, otherID)
				}
				return s.AddDependency(ctx, id, otherID)
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the link instead")
	cmd.Flags().BoolVar(&related, "related", false, "link as related issue")
	return cmd
}

func issueSetFieldCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-field <issue-id> <field-id> <value>",
		Short: "Store the issue's value of a field",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			fieldID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				return s.SetFieldValue(ctx, id, fieldID, args[2])
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys of the acting user"}
	key.AddCommand(apiKeyCreateCmd())
	key.AddCommand(apiKeyListCmd())
	key.AddCommand(apiKeyRevokeCmd())
	return key
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				k, secret, err := s.CreateAPIKey(ctx, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": k.ID, "name": k.Name, "created_at": k.CreatedAt, "key": secret})
				}
				fmt.Printf("Created API key %s\n%s\n", k.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				keys, err := s.APIKeys(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(keys))
				for _, k := range keys {
					rows = append(rows, table.Row{k.ID, k.Name, k.CreatedAt})
				}
				return printJSONOrTable(redactKeys(keys), table.Row{"ID", "NAME", "CREATED"}, rows)
			})
		},
	}
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				return s.RevokeAPIKey(ctx, args[0])
			})
		},
	}
}

func redactKeys(keys []domain.APIKey) []domain.APIKey {
	out := make([]domain.APIKey, len(keys))
	for i, k := range keys {
		k.KeyHash = ""
		out[i] = k
	}
	return out
}
