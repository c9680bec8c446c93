package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"etraxis/internal/app"
	"etraxis/internal/domain"
	"etraxis/internal/engine"
)

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage user accounts"}
	usr.AddCommand(userBootstrapCmd())
	usr.AddCommand(userCreateCmd())
	usr.AddCommand(userListCmd())
	return usr
}

func userBootstrapCmd() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first administrator of an empty workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				u, err := ws.Engine.Bootstrap(ctx, email, name)
				if err != nil {
					return err
				}
				fmt.Printf("Created administrator %s (id %d)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	cmd.Flags().StringVar(&name, "name", "", "administrator full name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userCreateCmd() *cobra.Command {
	var u domain.User
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				res, err := s.CreateUser(ctx, u)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Created user %s (id %d)\n", res.Email, res.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&u.Email, "email", "", "email")
	cmd.Flags().StringVar(&u.Fullname, "name", "", "full name")
	cmd.Flags().BoolVar(&u.Admin, "admin", false, "grant administrator rights")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				users, err := ws.Engine.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(users))
				for _, u := range users {
					rows = append(rows, table.Row{u.ID, u.Email, u.Fullname, u.Admin, u.Disabled})
				}
				return printJSONOrTable(users, table.Row{"ID", "EMAIL", "NAME", "ADMIN", "DISABLED"}, rows)
			})
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectSuspendCmd(true))
	prj.AddCommand(projectSuspendCmd(false))
	return prj
}

func projectCreateCmd() *cobra.Command {
	var desc string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				p, err := s.CreateProject(ctx, args[0], desc)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Created project %s (id %d)\n", p.Name, p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "project description")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				projects, err := ws.Engine.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(projects))
				for _, p := range projects {
					rows = append(rows, table.Row{p.ID, p.Name, p.Suspended, p.Description})
				}
				return printJSONOrTable(projects, table.Row{"ID", "NAME", "SUSPENDED", "DESCRIPTION"}, rows)
			})
		},
	}
}

func projectSuspendCmd(suspend bool) *cobra.Command {
	use, short := "resume <id>", "Resume a suspended project"
	if suspend {
		use, short = "suspend <id>", "Suspend a project"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				return s.SetProjectSuspended(ctx, id, suspend)
			})
		},
	}
}

func groupCmd() *cobra.Command {
	grp := &cobra.Command{Use: "group", Short: "Manage groups"}
	grp.AddCommand(groupCreateCmd())
	grp.AddCommand(groupListCmd())
	grp.AddCommand(groupAddMemberCmd())
	return grp
}

func groupCreateCmd() *cobra.Command {
	var projectID int64
	var desc string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group (global unless --project is given)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				g, err := s.CreateGroup(ctx, optionalID(projectID), args[0], desc)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(g)
				}
				fmt.Printf("Created group %s (id %d)\n", g.Name, g.ID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&projectID, "project", 0, "owning project id")
	cmd.Flags().StringVar(&desc, "description", "", "group description")
	return cmd
}

func groupListCmd() *cobra.Command {
	var projectID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List groups visible to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				groups, err := ws.Engine.Repo.ListGroups(ctx, projectID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(groups))
				for _, g := range groups {
					scope := "global"
					if !g.IsGlobal() {
						scope = fmt.Sprintf("project %d", *g.ProjectID)
					}
					rows = append(rows, table.Row{g.ID, g.Name, scope})
				}
				return printJSONOrTable(groups, table.Row{"ID", "NAME", "SCOPE"}, rows)
			})
		},
	}
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	return cmd
}

func groupAddMemberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-member <group-id> <user-id>",
		Short: "Add a user to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := parseID(args[0])
			if err != nil {
				return err
			}
			userID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				return s.AddMember(ctx, groupID, userID)
			})
		},
	}
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Manage templates"}
	tpl.AddCommand(templateCreateCmd())
	tpl.AddCommand(templateListCmd())
	tpl.AddCommand(templateLockCmd(true))
	tpl.AddCommand(templateLockCmd(false))
	tpl.AddCommand(templatePermissionsCmd())
	return tpl
}

func templateCreateCmd() *cobra.Command {
	var in engine.TemplateInput
	var criticalAge, frozenTime int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a locked template",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.CriticalAge = optionalInt(criticalAge)
			in.FrozenTime = optionalInt(frozenTime)
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				t, err := s.CreateTemplate(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Created template %s (id %d)\n", t.Name, t.ID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&in.ProjectID, "project", 0, "project id")
	cmd.Flags().StringVar(&in.Name, "name", "", "template name")
	cmd.Flags().StringVar(&in.Prefix, "prefix", "", "issue id prefix")
	cmd.Flags().StringVar(&in.Description, "description", "", "template description")
	cmd.Flags().IntVar(&criticalAge, "critical-age", 0, "days after which open issues are critical")
	cmd.Flags().IntVar(&frozenTime, "frozen-time", 0, "days after closing when issues freeze")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func templateListCmd() *cobra.Command {
	var projectID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				templates, err := ws.Engine.Repo.ListTemplates(ctx, projectID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(templates))
				for _, t := range templates {
					rows = append(rows, table.Row{t.ID, t.Name, t.Prefix, t.Locked})
				}
				return printJSONOrTable(templates, table.Row{"ID", "NAME", "PREFIX", "LOCKED"}, rows)
			})
		},
	}
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func templateLockCmd(lock bool) *cobra.Command {
	use, short := "unlock <id>", "Unlock a template so issues can be created"
	if lock {
		use, short = "lock <id>", "Lock a template for editing"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				if lock {
					return s.LockTemplate(ctx, id)
				}
				return s.UnlockTemplate(ctx, id)
			})
		},
	}
}

func templatePermissionsCmd() *cobra.Command {
	var roles []string
	var groups []int64
	cmd := &cobra.Command{
		Use:   "permissions <template-id> <permission>",
		Short: "Replace the roles or groups granted a template permission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			perm, err := domain.ParseTemplatePermission(args[1])
			if err != nil {
				return err
			}
			parsed, err := parseRoles(roles)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				if cmd.Flags().Changed("role") {
					if err := s.SetTemplateRolePermissions(ctx, id, perm, parsed); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("group") {
					return s.SetTemplateGroupPermissions(ctx, id, perm, groups)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "system roles (author, responsible, anyone)")
	cmd.Flags().Int64SliceVar(&groups, "group", nil, "group ids")
	return cmd
}

func stateCmd() *cobra.Command {
	st := &cobra.Command{Use: "state", Short: "Manage workflow states"}
	st.AddCommand(stateCreateCmd())
	st.AddCommand(stateListCmd())
	st.AddCommand(stateInitialCmd())
	st.AddCommand(stateTransitionsCmd())
	st.AddCommand(stateResponsibleCmd())
	st.AddCommand(stateDeleteCmd())
	return st
}

func stateCreateCmd() *cobra.Command {
	var in engine.StateInput
	var typ, responsible string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a state in a locked template",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if typ != "" {
				if in.Type, err = domain.ParseStateType(typ); err != nil {
					return err
				}
			}
			if responsible != "" {
				if in.Responsible, err = domain.ParseStateResponsible(responsible); err != nil {
					return err
				}
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				st, err := s.CreateState(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				fmt.Printf("Created %s state %s (id %d)\n", st.Type, st.Name, st.ID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&in.TemplateID, "template", 0, "template id")
	cmd.Flags().StringVar(&in.Name, "name", "", "state name")
	cmd.Flags().StringVar(&typ, "type", "", "initial, intermediate or final")
	cmd.Flags().StringVar(&responsible, "responsible", "", "keep, assign or remove")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func stateListCmd() *cobra.Command {
	var templateID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List states of a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				states, err := ws.Engine.Repo.ListStates(ctx, nil, templateID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(states))
				for _, st := range states {
					rows = append(rows, table.Row{st.ID, st.Name, st.Type, st.Responsible})
				}
				return printJSONOrTable(states, table.Row{"ID", "NAME", "TYPE", "RESPONSIBLE"}, rows)
			})
		},
	}
	cmd.Flags().Int64Var(&templateID, "template", 0, "template id")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func stateInitialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initial <state-id>",
		Short: "Make the state the initial state of its template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				return s.SetInitialState(ctx, id)
			})
		},
	}
}

func stateTransitionsCmd() *cobra.Command {
	var roles []string
	var groups []int64
	cmd := &cobra.Command{
		Use:   "transitions <from-id> <to-id>",
		Short: "Show or replace who may move issues along an edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromID, err := parseID(args[0])
			if err != nil {
				return err
			}
			toID, err := parseID(args[1])
			if err != nil {
				return err
			}
			parsed, err := parseRoles(roles)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				if cmd.Flags().Changed("role") {
					if err := s.SetRoleTransitions(ctx, fromID, toID, parsed); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("group") {
					if err := s.SetGroupTransitions(ctx, fromID, toID, groups); err != nil {
						return err
					}
				}
				gotRoles, err := s.RoleTransitions(ctx, fromID, toID)
				if err != nil {
					return err
				}
				gotGroups, err := s.GroupTransitions(ctx, fromID, toID)
				if err != nil {
					return err
				}
				return printJSONOrTable(
					map[string]any{"from_state_id": fromID, "to_state_id": toID, "roles": gotRoles, "groups": gotGroups},
					table.Row{"FROM", "TO", "ROLES", "GROUPS"},
					[]table.Row{{fromID, toID, fmt.Sprint(gotRoles), fmt.Sprint(gotGroups)}},
				)
			})
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "system roles allowed on the edge")
	cmd.Flags().Int64SliceVar(&groups, "group", nil, "group ids allowed on the edge")
	return cmd
}

func stateResponsibleCmd() *cobra.Command {
	var groups []int64
	cmd := &cobra.Command{
		Use:   "responsible <state-id>",
		Short: "Show or replace the groups whose members may be assigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				if cmd.Flags().Changed("group") {
					if err := s.SetResponsibleGroups(ctx, id, groups); err != nil {
						return err
					}
				}
				ids, err := s.ResponsibleGroups(ctx, id)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(ids))
				for _, g := range ids {
					rows = append(rows, table.Row{g})
				}
				return printJSONOrTable(ids, table.Row{"GROUP"}, rows)
			})
		},
	}
	cmd.Flags().Int64SliceVar(&groups, "group", nil, "group ids")
	return cmd
}

func stateDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <state-id>",
		Short: "Delete a state no issue has used",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				return s.DeleteState(ctx, id)
			})
		},
	}
}

func fieldCmd() *cobra.Command {
	fld := &cobra.Command{Use: "field", Short: "Manage state fields"}
	fld.AddCommand(fieldCreateCmd())
	fld.AddCommand(fieldListCmd())
	fld.AddCommand(fieldPermissionCmd())
	fld.AddCommand(fieldRemoveCmd(false))
	fld.AddCommand(fieldRemoveCmd(true))
	return fld
}

func fieldCreateCmd() *cobra.Command {
	var in engine.FieldInput
	var typ string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a field in a state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.Type, err = domain.ParseFieldType(typ); err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				f, err := s.CreateField(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(f)
				}
				fmt.Printf("Created %s field %s (id %d)\n", f.Type, f.Name, f.ID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&in.StateID, "state", 0, "state id")
	cmd.Flags().StringVar(&in.Name, "name", "", "field name")
	cmd.Flags().StringVar(&typ, "type", "string", "field type")
	cmd.Flags().StringVar(&in.Description, "description", "", "field description")
	cmd.Flags().BoolVar(&in.Required, "required", false, "value is mandatory")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func fieldListCmd() *cobra.Command {
	var stateID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fields of a state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				fields, err := ws.Engine.Repo.ListFields(ctx, nil, stateID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(fields))
				for _, f := range fields {
					rows = append(rows, table.Row{f.ID, f.Position, f.Name, f.Type, f.Required, f.IsRemoved()})
				}
				return printJSONOrTable(fields, table.Row{"ID", "POS", "NAME", "TYPE", "REQUIRED", "REMOVED"}, rows)
			})
		},
	}
	cmd.Flags().Int64Var(&stateID, "state", 0, "state id")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func fieldPermissionCmd() *cobra.Command {
	var role string
	var groupID, issueID int64
	var level string
	cmd := &cobra.Command{
		Use:   "permission <field-id>",
		Short: "Show the acting user's access, or set a role or group access level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			perm, err := domain.ParseFieldPermission(level)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				switch {
				case role != "":
					r, err := domain.ParseSystemRole(role)
					if err != nil {
						return err
					}
					return s.SetFieldRolePermission(ctx, id, r, perm)
				case groupID != 0:
					return s.SetFieldGroupPermission(ctx, id, groupID, perm)
				}
				got, err := s.FieldPermission(ctx, id, optionalID(issueID))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"field_id": id, "permission": got.String()})
				}
				fmt.Println(got)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "system role to configure")
	cmd.Flags().Int64Var(&groupID, "group", 0, "group id to configure")
	cmd.Flags().StringVar(&level, "level", "none", "access level: none, R or RW")
	cmd.Flags().Int64Var(&issueID, "issue", 0, "evaluate in the context of an issue")
	return cmd
}

func fieldRemoveCmd(hard bool) *cobra.Command {
	use, short := "remove <field-id>", "Soft-delete a field, keeping its values"
	if hard {
		use, short = "delete <field-id>", "Delete a field that holds no values"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				if hard {
					return s.DeleteField(ctx, id)
				}
				return s.RemoveField(ctx, id)
			})
		},
	}
}

func listItemCmd() *cobra.Command {
	li := &cobra.Command{Use: "list-item", Short: "Manage items of list fields"}
	li.AddCommand(listItemCreateCmd())
	li.AddCommand(listItemListCmd())
	li.AddCommand(listItemDeleteCmd())
	return li
}

func listItemCreateCmd() *cobra.Command {
	var fieldID int64
	var value int
	var text string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add an item to a list field",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				item, err := s.CreateListItem(ctx, fieldID, value, text)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(item)
				}
				fmt.Printf("Created list item %d=%s (id %d)\n", item.Value, item.Text, item.ID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&fieldID, "field", 0, "field id")
	cmd.Flags().IntVar(&value, "value", 0, "stored value")
	cmd.Flags().StringVar(&text, "text", "", "display text")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func listItemListCmd() *cobra.Command {
	var fieldID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items of a list field",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.Repo.ListListItems(ctx, fieldID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, it := range items {
					rows = append(rows, table.Row{it.ID, it.Value, it.Text})
				}
				return printJSONOrTable(items, table.Row{"ID", "VALUE", "TEXT"}, rows)
			})
		},
	}
	cmd.Flags().Int64Var(&fieldID, "field", 0, "field id")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func listItemDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <item-id>",
		Short: "Delete a list item no issue uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, ws *app.Workspace, s *engine.Session) error {
				return s.DeleteListItem(ctx, id)
			})
		},
	}
}

func parseRoles(in []string) ([]domain.SystemRole, error) {
	res := make([]domain.SystemRole, 0, len(in))
	for _, s := range in {
		r, err := domain.ParseSystemRole(s)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, nil
}
