package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Paulygold/task-flow-manager/internal/app"
	"github.com/Paulygold/task-flow-manager/internal/config"
	"github.com/Paulygold/task-flow-manager/internal/events"
	"github.com/Paulygold/task-flow-manager/internal/identity"
	"github.com/Paulygold/task-flow-manager/internal/server"
	taskflowsdk "github.com/Paulygold/task-flow-manager/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "tf",
	Short: "Task Flow CLI",
	Long: `Task Flow tracks projects and tasks for a team with three roles.
- admin: manages roles, projects and every task.
- department_head: creates projects and manages every task.
- employee: sees and updates the tasks assigned to them.
Every command runs as --actor-id against the workspace database, through the
same role checks the HTTP API applies.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "", "account to act as")
	flags.String("jwt-secret", "", "token signing secret (prefer TASKFLOW_JWT_SECRET)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	for _, name := range []string{"workspace", "json", "actor-id", "jwt-secret", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(signupCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(eventsCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default taskflow.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer env.Close()
			if !cmd.Flags().Changed("addr") {
				addr = env.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") {
				basePath = env.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: env.Engine, Auth: env.Auth, BasePath: basePath, Logger: env.Logger})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			env.Logger.Info("serving", "addr", addr, "base_path", basePath)
			fmt.Printf("Serving Task Flow API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

func signupCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				s, err := env.Auth.SignUp(ctx, email, password, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(s.User)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func loginCmd() *cobra.Command {
	var baseURL, email, password string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in against a running server and show the resolved identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			client := taskflowsdk.New(baseURL)
			m := identity.NewManager(client, client, identity.Options{ResolveTimeout: timeout})
			defer m.Close()
			snap, err := m.SignIn(ctx, email, password)
			if err != nil {
				return err
			}
			if snap.State == identity.StateError {
				return fmt.Errorf("resolve identity: %w", snap.Err)
			}
			out := map[string]any{
				"state":   snap.State,
				"role":    snap.Role,
				"profile": snap.Profile,
			}
			if snap.Session != nil {
				out["access_token"] = snap.Session.AccessToken
				out["expires_at"] = snap.Session.ExpiresAt
			}
			if viper.GetBool("json") {
				return printJSON(out)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Actor", "Email", "Role", "State"})
			var id, mail string
			if snap.Profile != nil {
				id, mail = snap.Profile.ID, snap.Profile.Email
			}
			tw.AppendRow(table.Row{id, mail, snap.Role, snap.State})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server URL")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "sign in timeout")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the profile and role of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				me, err := env.Engine.Me(ctx, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(me)
			})
		},
	}
}

func roleCmd() *cobra.Command {
	role := &cobra.Command{Use: "role", Short: "Manage role assignments"}
	role.AddCommand(roleListCmd())
	role.AddCommand(roleSetCmd())
	role.AddCommand(roleBootstrapCmd())
	return role
}

func roleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List role assignments visible to --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Engine.ListRoles(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Actor", "Role", "Updated"})
				for _, ra := range items {
					tw.AppendRow(table.Row{ra.ActorID, ra.Role, ra.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func roleSetCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the role of an account (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ra, err := env.Engine.SetRole(ctx, actorID(), target, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(ra)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "account to change")
	cmd.Flags().StringVar(&role, "role", "", "admin, department_head or employee")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func roleBootstrapCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Promote the first admin of a fresh workspace",
		Long:  "Makes --actor an admin. Refused once any admin exists; use 'tf role set' from then on.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ra, err := env.Engine.BootstrapAdmin(ctx, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(ra)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "account to promote")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func eventsCmd() *cobra.Command {
	var n int
	var entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := events.List(ctx, env.DB, entityKind, entityID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + "/" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

// --- helpers ---

func openEnv(ctx context.Context, requireSecret bool) (*app.Env, error) {
	return app.Open(ctx, app.Options{
		Workspace:     viper.GetString("workspace"),
		JWTSecret:     viper.GetString("jwt-secret"),
		LogLevel:      viper.GetString("log-level"),
		LogFormat:     viper.GetString("log-format"),
		RequireSecret: requireSecret,
	})
}

func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	env, err := openEnv(ctx, false)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func actorID() string {
	return strings.TrimSpace(viper.GetString("actor-id"))
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
