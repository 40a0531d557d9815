package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aegis/internal/app"
	"aegis/internal/conduit"
	"aegis/internal/config"
	"aegis/internal/db"
	"aegis/internal/domain"
	"aegis/internal/engine"
	"aegis/internal/migrate"
	"aegis/internal/repo"
	"aegis/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "AEGIS governance CLI",
	Long: `AEGIS governs deliberation artifacts: who must be aware before a decision
locks, which review lenses must be represented or deferred with rationale,
and which tool calls may execute against the workspace.

- Artifact: the decision under deliberation, tagged with its domains.
- Peers: participants whose domain overlap with the artifact determines
  how deeply the decision concerns them.
- Lenses: review perspectives; each intersecting lens must be represented
  by a contribution or proxy review, or explicitly deferred with rationale.
- Operations: proposed tool calls recorded on an append-only ledger;
  read-only file reads execute only after an accepted request and inside
  their path allowlist.
- Sessions: deliberation windows; one active per artifact, swept to
  abandoned after inactivity.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AEGIS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("artifact", "", "artifact id (overrides the single-artifact default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("artifact", rootCmd.PersistentFlags().Lookup("artifact"))
}

func registerCommands() {
	rootCmd.AddCommand(artifactCmd())
	rootCmd.AddCommand(peerCmd())
	rootCmd.AddCommand(lensCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(inclusionCmd())
	rootCmd.AddCommand(lockCmd())
	rootCmd.AddCommand(opCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(serveCmd())
}

func artifactCmd() *cobra.Command {
	art := &cobra.Command{Use: "artifact", Short: "Manage deliberation artifacts"}
	art.AddCommand(artifactCreateCmd())
	art.AddCommand(artifactListCmd())
	art.AddCommand(artifactShowCmd())
	art.AddCommand(artifactConfigCmd())
	return art
}

func artifactCreateCmd() *cobra.Command {
	var id, title string
	var tags []string
	var highImpact, tension bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RegisterArtifact(ctx, id, title, tags, highImpact, tension)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "artifact id")
	cmd.Flags().StringVar(&title, "title", "", "artifact title")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "domain tags")
	cmd.Flags().BoolVar(&highImpact, "high-impact", false, "mark high impact")
	cmd.Flags().BoolVar(&tension, "tension", false, "mark detected tension")
	return cmd
}

func artifactListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListArtifacts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Tags", "High impact", "Tension"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Title, a.Status, strings.Join(a.DomainTags, ","), a.IsHighImpact, a.HasTension})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func artifactShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetArtifact(ctx, e.Config.Artifact.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func artifactConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Artifact config"}

	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import config from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				ts := time.Now().UTC().Format(time.RFC3339)
				return r.UpsertArtifactConfig(ctx, cfg.Artifact.ID, *cfg, ts)
			})
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "path to YAML config")

	var id string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default aegis.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(id)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&id, "id", "", "artifact id")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}

	cfgCmd.AddCommand(importCmd, initCmd, showCmd)
	return cfgCmd
}

func peerCmd() *cobra.Command {
	peer := &cobra.Command{Use: "peer", Short: "Manage peers"}

	var id, peerType, name string
	var domains []string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RegisterPeer(ctx, id, peerType, name, domains)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "peer id")
	add.Flags().StringVar(&peerType, "type", "human", "peer type (human|ai)")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringSliceVar(&domains, "domains", nil, "peer domains")

	list := &cobra.Command{
		Use:   "list",
		Short: "List peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				peers, err := r.ListPeers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(peers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Name", "Domains", "Acked"})
				for _, p := range peers {
					tw.AppendRow(table.Row{p.ID, p.Type, p.DisplayName, strings.Join(p.Domains, ","), p.Acknowledged})
				}
				tw.Render()
				return nil
			})
		},
	}

	peer.AddCommand(add, list)
	return peer
}

func lensCmd() *cobra.Command {
	lens := &cobra.Command{Use: "lens", Short: "Manage review lenses"}

	var id, description string
	var domains []string
	var autoReview bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Register lens",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.RegisterLens(ctx, id, domains, autoReview, description)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "lens id")
	add.Flags().StringSliceVar(&domains, "domains", nil, "lens domains")
	add.Flags().BoolVar(&autoReview, "auto-review", false, "lens reviews automatically")
	add.Flags().StringVar(&description, "description", "", "lens description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List lenses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				lenses, err := r.ListLenses(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(lenses)
			})
		},
	}

	lens.AddCommand(add, list)
	return lens
}

func eventCmd() *cobra.Command {
	event := &cobra.Command{Use: "event", Short: "Append governance events"}

	appendEvent := func(use, short string, evtType domain.EventType, needsLens, needsRationale bool) *cobra.Command {
		var peerID, lensID, rationale string
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				if peerID == "" {
					peerID = viper.GetString("actor-id")
				}
				if needsLens && lensID == "" {
					return fmt.Errorf("--lens required")
				}
				if needsRationale && strings.TrimSpace(rationale) == "" {
					return fmt.Errorf("--rationale required")
				}
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					ev, err := e.AppendGovernanceEvent(ctx, domain.GovernanceEvent{
						ArtifactID: e.Config.Artifact.ID,
						Type:       evtType,
						PeerID:     peerID,
						LensID:     lensID,
						Rationale:  rationale,
					})
					if err != nil {
						return err
					}
					return printJSONOrTable(ev)
				})
			},
		}
		cmd.Flags().StringVar(&peerID, "peer", "", "peer id (defaults to --actor-id)")
		if needsLens {
			cmd.Flags().StringVar(&lensID, "lens", "", "lens id")
		}
		cmd.Flags().StringVar(&rationale, "rationale", "", "rationale text")
		return cmd
	}

	event.AddCommand(appendEvent("ack", "Record awareness acknowledgment", domain.EventAwarenessAck, false, false))
	event.AddCommand(appendEvent("contribute", "Record a lens contribution", domain.EventContribution, true, false))
	event.AddCommand(appendEvent("proxy-review", "Record a proxy review for a lens", domain.EventProxyReview, true, false))
	event.AddCommand(appendEvent("defer", "Defer a lens with rationale", domain.EventDeferLens, true, true))
	return event
}

func inclusionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inclusion",
		Short: "Recompute the inclusion snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				state, err := e.InclusionFor(ctx, e.Config.Artifact.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(state)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Field", "Value"})
				tw.AppendRow(table.Row{"awareness", fmt.Sprintf("%.2f", state.AwarenessPercent)})
				tw.AppendRow(table.Row{"awareness satisfied", state.AwarenessSatisfied})
				tw.AppendRow(table.Row{"represented lenses", strings.Join(state.RepresentedLenses, ", ")})
				tw.AppendRow(table.Row{"missing lenses", strings.Join(state.MissingLenses, ", ")})
				tw.AppendRow(table.Row{"synthesis satisfied", state.SynthesisSatisfied})
				tw.AppendRow(table.Row{"shadow affects", strings.Join(state.DetectedShadowAffects, "; ")})
				tw.AppendRow(table.Row{"lock available", state.LockAvailable})
				tw.Render()
				for _, reason := range state.Reasons {
					fmt.Println("-", reason)
				}
				return nil
			})
		},
	}
}

func lockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Lock the artifact when inclusion allows it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.LockArtifact(ctx, e.Config.Artifact.ID, viper.GetString("actor-id"))
				if err != nil {
					var le engine.LockError
					if errors.As(err, &le) {
						fmt.Println("lock refused:")
						for _, reason := range le.Reasons {
							fmt.Println("-", reason)
						}
					}
					return err
				}
				return printJSONOrTable(snap)
			})
		},
	}
}

func opCmd() *cobra.Command {
	op := &cobra.Command{Use: "op", Short: "Governed tool-call operations"}
	op.AddCommand(opProposeCmd())
	op.AddCommand(opAcceptCmd())
	op.AddCommand(opRejectCmd())
	op.AddCommand(opExecuteCmd())
	op.AddCommand(opListCmd())
	return op
}

func opProposeCmd() *cobra.Command {
	var toolID, toolName, intent, rationale, sessionID string
	var scope, allow []string
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a read-only tool call",
		RunE: func(cmd *cobra.Command, args []string) error {
			if toolName == "" {
				return fmt.Errorf("--tool required")
			}
			if toolID == "" {
				toolID = toolName
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				proposed, err := e.ProposeOperation(ctx, conduit.ProposeParams{
					ArtifactID: e.Config.Artifact.ID,
					ToolID:     toolID,
					ToolName:   toolName,
					Intent:     intent,
					Scope:      scope,
					Allow:      allow,
					Rationale:  rationale,
					SessionID:  sessionID,
					PeerID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(proposed)
			})
		},
	}
	cmd.Flags().StringVar(&toolID, "tool-id", "", "tool id (defaults to --tool)")
	cmd.Flags().StringVar(&toolName, "tool", "", "tool name")
	cmd.Flags().StringVar(&intent, "intent", "", "intent")
	cmd.Flags().StringSliceVar(&scope, "scope", nil, "scope entries")
	cmd.Flags().StringSliceVar(&allow, "allow", nil, "allowed path prefixes")
	cmd.Flags().StringVar(&rationale, "rationale", "", "rationale")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	return cmd
}

func opAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <op-id>",
		Short: "Accept an execution request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				accepted, err := e.AcceptOperation(ctx, args[0], viper.GetString("actor-id"), nil)
				if err != nil {
					return err
				}
				return printJSONOrTable(accepted)
			})
		},
	}
	return cmd
}

func opRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <op-id>",
		Short: "Reject an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rejected, err := e.RejectOperation(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rejected)
			})
		},
	}
}

func opExecuteCmd() *cobra.Command {
	var path, encoding string
	cmd := &cobra.Command{
		Use:   "execute <op-id>",
		Short: "Execute a governed read-only tool call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("--path required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ExecuteOperation(ctx, args[0], conduit.ReadSpec{Path: path, Encoding: encoding})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "file path to read")
	cmd.Flags().StringVar(&encoding, "encoding", "", "content encoding")
	return cmd
}

func opListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current operation states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				heads, err := e.OperationHeads(ctx, e.Config.Artifact.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(heads)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Lineage", "Current", "Status", "Tool", "Mode"})
				for _, op := range heads {
					tw.AppendRow(table.Row{op.LineageID, op.ID, op.Status, op.Proposal.ToolName, op.Mode})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func sessionCmd() *cobra.Command {
	ses := &cobra.Command{Use: "session", Short: "Deliberation sessions"}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateSession(ctx, e.Config.Artifact.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}

	action := func(use, short string, act func(engine.Engine) func(context.Context, string) (domain.Session, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <session-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					s, err := act(e)(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSONOrTable(s)
				})
			},
		}
	}

	var peerID string
	join := &cobra.Command{
		Use:   "join <session-id>",
		Short: "Join session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if peerID == "" {
				peerID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.JoinSession(ctx, args[0], peerID)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	join.Flags().StringVar(&peerID, "peer", "", "peer id (defaults to --actor-id)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.SweepAbandoned(ctx); err != nil {
					return err
				}
				sessions, err := e.Repo.ListSessions(ctx, e.Config.Artifact.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sessions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Participants", "Last active"})
				for _, s := range sessions {
					last := ""
					if s.LastActiveAt != nil {
						last = *s.LastActiveAt
					}
					tw.AppendRow(table.Row{s.ID, s.Status, strings.Join(s.Participants, ","), last})
				}
				tw.Render()
				return nil
			})
		},
	}

	ses.AddCommand(create,
		action("start", "Start session", func(e engine.Engine) func(context.Context, string) (domain.Session, error) { return e.StartSession }),
		action("close", "Close session", func(e engine.Engine) func(context.Context, string) (domain.Session, error) { return e.CloseSession }),
		action("touch", "Record session activity", func(e engine.Engine) func(context.Context, string) (domain.Session, error) { return e.TouchSession }),
		join, list)
	return ses
}

func boardCmd() *cobra.Command {
	board := &cobra.Command{Use: "board", Short: "Deliberation board"}

	var peerID, body string
	post := &cobra.Command{
		Use:   "post",
		Short: "Post board message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if peerID == "" {
				peerID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.PostBoardMessage(ctx, e.Config.Artifact.ID, peerID, body)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	post.Flags().StringVar(&peerID, "peer", "", "peer id (defaults to --actor-id)")
	post.Flags().StringVar(&body, "body", "", "message body")

	list := &cobra.Command{
		Use:   "list",
		Short: "List board messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				msgs, err := e.Repo.ListBoardMessages(ctx, e.Config.Artifact.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(msgs)
			})
		},
	}

	board.AddCommand(post, list)
	return board
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Governance event log"}

	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail governance events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evs, err := e.Events.Tail(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "TS", "Type", "Peer", "Lens"})
				for _, ev := range evs {
					tw.AppendRow(table.Row{ev.Seq, ev.TS, ev.Type, ev.PeerID, ev.LensID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")

	log.AddCommand(tail)
	return log
}

func keyCmd() *cobra.Command {
	key := &cobra.Command{Use: "key", Short: "API keys"}

	var actor, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (cleartext shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cleartext := uuid.NewString()
				k := domain.APIKey{
					ID:      "KEY-" + uuid.NewString(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(cleartext),
				}
				if err := r.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				fmt.Println("api key:", cleartext)
				return nil
			})
		},
	}
	create.Flags().StringVar(&actor, "actor", "", "actor id (defaults to --actor-id)")
	create.Flags().StringVar(&name, "name", "", "key name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}

	key.AddCommand(create, list, del)
	return key
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveArtifactAndConfig(cmd.Context(), viper.GetString("artifact"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("AEGIS_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("AEGIS_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving AEGIS API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept X-Actor-Id without auth (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveArtifactAndConfig(ctx, viper.GetString("artifact"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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
