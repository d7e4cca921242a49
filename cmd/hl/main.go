package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"harvestlink/internal/app"
	"harvestlink/internal/config"
	"harvestlink/internal/db"
	"harvestlink/internal/domain"
	"harvestlink/internal/engine"
	"harvestlink/internal/events"
	"harvestlink/internal/logger"
	"harvestlink/internal/repo"
	"harvestlink/internal/server"
	"harvestlink/internal/ussd"
	harvestlinksdk "harvestlink/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "hl",
	Short: "HarvestLink CLI",
	Long: `HarvestLink answers farmers over USSD and SMS with harvest loss risk, price
forecasts and buyer matches.
- Workspace: the .harvestlink directory holding the SQLite database, next to harvestlink.yml and .env.
- Sessions: one per USSD dial, replayed from the full input on every request and dropped on END or expiry.
- Menu: Check loss risk, Price forecast, Find buyers, Farming advice, Register.
- Records: buyers, farmers, predictions and sales feed the scoring oracle and the admin API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		envPath := filepath.Join(workspace, ".env")
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envPath, err)
		}
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HARVESTLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(dialCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(buyerCmd())
	rootCmd.AddCommand(farmerCmd())
	rootCmd.AddCommand(predictionCmd())
	rootCmd.AddCommand(transactionCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig reads harvestlink.yml, or the defaults when it is missing, and
// applies HARVESTLINK_* environment variables and bound flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	str := func(key string, dst *string) {
		if viper.IsSet(key) && viper.GetString(key) != "" {
			*dst = viper.GetString(key)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if viper.IsSet(key) && viper.GetString(key) != "" {
			*dst = viper.GetDuration(key)
		}
	}
	num := func(key string, dst *int) {
		if viper.IsSet(key) && viper.GetString(key) != "" {
			*dst = viper.GetInt(key)
		}
	}
	str("server.addr", &cfg.Server.Addr)
	str("server.base_path", &cfg.Server.BasePath)
	str("server.jwt_secret", &cfg.Server.JWTSecret)
	if viper.IsSet("server.cors_origins") && viper.GetString("server.cors_origins") != "" {
		cfg.Server.CORSOrigins = strings.Split(viper.GetString("server.cors_origins"), ",")
	}
	str("session.backend", &cfg.Session.Backend)
	dur("session.ttl", &cfg.Session.TTL)
	dur("session.sweep_interval", &cfg.Session.SweepInterval)
	str("session.redis_url", &cfg.Session.RedisURL)
	dur("oracle.timeout", &cfg.Oracle.Timeout)
	num("oracle.days_ahead", &cfg.Oracle.DaysAhead)
	num("oracle.max_buyers", &cfg.Oracle.MaxBuyers)
	str("ussd.service_code", &cfg.USSD.ServiceCode)
	num("ussd.max_screen_chars", &cfg.USSD.MaxScreenChars)
	str("log.level", &cfg.Log.Level)
	str("log.encoding", &cfg.Log.Encoding)
	str("log.output", &cfg.Log.Output)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding, OutputPath: cfg.Log.Output})
	if err != nil {
		return err
	}
	defer log.Sync()
	a, err := app.Open(ctx, viper.GetString("workspace"), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the USSD and SMS webhooks and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				cfg := a.Config
				log := a.Logger
				if cfg.Server.JWTSecret == "" {
					log.Warn("server.jwt_secret is empty; the admin API only accepts API keys")
				}
				handler, err := server.New(server.Config{
					Driver:        a.Driver,
					SMS:           a.SMS,
					Oracle:        a.Oracle,
					Repo:          a.Repo,
					Store:         a.Store,
					BasePath:      cfg.Server.BasePath,
					CORSOrigins:   cfg.Server.CORSOrigins,
					OracleTimeout: cfg.Oracle.Timeout,
					Auth:          server.AuthConfig{JWTSecret: cfg.Server.JWTSecret},
					Logger:        log,
				})
				if err != nil {
					return err
				}
				sweeper := server.Sweeper{
					Store:    a.Store,
					Events:   events.Writer{DB: a.DB},
					Interval: cfg.Session.SweepInterval,
					Logger:   log.Named("sweeper"),
				}
				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					log.Info("serving",
						zap.String("addr", cfg.Server.Addr),
						zap.String("base_path", cfg.Server.BasePath),
						zap.String("session_backend", cfg.Session.Backend))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					return sweeper.Run(gctx)
				})
				g.Go(func() error {
					<-gctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(sctx)
				})
				fmt.Printf("Serving HarvestLink on http://%s (USSD at /ussd, SMS at /sms, API at %s, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath)
				return g.Wait()
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("base-path", "", "API base path (overrides server.base_path)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.base_path", cmd.Flags().Lookup("base-path"))
	return cmd
}

func simulateCmd() *cobra.Command {
	var sessionID, phone string
	cmd := &cobra.Command{
		Use:     "simulate [choice...]",
		Short:   "Replay a dial-in against the local workspace",
		Example: "  hl simulate 1 1 50kg 1 1 1",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if sessionID == "" {
					sessionID = "sim-" + uuid.NewString()
				}
				replies, err := a.Driver.Simulate(ctx, sessionID, phone, args)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(replies)
				}
				for i, r := range replies {
					input := "(dial)"
					if i > 0 {
						input = strings.Join(args[:i], ussd.Separator)
					}
					fmt.Printf("> %s\n%s\n\n", input, r.String())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (random when empty)")
	cmd.Flags().StringVar(&phone, "phone", "+254700000000", "caller phone number")
	return cmd
}

func dialCmd() *cobra.Command {
	var target, phone, apiKey string
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Walk the menu interactively",
		Long:  "Reads one choice per line from stdin. With --url the choices go to a running server's /ussd webhook; otherwise they run against the local workspace.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := "dial-" + uuid.NewString()
			if target != "" {
				client := harvestlinksdk.New(target)
				client.APIKey = apiKey
				return dialLoop(cmd.InOrStdin(), func(text string) (bool, string, error) {
					r, err := client.Dial(cmd.Context(), sessionID, phone, "", text)
					return r.Final, r.Message, err
				})
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return dialLoop(cmd.InOrStdin(), func(text string) (bool, string, error) {
					r, err := a.Driver.Handle(ctx, engine.Request{SessionID: sessionID, PhoneNumber: phone, Text: text})
					return r.Final(), r.Message, err
				})
			})
		},
	}
	cmd.Flags().StringVar(&target, "url", "", "base URL of a running server")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key sent with requests")
	cmd.Flags().StringVar(&phone, "phone", "+254700000000", "caller phone number")
	return cmd
}

func dialLoop(in io.Reader, send func(text string) (bool, string, error)) error {
	scanner := bufio.NewScanner(in)
	var typed []string
	for {
		final, msg, err := send(strings.Join(typed, ussd.Separator))
		if err != nil {
			return err
		}
		fmt.Println(msg)
		if final {
			return nil
		}
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		typed = append(typed, strings.TrimSpace(scanner.Text()))
	}
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Inspect live USSD sessions"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sessions, err := a.Store.List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sessions)
				}
				tw := newTable("Session", "Phone", "Step", "Crop", "Updated")
				for _, s := range sessions {
					tw.AppendRow(table.Row{s.ID, s.PhoneNumber, s.CurrentStep, s.State.Crop, s.UpdatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Drop a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Store.Delete(ctx, args[0])
			})
		},
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Remove expired sessions now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sw := server.Sweeper{Store: a.Store, Events: events.Writer{DB: a.DB}, Logger: a.Logger}
				n, err := sw.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int64{"purged": n})
			})
		},
	}

	cmd.AddCommand(list, del, purge)
	return cmd
}

func buyerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "buyer", Short: "Manage the buyer directory"}

	var crop string
	list := &cobra.Command{
		Use:   "list",
		Short: "List buyers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				buyers, err := a.Repo.BuyersForCrop(ctx, crop)
				if err != nil {
					return err
				}
				return printBuyers(buyers)
			})
		},
	}
	list.Flags().StringVar(&crop, "crop", "", "only buyers interested in this crop")

	var b domain.Buyer
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a buyer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				created, err := a.Repo.InsertBuyer(ctx, b)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	add.Flags().StringVar(&b.Name, "name", "", "buyer name")
	add.Flags().StringVar(&b.Phone, "phone", "", "phone number")
	add.Flags().StringVar(&b.CropsInterested, "crops", "", "comma-separated crops, or all")
	add.Flags().StringVar(&b.Location, "location", "", "location")
	add.Flags().StringVar(&b.PriceRange, "price-range", "", "price range, e.g. 40-50 KES/kg")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("crops")
	_ = add.MarkFlagRequired("location")

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert the default buyers that are missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Repo.SeedBuyers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"added": n})
			})
		},
	}

	cmd.AddCommand(list, add, seed)
	return cmd
}

func printBuyers(buyers []domain.Buyer) error {
	if viper.GetBool("json") {
		return printJSON(buyers)
	}
	tw := newTable("Name", "Location", "Crops", "Price range", "Phone")
	for _, b := range buyers {
		tw.AppendRow(table.Row{b.Name, b.Location, b.CropsInterested, b.PriceRange, b.Phone})
	}
	tw.Render()
	return nil
}

func farmerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "farmer", Short: "Registered farmers"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List farmers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				farmers, err := a.Repo.ListFarmers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(farmers)
				}
				tw := newTable("Phone", "Location", "Crops", "Registered")
				for _, f := range farmers {
					tw.AppendRow(table.Row{f.Phone, f.Location, f.Crops, f.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func predictionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "prediction", Short: "Recorded loss assessments"}
	var phone string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List predictions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				preds, err := a.Repo.ListPredictions(ctx, phone, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(preds)
				}
				tw := newTable("When", "Channel", "Phone", "Crop", "Kg", "Risk", "Confidence", "KES/kg")
				for _, p := range preds {
					tw.AppendRow(table.Row{p.CreatedAt, p.Channel, p.FarmerPhone, p.Crop, p.Quantity, p.RiskTier,
						fmt.Sprintf("%.0f%%", p.Confidence*100), fmt.Sprintf("%.0f", p.PriceEstimate)})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&phone, "phone", "", "farmer phone filter")
	list.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	cmd.AddCommand(list)
	return cmd
}

func transactionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transaction",
		Short: "Recorded sales",
		Long:  "Sales from the last 30 days are blended into price forecasts.",
	}

	var t repo.Transaction
	add := &cobra.Command{
		Use:   "add",
		Short: "Record a sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				created, err := a.Repo.InsertTransaction(ctx, t)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	add.Flags().StringVar(&t.Crop, "crop", "", "crop")
	add.Flags().Float64Var(&t.Quantity, "quantity", 0, "quantity in kg")
	add.Flags().Float64Var(&t.Price, "price", 0, "price per kg in KES")
	add.Flags().StringVar(&t.FarmerID, "farmer-id", "", "farmer id")
	add.Flags().StringVar(&t.BuyerID, "buyer-id", "", "buyer id")

	var crop string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List sales",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListTransactions(ctx, crop, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Date", "Crop", "Kg", "KES/kg")
				for _, t := range items {
					tw.AppendRow(table.Row{t.Date, t.Crop, t.Quantity, t.Price})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&crop, "crop", "", "crop filter")
	list.Flags().IntVar(&limit, "limit", 20, "maximum rows")

	cmd.AddCommand(add, list)
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage admin API keys",
		Long:  "Keys are stored hashed; the plain key is printed once on create. Send it as X-Api-Key.",
	}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				key, err := newAPIKey()
				if err != nil {
					return err
				}
				rec := repo.APIKey{ID: uuid.NewString(), Name: name, KeyHash: repo.HashAPIKey(key)}
				if err := a.Repo.InsertAPIKey(ctx, rec); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": rec.ID, "name": name, "key": key})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Repo.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func newAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "hl_" + hex.EncodeToString(buf), nil
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Session starts and ends, registrations, SMS assessments and expiry sweeps.",
	}
	var n int
	var evtType, sessionID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.LatestEvents(ctx, n, evtType, sessionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "When", "Type", "Session", "Phone", "Payload")
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.SessionID, e.Phone, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&sessionID, "session", "", "session id filter")
	log.AddCommand(tail)
	return log
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage harvestlink.yml",
		Long:  "harvestlink.yml sits in the workspace; HARVESTLINK_* variables (from the environment or .env) override it, e.g. HARVESTLINK_SESSION_BACKEND=redis.",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config",
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
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			if c.Server.JWTSecret != "" {
				c.Server.JWTSecret = "********"
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			out, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}

	cfg.AddCommand(initCmd, show, validate)
	return cfg
}

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(headers))
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
