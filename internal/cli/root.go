package cli

import (
	"fmt"
	"io"
	"log/slog"

	"storefront/internal/config"
	"storefront/internal/identity"
	"storefront/internal/reconcile"
	"storefront/internal/remote"
	"storefront/internal/session"
	"storefront/internal/storefront"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Format     string // "json" | "text"
	Verbose    bool

	Client config.ClientConfig
	v      *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for shopctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{v: viper.New()}
	def := config.DefaultClientConfig()

	cmd := &cobra.Command{
		Use:   "shopctl",
		Short: "Cart and wishlist from the terminal",
		Long: `shopctl keeps an anonymous cart and wishlist in a local state file and
moves them into your account when you log in.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.ConfigFile != "" {
				opts.v.SetConfigFile(opts.ConfigFile)
				opts.v.SetConfigType("yaml")
				if err := opts.v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
				}
			}
			cfg, err := config.LoadClient(opts.v)
			if err != nil {
				return err
			}
			opts.Client = cfg
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (yaml)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.String("api-url", def.APIBaseURL, "cart/wishlist API base URL")
	pf.String("state", def.StatePath, "state file for session id and credential")
	pf.Duration("timeout", def.RequestTimeout, "per-request timeout")
	pf.Int("merge-attempts", def.MergeMaxAttempts, "merge attempts per collection")

	// フラグは明示されたときだけ環境変数・設定ファイルより優先
	_ = opts.v.BindPFlag(config.KeyAPIURL, pf.Lookup("api-url"))
	_ = opts.v.BindPFlag(config.KeyState, pf.Lookup("state"))
	_ = opts.v.BindPFlag(config.KeyTimeout, pf.Lookup("timeout"))
	_ = opts.v.BindPFlag(config.KeyMergeAttempts, pf.Lookup("merge-attempts"))

	cmd.AddCommand(NewCartCommand(opts))
	cmd.AddCommand(NewWishlistCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))

	return cmd
}

// env は1コマンド分の依存
type env struct {
	sf       *storefront.Storefront
	sessions *session.Store
	holder   *identity.Holder
	out      *OutputFormatter
}

func (o *RootOptions) open(cmd *cobra.Command) (*env, error) {
	logger := o.logger(cmd.ErrOrStderr())

	kv := session.NewFileKV(o.Client.StatePath)
	holder := identity.NewHolder(kv)
	sessions := session.NewStore(kv)

	timeout := remote.WithTimeout(o.Client.RequestTimeout)
	sf, err := storefront.New(storefront.Deps{
		Holder:   holder,
		Sessions: sessions,
		Cart:     remote.NewCartClient(o.Client.APIBaseURL, timeout),
		Wishlist: remote.NewWishlistClient(o.Client.APIBaseURL, timeout),
		Merge: reconcile.Options{
			MaxAttempts:     o.Client.MergeMaxAttempts,
			InitialInterval: o.Client.MergeInitialInterval,
			MaxInterval:     o.Client.MergeMaxInterval,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &env{
		sf:       sf,
		sessions: sessions,
		holder:   holder,
		out: &OutputFormatter{
			Format:    o.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
		},
	}, nil
}

func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
