package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	host          string
	httpPort      int
	wsPort        int
	localOnly     bool
	matchDuration time.Duration
	playerGrace   time.Duration
	prefix        string
	profile       bool
	roomTimeout   time.Duration
	tlsCert       string
	tlsKey        string
	verbose       bool
	version       bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.httpPort < 1 || c.httpPort > 65535 {
		return fmt.Errorf("invalid http port (must be between 1-65535 inclusive): %d", c.httpPort)
	}
	if c.wsPort < 0 || c.wsPort > 65535 {
		return fmt.Errorf("invalid websocket port (must be between 0-65535 inclusive): %d", c.wsPort)
	}
	if c.matchDuration <= 0 {
		return fmt.Errorf("invalid match duration: %s", c.matchDuration)
	}
	if c.localOnly {
		c.host = "127.0.0.1"
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MATHDUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "mathduel",
		Short:         "A two-player 60-second mental arithmetic and typing duel, served over WebSockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.host, "host", "H", "0.0.0.0", "address to bind to (env: MATHDUEL_HOST)")
	fs.IntVarP(&cfg.httpPort, "http-port", "p", 8000, "port to serve http on (env: MATHDUEL_HTTP_PORT)")
	fs.IntVar(&cfg.wsPort, "ws-port", 0, "dedicated websocket port, 0 to share the http port (env: MATHDUEL_WS_PORT)")
	fs.BoolVar(&cfg.localOnly, "local-only", false, "listen on 127.0.0.1 only, overriding --host (env: MATHDUEL_LOCAL_ONLY)")
	fs.DurationVar(&cfg.matchDuration, "match-duration", 60*time.Second, "length of the play window (env: MATHDUEL_MATCH_DURATION)")
	fs.DurationVar(&cfg.playerGrace, "player-grace", 30*time.Second, "time before an emptied room is deleted (env: MATHDUEL_PLAYER_GRACE)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: MATHDUEL_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: MATHDUEL_PROFILE)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", 60*time.Minute, "time before idle rooms are reaped (env: MATHDUEL_ROOM_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: MATHDUEL_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: MATHDUEL_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: MATHDUEL_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: MATHDUEL_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("mathduel v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
