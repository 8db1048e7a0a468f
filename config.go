/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/drawbox/sketch"
)

const maxBasePoints = 1_000_000

type Config struct {
	bind    string
	port    int
	prefix  string
	profile bool
	tlsCert string
	tlsKey  string
	verbose bool
	version bool

	maxPlayers     int
	maxRounds      int
	turnTime       time.Duration
	idleGrace      time.Duration
	idleMax        time.Duration
	reconnectGrace time.Duration
	lateJoin       bool
	advance        string

	basePoints    int
	drawerBonus   int
	matchDistance int
	closeDistance int

	replaySize int
	words      string
	wordOrder  string

	secret     string
	sessionTTL time.Duration
	guessRate  float64
	strokeRate float64
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxPlayers < 2 {
		return fmt.Errorf("invalid --max-players (must be at least 2): %d", c.maxPlayers)
	}
	if c.maxRounds < 1 {
		return fmt.Errorf("invalid --max-rounds (must be at least 1): %d", c.maxRounds)
	}
	if c.basePoints < 1 || c.basePoints > maxBasePoints {
		return fmt.Errorf("invalid --base-points (must be between 1-%d inclusive): %d", maxBasePoints, c.basePoints)
	}
	if c.drawerBonus < 0 || c.matchDistance < 0 || c.closeDistance < 0 {
		return errors.New("--drawer-bonus, --match-distance and --close-distance cannot be negative")
	}
	if c.replaySize < 1 {
		return fmt.Errorf("invalid --replay-size (must be at least 1): %d", c.replaySize)
	}

	for name, d := range map[string]time.Duration{
		"turn-time":       c.turnTime,
		"idle-grace":      c.idleGrace,
		"idle-max":        c.idleMax,
		"reconnect-grace": c.reconnectGrace,
		"session-ttl":     c.sessionTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid --%s (must be positive): %s", name, d)
		}
	}

	switch sketch.AdvancePolicy(c.advance) {
	case sketch.AdvanceOnFirst, sketch.AdvanceWhenAllGuessed:
	default:
		return fmt.Errorf("invalid --advance (must be first or all): %q", c.advance)
	}

	switch sketch.WordOrder(c.wordOrder) {
	case sketch.WordsRandom, sketch.WordsShuffle:
	default:
		return fmt.Errorf("invalid --word-order (must be random or shuffle): %q", c.wordOrder)
	}

	if c.guessRate <= 0 || c.strokeRate <= 0 {
		return errors.New("--guess-rate and --stroke-rate must be positive")
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// options translates flags into coordinator options.
func (c *Config) options() sketch.Options {
	opts := sketch.DefaultOptions()

	opts.MaxPlayers = c.maxPlayers
	opts.MaxRounds = c.maxRounds
	opts.TurnDuration = c.turnTime
	opts.IdleGrace = c.idleGrace
	opts.IdleMax = c.idleMax
	opts.ReconnectGrace = c.reconnectGrace
	opts.SweepInterval = min(c.idleGrace, c.reconnectGrace) / 2
	opts.BasePoints = c.basePoints
	opts.DrawerBonus = c.drawerBonus
	opts.MatchDistance = c.matchDistance
	opts.CloseDistance = c.closeDistance
	opts.AllowLateJoin = c.lateJoin
	opts.Advance = sketch.AdvancePolicy(c.advance)
	opts.ReplaySize = c.replaySize
	opts.Logf = func(format string, args ...any) {
		logf(c, format, args...)
	}

	return opts
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DRAWBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "drawbox",
		Short:         "A multiplayer draw-and-guess party game server.",
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

	d := sketch.DefaultOptions()

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: DRAWBOX_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: DRAWBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: DRAWBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: DRAWBOX_PROFILE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: DRAWBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: DRAWBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: DRAWBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: DRAWBOX_VERSION)")

	fs.IntVar(&cfg.maxPlayers, "max-players", d.MaxPlayers, "maximum members per room (env: DRAWBOX_MAX_PLAYERS)")
	fs.IntVar(&cfg.maxRounds, "max-rounds", d.MaxRounds, "rounds per game (env: DRAWBOX_MAX_ROUNDS)")
	fs.DurationVar(&cfg.turnTime, "turn-time", d.TurnDuration, "time each drawer gets (env: DRAWBOX_TURN_TIME)")
	fs.DurationVar(&cfg.idleGrace, "idle-grace", d.IdleGrace, "time before a room with nobody connected is closed (env: DRAWBOX_IDLE_GRACE)")
	fs.DurationVar(&cfg.idleMax, "idle-max", d.IdleMax, "time before a room with no activity is closed (env: DRAWBOX_IDLE_MAX)")
	fs.DurationVar(&cfg.reconnectGrace, "reconnect-grace", d.ReconnectGrace, "time a disconnected player keeps their seat (env: DRAWBOX_RECONNECT_GRACE)")
	fs.BoolVar(&cfg.lateJoin, "late-join", d.AllowLateJoin, "let players join running games as spectators (env: DRAWBOX_LATE_JOIN)")
	fs.StringVar(&cfg.advance, "advance", string(d.Advance), "end a turn on the first correct guess or once all have guessed [first|all] (env: DRAWBOX_ADVANCE)")

	fs.IntVar(&cfg.basePoints, "base-points", d.BasePoints, "points for a correct guess with the full turn left (env: DRAWBOX_BASE_POINTS)")
	fs.IntVar(&cfg.drawerBonus, "drawer-bonus", d.DrawerBonus, "points for the drawer when their word is first guessed (env: DRAWBOX_DRAWER_BONUS)")
	fs.IntVar(&cfg.matchDistance, "match-distance", d.MatchDistance, "typos tolerated in a correct guess (env: DRAWBOX_MATCH_DISTANCE)")
	fs.IntVar(&cfg.closeDistance, "close-distance", d.CloseDistance, "tell guessers when they are this many letters off, 0 to disable (env: DRAWBOX_CLOSE_DISTANCE)")

	fs.IntVar(&cfg.replaySize, "replay-size", d.ReplaySize, "stroke segments kept for players who join mid-turn (env: DRAWBOX_REPLAY_SIZE)")
	fs.StringVar(&cfg.words, "words", "", "path to a word list, one per line (default: built-in list) (env: DRAWBOX_WORDS)")
	fs.StringVar(&cfg.wordOrder, "word-order", string(sketch.WordsShuffle), "how words are drawn from the list [random|shuffle] (env: DRAWBOX_WORD_ORDER)")

	fs.StringVar(&cfg.secret, "secret", "", "key used to sign reconnect tokens (default: random per process) (env: DRAWBOX_SECRET)")
	fs.DurationVar(&cfg.sessionTTL, "session-ttl", 24*time.Hour, "lifetime of reconnect tokens (env: DRAWBOX_SESSION_TTL)")
	fs.Float64Var(&cfg.guessRate, "guess-rate", 2, "guesses per second allowed per connection (env: DRAWBOX_GUESS_RATE)")
	fs.Float64Var(&cfg.strokeRate, "stroke-rate", 60, "stroke segments per second allowed per connection (env: DRAWBOX_STROKE_RATE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("drawbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
