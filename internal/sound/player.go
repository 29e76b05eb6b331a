package sound

import (
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/onion108/onionbell/internal/config"
	"github.com/onion108/onionbell/internal/util"
)

var (
	// ErrPlayback marks every failure to start or finish a player process.
	ErrPlayback = errors.New("playback failed")

	// ErrNoBackend is returned when no player is configured or installed.
	ErrNoBackend = errors.New("no audio player found")
)

// placeholderPulseVolume expands to the linear 0..65536 scale paplay expects.
const placeholderPulseVolume = "{volume_pa}"

var volumePlaceholders = []string{config.PlaceholderVolume, config.PlaceholderVolumePercent, placeholderPulseVolume}

// Backend is a known player command template.
type Backend struct {
	Name string
	Args []string
}

// Backends lists the players tried in order when none is configured.
var Backends = []Backend{
	{Name: "pw-play", Args: []string{"pw-play", "--volume=" + config.PlaceholderVolume, config.PlaceholderPath}},
	{Name: "paplay", Args: []string{"paplay", "--volume=" + placeholderPulseVolume, config.PlaceholderPath}},
	{Name: "aplay", Args: []string{"aplay", "-q", config.PlaceholderPath}},
}

// Process is a started player.
type Process interface {
	Wait() error
}

// Launcher starts argv without waiting for it.
type Launcher func(argv []string) (Process, error)

func execLauncher(argv []string) (Process, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Option customises a Player.
type Option func(*Player)

// WithLauncher replaces process creation, mostly for tests.
func WithLauncher(l Launcher) Option {
	return func(p *Player) { p.launch = l }
}

// WithLookPath replaces the PATH lookup used for backend detection.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(p *Player) { p.lookPath = fn }
}

// WithErrorHook registers a callback invoked for every playback failure. It
// may be called from the goroutine reaping a player process.
func WithErrorHook(fn func(error)) Option {
	return func(p *Player) { p.onError = fn }
}

// Player launches an external process per sound and never waits for it.
type Player struct {
	name     string
	argv     []string
	logger   *util.Logger
	launch   Launcher
	lookPath func(string) (string, error)
	onError  func(error)
}

// NewPlayer uses command when set, otherwise the first installed backend.
func NewPlayer(logger *util.Logger, command []string, opts ...Option) (*Player, error) {
	p := &Player{
		logger:   logger,
		launch:   execLauncher,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(p)
	}
	if len(command) > 0 {
		p.name = command[0]
		p.argv = append([]string(nil), command...)
	} else {
		backend, err := Detect(p.lookPath)
		if err != nil {
			return nil, err
		}
		p.name = backend.Name
		p.argv = backend.Args
	}
	if !p.ScalesVolume() {
		logger.Infof("%s has no volume placeholder, sounds play at the player's own volume", p.name)
	}
	return p, nil
}

// Detect returns the first backend found by lookPath.
func Detect(lookPath func(string) (string, error)) (Backend, error) {
	names := make([]string, 0, len(Backends))
	for _, b := range Backends {
		if _, err := lookPath(b.Name); err == nil {
			return b, nil
		}
		names = append(names, b.Name)
	}
	return Backend{}, errors.Wrapf(ErrNoBackend, "tried %s; set player in the config", strings.Join(names, ", "))
}

// Name is the player binary.
func (p *Player) Name() string {
	return p.name
}

// Command returns the unexpanded argv template.
func (p *Player) Command() []string {
	return append([]string(nil), p.argv...)
}

// ScalesVolume reports whether the command template passes a volume to the
// player. aplay has no volume flag, so configured volumes are ignored there.
func (p *Player) ScalesVolume() bool {
	for _, arg := range p.argv {
		for _, ph := range volumePlaceholders {
			if strings.Contains(arg, ph) {
				return true
			}
		}
	}
	return false
}

// Play starts playback of path and returns immediately. Failures are logged
// and reported to the error hook, never returned.
func (p *Player) Play(path string, volume float64) {
	if err := p.start(path, volume); err != nil {
		p.fail(errors.Mark(err, ErrPlayback))
	}
}

func (p *Player) start(path string, volume float64) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "sound %s", path)
	}
	argv := Expand(p.argv, path, volume)
	proc, err := p.launch(argv)
	if err != nil {
		return errors.Wrapf(err, "start %s", argv[0])
	}
	p.logger.Tracef("started %s", strings.Join(argv, " "))
	go func() {
		if err := proc.Wait(); err != nil {
			p.fail(errors.Mark(errors.Wrapf(err, "%s %s", argv[0], path), ErrPlayback))
		}
	}()
	return nil
}

func (p *Player) fail(err error) {
	p.logger.Warnf("playback: %v", err)
	if p.onError != nil {
		p.onError(err)
	}
}

// Expand substitutes the path and volume placeholders in args.
func Expand(args []string, path string, volume float64) []string {
	r := strings.NewReplacer(
		config.PlaceholderPath, path,
		config.PlaceholderVolumePercent, strconv.Itoa(int(math.Round(volume*100))),
		config.PlaceholderVolume, strconv.FormatFloat(volume, 'f', 2, 64),
		placeholderPulseVolume, strconv.Itoa(int(math.Round(volume*65536))),
	)
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = r.Replace(arg)
	}
	return out
}
