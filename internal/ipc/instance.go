package ipc

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	// SignatureEnv names the variable Hyprland exports to its children.
	SignatureEnv = "HYPRLAND_INSTANCE_SIGNATURE"

	eventSocketName   = ".socket2.sock"
	requestSocketName = ".socket.sock"
	lockFileName      = "hyprland.lock"
)

// Instance identifies a running compositor and the directory holding its sockets.
type Instance struct {
	Signature string
	Dir       string
	// PID is only known for discovered instances.
	PID int
}

// EventSocket is the path of the event stream socket (.socket2.sock).
func (i Instance) EventSocket() string {
	return filepath.Join(i.Dir, eventSocketName)
}

// RequestSocket is the path of the request socket (.socket.sock).
func (i Instance) RequestSocket() string {
	return filepath.Join(i.Dir, requestSocketName)
}

// RuntimeDir returns $XDG_RUNTIME_DIR, falling back to the xdg default.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return xdg.RuntimeDir
}

// Locate returns the instance named by HYPRLAND_INSTANCE_SIGNATURE. When the
// variable is unset the newest live instance under the runtime dir is used.
func Locate() (Instance, error) {
	runtimeDir := RuntimeDir()
	if sig := strings.TrimSpace(os.Getenv(SignatureEnv)); sig != "" {
		return Instance{Signature: sig, Dir: filepath.Join(runtimeDir, "hypr", sig)}, nil
	}
	found, err := Discover(runtimeDir)
	if err != nil {
		return Instance{}, err
	}
	if len(found) == 0 {
		return Instance{}, errors.Wrapf(ErrNoInstance, "%s is not set and nothing is running under %s",
			SignatureEnv, filepath.Join(runtimeDir, "hypr"))
	}
	return found[0], nil
}

// Discover lists instances under runtimeDir/hypr whose lock file names a
// live process, newest first.
func Discover(runtimeDir string) ([]Instance, error) {
	root := filepath.Join(runtimeDir, "hypr")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "scan %s", root)
	}

	type candidate struct {
		inst    Instance
		started time.Time
	}
	var found []candidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		lock := filepath.Join(dir, lockFileName)
		pid, err := readLockPID(lock)
		if err != nil {
			continue
		}
		if alive, err := process.PidExists(int32(pid)); err != nil || !alive {
			continue
		}
		info, err := os.Stat(lock)
		if err != nil {
			continue
		}
		found = append(found, candidate{
			inst:    Instance{Signature: entry.Name(), Dir: dir, PID: pid},
			started: info.ModTime(),
		})
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].started.After(found[j].started)
	})

	out := make([]Instance, 0, len(found))
	for _, c := range found {
		out = append(out, c.inst)
	}
	return out, nil
}

// readLockPID parses the first line of hyprland.lock.
func readLockPID(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, err
		}
		return 0, errors.Newf("%s is empty", path)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return 0, errors.Wrapf(err, "parse pid in %s", path)
	}
	if pid <= 0 {
		return 0, errors.Newf("invalid pid %d in %s", pid, path)
	}
	return pid, nil
}
