package flash

import "strings"

// Default invocation of the flasher.
const (
	DefaultElevation = "pkexec"
	DefaultBinary    = "./assets/odin4"
)

// Operation names the kind of command a spec runs.
type Operation string

const (
	OpFlash      Operation = "flash"
	OpReboot     Operation = "reboot"
	OpRedownload Operation = "redownload"
)

// CommandSpec is one invocation of the flasher. Args[0] is the program.
type CommandSpec struct {
	Operation Operation `json:"operation"`
	Args      []string  `json:"args"`
}

// Program returns the executable to spawn.
func (s CommandSpec) Program() string {
	if len(s.Args) == 0 {
		return ""
	}
	return s.Args[0]
}

// Argv returns the arguments after the program.
func (s CommandSpec) Argv() []string {
	if len(s.Args) < 2 {
		return nil
	}
	return s.Args[1:]
}

// Request selects the partition images for a flash. Empty paths are skipped.
type Request struct {
	AP       string `json:"ap,omitempty"`
	BL       string `json:"bl,omitempty"`
	CP       string `json:"cp,omitempty"`
	CSC      string `json:"csc,omitempty"`
	NoReboot bool   `json:"no_reboot,omitempty"`
}

// Empty reports whether no image path is set.
func (r Request) Empty() bool {
	for _, p := range []string{r.AP, r.BL, r.CP, r.CSC} {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

// Builder produces flasher command lines.
type Builder struct {
	// Elevation is prepended to every command. Empty means none.
	Elevation string

	// Binary is the flasher executable.
	Binary string
}

// DefaultBuilder returns the pkexec + ./assets/odin4 builder.
func DefaultBuilder() Builder {
	return Builder{Elevation: DefaultElevation, Binary: DefaultBinary}
}

func (b Builder) prefix(capacity int) []string {
	args := make([]string, 0, capacity+2)
	if b.Elevation != "" {
		args = append(args, b.Elevation)
	}
	return append(args, b.Binary)
}

// Flash builds "[elevation] binary [-a AP] [-b BL] [-c CP] [-s CSC] [--no-reboot]".
func (b Builder) Flash(req Request) (CommandSpec, error) {
	if req.Empty() {
		return CommandSpec{}, ErrValidation
	}

	args := b.prefix(9)
	for _, part := range []struct{ flag, path string }{
		{"-a", req.AP},
		{"-b", req.BL},
		{"-c", req.CP},
		{"-s", req.CSC},
	} {
		if strings.TrimSpace(part.path) != "" {
			args = append(args, part.flag, part.path)
		}
	}
	if req.NoReboot {
		args = append(args, "--no-reboot")
	}

	return CommandSpec{Operation: OpFlash, Args: args}, nil
}

// Reboot builds "[elevation] binary --reboot".
func (b Builder) Reboot() CommandSpec {
	return CommandSpec{Operation: OpReboot, Args: append(b.prefix(1), "--reboot")}
}

// Redownload builds "[elevation] binary --redownload".
func (b Builder) Redownload() CommandSpec {
	return CommandSpec{Operation: OpRedownload, Args: append(b.prefix(1), "--redownload")}
}
