// Package profile loads instrument profiles: the command strings, status
// byte layout, register families and timing a session needs to drive one
// kind of instrument.
//
// Profiles are YAML documents. Two are built in ("scpi" and "tsp"); others
// are loaded from files and may name a built-in as their base, in which
// case only the keys they set override it.
package profile

import (
	"embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/benchlink/benchlink-go/pkg/register"
	"github.com/benchlink/benchlink-go/pkg/sequence"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// Default is the built-in profile used when none is named.
const Default = "scpi"

var (
	ErrNotFound = errors.New("profile not found")
	ErrInvalid  = errors.New("invalid profile")
)

// Profile describes one kind of instrument.
type Profile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Base names a built-in profile this one extends.
	Base string `yaml:"base,omitempty"`

	SupportMode  string `yaml:"support_mode"`
	Notification string `yaml:"notification"`

	PollPeriod       time.Duration `yaml:"poll_period"`
	RefractoryPeriod time.Duration `yaml:"refractory_period"`
	WriteToReadDelay time.Duration `yaml:"write_to_read_delay"`
	StatusReadDelay  time.Duration `yaml:"status_read_delay"`
	Timeout          time.Duration `yaml:"timeout"`

	// LineFrequency is the AC line frequency assumed until the instrument
	// reports its own.
	LineFrequency float64 `yaml:"line_frequency"`

	AutoReadOnPoll bool `yaml:"auto_read_on_poll"`
	AutoReadOnSRQ  bool `yaml:"auto_read_on_srq"`

	StatusByte StatusByte                       `yaml:"status_byte"`
	Commands   Commands                         `yaml:"commands"`
	Families   map[string]register.FamilyConfig `yaml:"families"`
	ClearState ClearState                       `yaml:"clear_state"`
}

// StatusByte assigns the status byte bits the dispatcher and sequencer
// interpret.
type StatusByte struct {
	MessageAvailable  uint8 `yaml:"message_available"`
	ErrorAvailable    uint8 `yaml:"error_available"`
	OperationEvent    uint8 `yaml:"operation_event"`
	QuestionableEvent uint8 `yaml:"questionable_event"`
	StandardEvent     uint8 `yaml:"standard_event"`
}

// Commands holds the session-level command strings.
type Commands struct {
	Reset         string `yaml:"reset"`
	Clear         string `yaml:"clear"`
	Identity      string `yaml:"identity"`
	Error         string `yaml:"error"`
	LineFrequency string `yaml:"line_frequency"`
	Preset        string `yaml:"preset"`
}

// ClearState is the register programming applied after the clear-status
// command. Map keys are family names.
type ClearState struct {
	Preset              bool                           `yaml:"preset"`
	Enables             map[string]uint16              `yaml:"enables,omitempty"`
	Transitions         map[string]sequence.Transition `yaml:"transitions,omitempty"`
	OperationCompletion *sequence.OperationCompletion  `yaml:"operation_completion,omitempty"`
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Profile)
)

// Builtin returns a copy of a built-in profile.
func Builtin(name string) (*Profile, error) {
	cacheMu.RLock()
	p, ok := cache[name]
	cacheMu.RUnlock()
	if ok {
		return p.Clone(), nil
	}

	data, err := profileFS.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	p = &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing built-in profile %q: %w", name, err)
	}

	cacheMu.Lock()
	cache[name] = p
	cacheMu.Unlock()

	return p.Clone(), nil
}

// Available returns the names of the built-in profiles, sorted.
func Available() ([]string, error) {
	entries, err := profileFS.ReadDir("profiles")
	if err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}

	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Parse decodes a profile document and validates it.
func Parse(data []byte) (*Profile, error) {
	var head struct {
		Base string `yaml:"base"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	p := &Profile{}
	if head.Base != "" {
		base, err := Builtin(head.Base)
		if err != nil {
			return nil, err
		}
		p = base
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Load resolves ref as a built-in profile name or a YAML file path.
// An empty ref loads Default.
func Load(ref string) (*Profile, error) {
	if ref == "" {
		ref = Default
	}
	if !strings.ContainsAny(ref, `/\.`) {
		return Builtin(ref)
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(ref), err)
	}
	return p, nil
}

// Marshal encodes the profile as YAML.
func (p *Profile) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	c := *p
	if p.Families != nil {
		c.Families = make(map[string]register.FamilyConfig, len(p.Families))
		for k, fc := range p.Families {
			fc.Labels = maps.Clone(fc.Labels)
			c.Families[k] = fc
		}
	}
	c.ClearState.Enables = maps.Clone(p.ClearState.Enables)
	c.ClearState.Transitions = maps.Clone(p.ClearState.Transitions)
	if oc := p.ClearState.OperationCompletion; oc != nil {
		v := *oc
		c.ClearState.OperationCompletion = &v
	}
	return &c
}
