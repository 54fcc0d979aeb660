// Package replay drives the device engine from a YAML script of host
// frames, local input and clock advances.
package replay

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Script is a replayable device session.
type Script struct {
	Name string `yaml:"name"`

	// Image is a flash image file, relative to the script. The replay never
	// writes it back. Wallets is used when Image is empty.
	Image   string       `yaml:"image,omitempty"`
	Wallets []WalletSpec `yaml:"wallets,omitempty"`

	Firmware      string `yaml:"firmware,omitempty"`
	Provisioned   bool   `yaml:"provisioned,omitempty"`
	Serial        string `yaml:"serial,omitempty"`
	Authenticated bool   `yaml:"authenticated,omitempty"`
	RequireAuth   bool   `yaml:"require-auth,omitempty"`

	Steps []Step `yaml:"steps"`

	dir string
}

// WalletSpec creates a wallet in the in-memory image.
type WalletSpec struct {
	Name       string `yaml:"name"`
	PIN        string `yaml:"pin,omitempty"`
	Passphrase bool   `yaml:"passphrase,omitempty"`
}

// Step is one host or user action followed by device ticks.
type Step struct {
	Frame   *Frame        `yaml:"frame,omitempty"`
	Status  string        `yaml:"status,omitempty"`
	Reset   bool          `yaml:"reset,omitempty"`
	Accept  bool          `yaml:"accept,omitempty"`
	Reject  bool          `yaml:"reject,omitempty"`
	Text    *string       `yaml:"text,omitempty"`
	Advance time.Duration `yaml:"advance,omitempty"`

	// Ticks is the number of device loop iterations after the action
	// (default 1).
	Ticks int `yaml:"ticks,omitempty"`

	// Expect lists the response kinds the step must produce, in order.
	// Nil skips the check; an empty list expects silence.
	Expect []string `yaml:"expect"`
}

// Load reads a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// Parse decodes a script. Unknown keys are rejected.
func Parse(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Script) validate() error {
	if len(s.Steps) == 0 {
		return errors.New("script has no steps")
	}
	if s.Image != "" && len(s.Wallets) > 0 {
		return errors.New("image and wallets are mutually exclusive")
	}
	for i, step := range s.Steps {
		if n := step.actions(); n > 1 {
			return fmt.Errorf("step %d: %d actions, at most one allowed", i+1, n)
		}
		if step.Ticks < 0 {
			return fmt.Errorf("step %d: negative ticks", i+1)
		}
		if step.Advance < 0 {
			return fmt.Errorf("step %d: negative advance", i+1)
		}
	}
	return nil
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Frame != nil, s.Status != "", s.Reset, s.Accept, s.Reject, s.Text != nil} {
		if set {
			n++
		}
	}
	return n
}

// imagePath resolves Image against the script directory.
func (s *Script) imagePath() string {
	if s.Image == "" || filepath.IsAbs(s.Image) {
		return s.Image
	}
	return filepath.Join(s.dir, s.Image)
}
