// Package classes maintains the course registry that authorizes attendance
// sessions. Each class carries a code, a display name, a bcrypt PIN hash,
// and the number of meetings in its term.
package classes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/hadir-dev/hadir/internal/database"
)

// DefaultMeetings is the meeting count assumed when a class does not set one.
const DefaultMeetings = 16

var (
	ErrUnknownClass = errors.New("unknown class")
	ErrInvalidPIN   = errors.New("invalid pin")
)

// Class describes one registered course.
type Class struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	PINHash  string `yaml:"pin_hash"`
	Meetings int    `yaml:"meetings,omitempty"`
}

// MeetingCount returns the configured meeting count, falling back to the
// default for entries written without one.
func (c Class) MeetingCount() int {
	if c.Meetings > 0 {
		return c.Meetings
	}
	return DefaultMeetings
}

// ValidMeeting reports whether pertemuan falls inside the class's term.
func (c Class) ValidMeeting(pertemuan int) bool {
	return pertemuan >= 1 && pertemuan <= c.MeetingCount()
}

type registryFile struct {
	Classes []Class `yaml:"classes"`
}

// Registry is a YAML-backed class store. All methods are safe for
// concurrent use.
type Registry struct {
	path string

	mu     sync.RWMutex
	byCode map[string]Class
}

// Open reads the registry at path. A missing file yields an empty registry
// so a fresh deployment can register classes before the first session.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path, byCode: map[string]Class{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read class registry %s: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse class registry %s: %w", path, err)
	}

	for _, cls := range file.Classes {
		if !database.ValidClassCode(cls.Code) {
			return nil, fmt.Errorf("class registry %s: invalid class code %q", path, cls.Code)
		}
		if _, ok := r.byCode[cls.Code]; ok {
			return nil, fmt.Errorf("class registry %s: duplicate class code %q", path, cls.Code)
		}
		r.byCode[cls.Code] = cls
	}
	return r, nil
}

// Add registers a new class, hashing the PIN with bcrypt, and persists the
// registry. Registering an existing code is an error.
func (r *Registry) Add(code, name, pin string, meetings int) (Class, error) {
	if !database.ValidClassCode(code) {
		return Class{}, fmt.Errorf("invalid class code %q", code)
	}
	if len(pin) < 4 {
		return Class{}, errors.New("pin must be at least 4 characters")
	}
	if meetings <= 0 {
		meetings = DefaultMeetings
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return Class{}, fmt.Errorf("hash pin: %w", err)
	}

	cls := Class{Code: code, Name: name, PINHash: string(hash), Meetings: meetings}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCode[code]; ok {
		return Class{}, fmt.Errorf("class %q already registered", code)
	}
	r.byCode[code] = cls
	if err := r.persistLocked(); err != nil {
		delete(r.byCode, code)
		return Class{}, err
	}
	return cls, nil
}

// Get returns the class for code or ErrUnknownClass.
func (r *Registry) Get(code string) (Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cls, ok := r.byCode[code]
	if !ok {
		return Class{}, fmt.Errorf("%w: %s", ErrUnknownClass, code)
	}
	return cls, nil
}

// List returns all classes ordered by code.
func (r *Registry) List() []Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Class, 0, len(r.byCode))
	for _, cls := range r.byCode {
		out = append(out, cls)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Authorize verifies the PIN against the class's stored hash. It returns
// ErrUnknownClass for an unregistered code and ErrInvalidPIN on mismatch.
// The context bounds the check so callers can cap credential validation.
func (r *Registry) Authorize(ctx context.Context, code, pin string) (Class, error) {
	cls, err := r.Get(code)
	if err != nil {
		return Class{}, err
	}
	if err := ctx.Err(); err != nil {
		return Class{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cls.PINHash), []byte(pin)); err != nil {
		return Class{}, fmt.Errorf("%w for class %s", ErrInvalidPIN, code)
	}
	return cls, nil
}

func (r *Registry) persistLocked() error {
	classes := make([]Class, 0, len(r.byCode))
	for _, cls := range r.byCode {
		classes = append(classes, cls)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Code < classes[j].Code })

	data, err := yaml.Marshal(registryFile{Classes: classes})
	if err != nil {
		return fmt.Errorf("marshal class registry: %w", err)
	}
	// 0600: the file holds credential hashes.
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("write class registry %s: %w", r.path, err)
	}
	return nil
}
