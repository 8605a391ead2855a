package volume

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bamsammich/ferry/internal/ui"
)

// DefaultMountTimeout bounds mount detection when none is configured.
const DefaultMountTimeout = 30 * time.Second

// RoleConfig names a volume to the operator and selects the directory on it
// used for transfers.
type RoleConfig struct {
	Label  string
	Subdir string
}

// Removable drives the insert, detect, eject and remove cycle for the
// source and destination volumes.
type Removable struct {
	waiter       *Waiter
	ejector      *Ejector
	prompt       Prompter
	roles        map[Role]RoleConfig
	mountTimeout time.Duration

	current *Volume
	// started is set by the first Ensure; only that call may adopt a
	// volume attached before the run began.
	started bool
}

// RemovableConfig configures a Removable.
type RemovableConfig struct {
	Waiter       *Waiter
	Ejector      *Ejector
	Prompter     Prompter
	Source       RoleConfig
	Destination  RoleConfig
	MountTimeout time.Duration
}

// NewRemovable returns a Removable configured by cfg.
func NewRemovable(cfg RemovableConfig) *Removable {
	timeout := cfg.MountTimeout
	if timeout <= 0 {
		timeout = DefaultMountTimeout
	}
	roles := map[Role]RoleConfig{Source: cfg.Source, Destination: cfg.Destination}
	for r, rc := range roles {
		if rc.Label == "" {
			rc.Label = r.String() + " volume"
			roles[r] = rc
		}
	}
	return &Removable{
		waiter:       cfg.Waiter,
		ejector:      cfg.Ejector,
		prompt:       cfg.Prompter,
		roles:        roles,
		mountTimeout: timeout,
	}
}

// AwaitInsertion asks the operator to insert the volume named label.
func (r *Removable) AwaitInsertion(ctx context.Context, label string) error {
	return r.prompt.Confirm(ctx, fmt.Sprintf("Insert the %s", label))
}

// DetectNewMount waits for a volume not present in prior.
func (r *Removable) DetectNewMount(ctx context.Context, prior Snapshot, timeout time.Duration) (Volume, error) {
	return r.waiter.DetectNewMount(ctx, prior, timeout)
}

// SafeEject unmounts and powers off v. Failures are logged and otherwise
// ignored; the operator removes the device either way.
func (r *Removable) SafeEject(ctx context.Context, v Volume) {
	if r.ejector == nil {
		return
	}
	if err := r.ejector.Eject(ctx, v); err != nil {
		slog.Warn("eject failed; make sure the device is safe to remove", "volume", v.Name, "error", err)
		return
	}
	slog.Log(ctx, ui.LevelSuccess, "ejected", "volume", v.Name)
}

// Ensure returns a mounted volume for role, prompting the operator if the
// volume is not already attached. On the first call a single volume that
// was attached before the run started is offered instead of asking for an
// insertion.
func (r *Removable) Ensure(ctx context.Context, role Role) (Volume, error) {
	rc := r.roles[role]
	if r.current != nil && r.current.Role == role && r.waiter.Mounted(*r.current) {
		return *r.current, nil
	}
	r.current = nil

	prior, err := r.waiter.Snapshot()
	if err != nil {
		return Volume{}, err
	}

	if !r.started {
		r.started = true
		if attached := r.waiter.Attached(prior); len(attached) == 1 {
			v := attached[0]
			if err := r.prompt.Confirm(ctx, fmt.Sprintf("Use %s as the %s", v.Path, rc.Label)); err != nil {
				return Volume{}, err
			}
			if r.waiter.Mounted(v) {
				return r.attach(ctx, role, v), nil
			}
			slog.Warn("attached volume went away", "path", v.Path)
			if prior, err = r.waiter.Snapshot(); err != nil {
				return Volume{}, err
			}
		}
	}

	if err := r.AwaitInsertion(ctx, rc.Label); err != nil {
		return Volume{}, err
	}
	v, err := r.DetectNewMount(ctx, prior, r.mountTimeout)
	if err != nil {
		return Volume{}, fmt.Errorf("detect %s: %w", rc.Label, err)
	}
	return r.attach(ctx, role, v), nil
}

func (r *Removable) attach(ctx context.Context, role Role, v Volume) Volume {
	v.Role = role
	if sub := r.roles[role].Subdir; sub != "" {
		v.Root = filepath.Join(v.Path, sub)
	}
	r.current = &v
	slog.Log(ctx, ui.LevelSuccess, "volume mounted", "role", role.String(), "path", v.Path)
	return v
}

// Release ejects v and asks the operator to remove it.
func (r *Removable) Release(ctx context.Context, v Volume) error {
	r.SafeEject(ctx, v)
	r.current = nil
	return r.prompt.Confirm(ctx, fmt.Sprintf("Remove the %s", r.roles[v.Role].Label))
}

// ReleaseAttached releases the volume left attached by the last Ensure, if
// any. A run whose plan has no files to move mounts the source only for
// planning and ends here.
func (r *Removable) ReleaseAttached(ctx context.Context) error {
	if r.current == nil {
		return nil
	}
	return r.Release(ctx, *r.current)
}
