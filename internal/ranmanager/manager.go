// Package ranmanager implements the RAN manager of spec.md C3: the
// mediator between the MAC scheduler (internal/ransched) and the
// controller-facing agent, responsible for slice lifecycle and the
// PLMN/tag <-> slice id translation the rest of the system treats as
// opaque 64-bit identifiers.
package ranmanager

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kewinrausch/empower-srsLTE/internal/ranid"
	"github.com/kewinrausch/empower-srsLTE/internal/ransched"
)

// SliceInfo is an alias of the scheduler's own per-slice info struct, so
// ranmanager callers never need to import internal/ransched themselves.
type SliceInfo = ransched.SliceInfo

// MACScheduler is the subset of internal/ransched.Scheduler the manager
// drives. A narrow interface, matching the teacher's RDTAllocator
// pattern, keeps the manager testable without a real scheduler.
type MACScheduler interface {
	AddSlice(id uint64) error
	RemSlice(id uint64) error
	SetSlice(id uint64, tti, rbg int32) error
	AddSliceUser(rnti uint16, sliceID uint64, lock bool) error
	RemSliceUser(rnti uint16, sliceID uint64)
	GetSliceSchedID() uint32
	GetSliceInfo(id uint64, cap int) (SliceInfo, error)
}

// sliceRecord is what the manager remembers about a slice beyond what
// the MAC scheduler itself tracks (spec.md C3 "owns the default/
// admission slice lazily").
type sliceRecord struct {
	id        uint64
	plmn      uint32
	tag       uint32
	admission bool
}

// defaultSliceTTI/defaultSliceRBG are the resource credit a slice is
// given when the manager creates it without an explicit configuration:
// the admission slice on first use, and any tenant slice a user joins
// before a controller has ever configured it (spec.md §4.3 "default
// config rbg=60, time=10").
const (
	defaultSliceTTI = 10
	defaultSliceRBG = 60
)

// Manager is the RAN manager. A single RWMutex guards the slice
// registry; the MAC scheduler has its own lock underneath and is always
// called without the manager's lock held by anything the scheduler
// itself might call back into, matching spec.md §5's fixed lock order.
type Manager struct {
	mu  sync.RWMutex
	log *logrus.Logger

	mac MACScheduler

	slices         map[uint64]*sliceRecord
	defaultEnsured bool
}

// New constructs a RAN manager around an already-initialized MAC
// scheduler. The default slice is not created here; it comes into
// existence on the first call that needs it (CreateSlice, AddSliceUser
// or MoveSliceUser against ranid.DefaultSlice, or an explicit
// EnsureDefaultSlice).
func New(mac MACScheduler, log *logrus.Logger) *Manager {
	return &Manager{
		mac:    mac,
		log:    log,
		slices: make(map[uint64]*sliceRecord),
	}
}

// EnsureDefaultSlice creates the admission slice (ranid.DefaultSlice) if
// it does not already exist. Idempotent: a scheduler-side "already
// exists" error is swallowed.
func (m *Manager) EnsureDefaultSlice() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureDefaultSliceLocked()
}

func (m *Manager) ensureDefaultSliceLocked() error {
	if m.defaultEnsured {
		return nil
	}
	if err := m.mac.AddSlice(ranid.DefaultSlice); err != nil {
		m.log.WithError(err).Debug("ensure_default_slice: scheduler rejected add_slice, assuming already present")
	}
	if err := m.mac.SetSlice(ranid.DefaultSlice, defaultSliceTTI, defaultSliceRBG); err != nil {
		m.log.WithError(err).Warn("ensure_default_slice: failed to install the default resource credit")
	}
	m.slices[ranid.DefaultSlice] = &sliceRecord{id: ranid.DefaultSlice, admission: true}
	m.defaultEnsured = true
	return nil
}

// createWithDefaultsLocked lazily creates a tenant slice with the
// default resource credit (spec.md §4.3 "add_slice_user... if the
// target slice is absent, create it with a default configuration
// (user_sched=RR_USER, rbg=60, time=10) before attaching the user").
// The MAC scheduler always attaches a round-robin user scheduler in
// AddSlice, so only the resource credit needs configuring here.
func (m *Manager) createWithDefaultsLocked(id uint64) error {
	if err := m.mac.AddSlice(id); err != nil {
		return fmt.Errorf("lazily create slice %d: %w", id, err)
	}
	if err := m.mac.SetSlice(id, defaultSliceTTI, defaultSliceRBG); err != nil {
		if unwindErr := m.mac.RemSlice(id); unwindErr != nil {
			m.log.WithError(unwindErr).WithField("slice", id).
				Error("lazily create slice: failed to unwind after set_slice failure")
		}
		return fmt.Errorf("lazily create slice %d: configure default resources: %w", id, err)
	}
	m.slices[id] = &sliceRecord{id: id, plmn: ranid.PLMNOf(id), tag: ranid.TagOf(id)}
	return nil
}

// CreateSlice packs a (plmn, tag) pair into a slice id, creates it in
// the MAC scheduler, configures its initial RBG budget, and admits
// users (spec.md C3 "set_slice(id, info)" following "add_slice"). If
// either the budget configuration or the initial membership admission
// fails, the slice is torn back down in the scheduler before the error
// is returned, so a failed CreateSlice never leaves a half-configured
// slice behind (spec.md C3 unwind-on-partial-failure).
func (m *Manager) CreateSlice(plmn, tag uint32, tti, rbgBudget int32, users []uint16) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureDefaultSliceLocked(); err != nil {
		return 0, err
	}

	id := ranid.PackID(plmn, tag)
	if _, exists := m.slices[id]; exists {
		return 0, fmt.Errorf("slice for plmn=%#x tag=%#x already exists", plmn, tag)
	}

	if err := m.mac.AddSlice(id); err != nil {
		return 0, fmt.Errorf("create slice: %w", err)
	}

	if err := m.mac.SetSlice(id, tti, rbgBudget); err != nil {
		if unwindErr := m.mac.RemSlice(id); unwindErr != nil {
			m.log.WithError(unwindErr).WithField("slice", id).
				Error("create_slice: failed to unwind after set_slice failure")
		}
		return 0, fmt.Errorf("create slice: configure resources: %w", err)
	}

	m.slices[id] = &sliceRecord{id: id, plmn: plmn, tag: tag}

	if err := m.reconcileMembersLocked(id, users); err != nil {
		if unwindErr := m.mac.RemSlice(id); unwindErr != nil {
			m.log.WithError(unwindErr).WithField("slice", id).
				Error("create_slice: failed to unwind after membership admission failure")
		}
		delete(m.slices, id)
		return 0, fmt.Errorf("create slice: admit users: %w", err)
	}

	return id, nil
}

// RemoveSlice deletes a non-default slice. The MAC scheduler drops the
// slice together with its member set, so users still assigned to it
// leave no dangling membership reference behind.
func (m *Manager) RemoveSlice(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.slices[id]
	if !ok {
		return fmt.Errorf("slice %d does not exist", id)
	}
	if rec.admission {
		return fmt.Errorf("slice %d is the admission slice and cannot be removed", id)
	}

	if err := m.mac.RemSlice(id); err != nil {
		return fmt.Errorf("remove slice: %w", err)
	}
	delete(m.slices, id)
	return nil
}

// SetSlice reconfigures an existing slice's resource budget and
// reconciles its membership against users, the slice's full intended
// user set (spec.md C3 "set_slice(id, info)"): anyone currently in the
// slice but missing from users is evicted, and anyone in users not yet
// present is admitted locked, mirroring the original ran::set_slice's
// two-pass add/remove reconciliation.
func (m *Manager) SetSlice(id uint64, tti, rbg int32, users []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slices[id]; !ok {
		return fmt.Errorf("slice %d does not exist", id)
	}
	if err := m.mac.SetSlice(id, tti, rbg); err != nil {
		return fmt.Errorf("set slice: %w", err)
	}
	return m.reconcileMembersLocked(id, users)
}

// reconcileMembersLocked makes the slice's current membership in the
// MAC scheduler match users exactly. Callers must hold m.mu.
func (m *Manager) reconcileMembersLocked(id uint64, users []uint16) error {
	info, err := m.mac.GetSliceInfo(id, -1)
	if err != nil {
		return fmt.Errorf("reconcile slice %d members: %w", id, err)
	}

	want := make(map[uint16]bool, len(users))
	for _, rnti := range users {
		want[rnti] = true
	}

	have := make(map[uint16]bool, len(info.Users))
	for _, rnti := range info.Users {
		have[rnti] = true
		if !want[rnti] {
			m.mac.RemSliceUser(rnti, id)
		}
	}

	for _, rnti := range users {
		if have[rnti] {
			continue
		}
		if err := m.mac.AddSliceUser(rnti, id, true); err != nil {
			return fmt.Errorf("reconcile slice %d members: add user %d: %w", id, rnti, err)
		}
	}
	return nil
}

// AddSliceUser admits rnti into a slice, creating the slice first with
// the default resource credit if this is the first time anyone targets
// it (spec.md §4.3 "add_slice_user", following ran.cc:504-522): slice
// id 0 means the admission slice, and any other never-seen slice id is
// brought up with user_sched=RR_USER, rbg=60, time=10 before the user
// is attached.
func (m *Manager) AddSliceUser(rnti uint16, sliceID uint64, lock bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sliceID == 0 {
		sliceID = ranid.DefaultSlice
	}
	if sliceID == ranid.DefaultSlice {
		if err := m.ensureDefaultSliceLocked(); err != nil {
			return err
		}
	} else if _, ok := m.slices[sliceID]; !ok {
		if err := m.createWithDefaultsLocked(sliceID); err != nil {
			return fmt.Errorf("add slice user: %w", err)
		}
	}

	return m.mac.AddSliceUser(rnti, sliceID, lock)
}

// MoveSliceUser transfers rnti from one slice to another, lazily
// creating the destination with default resources the same way
// AddSliceUser does (spec.md §4.3). If admission into the destination
// slice fails, the user is left exactly where it was (no RemSliceUser
// is issued against the source), so this never strands a user in
// neither slice.
func (m *Manager) MoveSliceUser(rnti uint16, fromSlice, toSlice uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if toSlice == ranid.DefaultSlice {
		if err := m.ensureDefaultSliceLocked(); err != nil {
			return err
		}
	} else if _, ok := m.slices[toSlice]; !ok {
		if err := m.createWithDefaultsLocked(toSlice); err != nil {
			return fmt.Errorf("move slice user: %w", err)
		}
	}

	if err := m.mac.AddSliceUser(rnti, toSlice, false); err != nil {
		return fmt.Errorf("move user %d to slice %d: %w", rnti, toSlice, err)
	}
	m.mac.RemSliceUser(rnti, fromSlice)
	return nil
}

// RemSliceUser drops rnti from a slice, or from every slice if sliceID
// is zero.
func (m *Manager) RemSliceUser(rnti uint16, sliceID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mac.RemSliceUser(rnti, sliceID)
}

// switchPositioner is an optional capability of the MAC scheduler,
// implemented when the duo-dynamic slice scheduler is active. Checked
// with a type assertion rather than added to MACScheduler itself, so a
// test fake or the multi-credit scheduler simply reports ok=false.
type switchPositioner interface {
	SwitchPosition() (uint32, bool)
}

// DuoSwitchPosition reports the duo-dynamic scheduler's current switch
// position, if the active slice scheduler strategy has one.
func (m *Manager) DuoSwitchPosition() (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sp, ok := m.mac.(switchPositioner)
	if !ok {
		return 0, false
	}
	return sp.SwitchPosition()
}

// GetSliceSched returns the id of the active slice scheduler strategy.
func (m *Manager) GetSliceSched() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mac.GetSliceSchedID()
}

// SliceSummary is a read-only view of one tracked slice, for listing.
type SliceSummary struct {
	ID        uint64
	PLMN      uint32
	Tag       uint32
	Admission bool
}

// GetSlices lists every slice the manager is tracking, ascending by id.
func (m *Manager) GetSlices() []SliceSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SliceSummary, 0, len(m.slices))
	for _, rec := range m.slices {
		out = append(out, SliceSummary{ID: rec.id, PLMN: rec.plmn, Tag: rec.tag, Admission: rec.admission})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetSliceInfo delegates to the scheduler's own slice info lookup.
func (m *Manager) GetSliceInfo(id uint64, cap int) (SliceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.slices[id]; !ok {
		return SliceInfo{}, fmt.Errorf("slice %d does not exist", id)
	}
	return m.mac.GetSliceInfo(id, cap)
}

// PLMNToID packs an MCC/MNC pair and a tag into a slice id.
func PLMNToID(mcc, mnc uint16, tag uint32) uint64 {
	plmn := ranid.PLMNOf(ranid.PLMNToID(mcc, mnc))
	return ranid.PackID(plmn, tag)
}

// IDToPLMN decodes the MCC/MNC pair embedded in a slice id.
func IDToPLMN(id uint64) (mcc, mnc uint16) {
	return ranid.IDToPLMN(id)
}
