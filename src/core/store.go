package main

import (
	"sort"
)

// SettlementStore holds payrolls and records. It is not safe for concurrent
// use on its own; the engine serializes access.
type SettlementStore struct {
	payrolls map[AccountID]Payroll
	records  map[AccountID]map[AccountID]Record
}

// NewSettlementStore creates an empty store
func NewSettlementStore() *SettlementStore {
	return &SettlementStore{
		payrolls: make(map[AccountID]Payroll),
		records:  make(map[AccountID]map[AccountID]Record),
	}
}

// Payroll returns the pathfinder's payroll, zero-valued when absent
func (s *SettlementStore) Payroll(pathfinder AccountID) Payroll {
	return s.payrolls[pathfinder]
}

// AddPayroll adds count updates and fee to the pathfinder's payroll
func (s *SettlementStore) AddPayroll(pathfinder AccountID, count uint32, fee Amount) error {
	p := s.payrolls[pathfinder]
	newCount := p.Count + count
	if newCount < p.Count {
		return ErrOverflow
	}
	newFee, err := p.TotalFee.CheckedAdd(fee)
	if err != nil {
		return err
	}
	s.payrolls[pathfinder] = Payroll{Count: newCount, TotalFee: newFee}
	return nil
}

// TakePayroll reads and zeroes the pathfinder's payroll
func (s *SettlementStore) TakePayroll(pathfinder AccountID) Payroll {
	p := s.payrolls[pathfinder]
	delete(s.payrolls, pathfinder)
	return p
}

// DebitPayroll removes one update and its fee, saturating at zero
func (s *SettlementStore) DebitPayroll(pathfinder AccountID, fee Amount) {
	p, exists := s.payrolls[pathfinder]
	if !exists {
		return
	}
	if p.Count > 0 {
		p.Count--
	}
	p.TotalFee = p.TotalFee.SaturatingSub(fee)
	if p.IsZero() {
		delete(s.payrolls, pathfinder)
		return
	}
	s.payrolls[pathfinder] = p
}

// PayrollEntry pairs a payroll with its pathfinder
type PayrollEntry struct {
	Pathfinder AccountID `json:"pathfinder"`
	Payroll
}

// Payrolls lists every payroll ordered by pathfinder
func (s *SettlementStore) Payrolls() []PayrollEntry {
	entries := make([]PayrollEntry, 0, len(s.payrolls))
	for pathfinder, p := range s.payrolls {
		entries = append(entries, PayrollEntry{Pathfinder: pathfinder, Payroll: p})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Pathfinder < entries[j].Pathfinder
	})
	return entries
}

// ClearPayrolls removes every payroll
func (s *SettlementStore) ClearPayrolls() {
	s.payrolls = make(map[AccountID]Payroll)
}

// Record returns the record for (pathfinder, target)
func (s *SettlementStore) Record(pathfinder, target AccountID) (Record, bool) {
	r, exists := s.records[pathfinder][target]
	return r, exists
}

// PutRecord writes or overwrites the record for (pathfinder, target)
func (s *SettlementStore) PutRecord(pathfinder, target AccountID, r Record) {
	if _, exists := s.records[pathfinder]; !exists {
		s.records[pathfinder] = make(map[AccountID]Record)
	}
	s.records[pathfinder][target] = r
}

// TakeRecord removes and returns the record for (pathfinder, target)
func (s *SettlementStore) TakeRecord(pathfinder, target AccountID) (Record, bool) {
	r, exists := s.records[pathfinder][target]
	if !exists {
		return Record{}, false
	}
	delete(s.records[pathfinder], target)
	if len(s.records[pathfinder]) == 0 {
		delete(s.records, pathfinder)
	}
	return r, true
}

// RemoveRecords removes every record submitted by the pathfinder
func (s *SettlementStore) RemoveRecords(pathfinder AccountID) int {
	n := len(s.records[pathfinder])
	delete(s.records, pathfinder)
	return n
}

// Records lists the pathfinder's records ordered by target
func (s *SettlementStore) Records(pathfinder AccountID) []RecordEntry {
	entries := make([]RecordEntry, 0, len(s.records[pathfinder]))
	for target, r := range s.records[pathfinder] {
		entries = append(entries, RecordEntry{Target: target, Record: r})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Target < entries[j].Target
	})
	return entries
}

// StoreSnapshot is the serializable form of a SettlementStore
type StoreSnapshot struct {
	Payrolls []PayrollEntry              `json:"payrolls"`
	Records  map[AccountID][]RecordEntry `json:"records"`
}

// Snapshot copies the store contents
func (s *SettlementStore) Snapshot() StoreSnapshot {
	snap := StoreSnapshot{
		Payrolls: s.Payrolls(),
		Records:  make(map[AccountID][]RecordEntry, len(s.records)),
	}
	for pathfinder := range s.records {
		snap.Records[pathfinder] = s.Records(pathfinder)
	}
	return snap
}

// Restore replaces the store contents with the snapshot
func (s *SettlementStore) Restore(snap StoreSnapshot) {
	s.payrolls = make(map[AccountID]Payroll, len(snap.Payrolls))
	s.records = make(map[AccountID]map[AccountID]Record, len(snap.Records))
	for _, e := range snap.Payrolls {
		s.payrolls[e.Pathfinder] = e.Payroll
	}
	for pathfinder, entries := range snap.Records {
		for _, e := range entries {
			s.PutRecord(pathfinder, e.Target, e.Record)
		}
	}
}
