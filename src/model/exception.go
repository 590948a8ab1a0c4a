package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ExceptionType identifies the rule that produced an operational exception.
type ExceptionType string

const (
	ExceptionReceivingDelay        ExceptionType = "RECEIVING_DELAY"
	ExceptionCapacityOverload      ExceptionType = "CAPACITY_OVERLOAD"
	ExceptionPutawayBlocked        ExceptionType = "PUTAWAY_BLOCKED"
	ExceptionLateShipment          ExceptionType = "LATE_SHIPMENT"
	ExceptionWorkerGap             ExceptionType = "WORKER_GAP"
	ExceptionCycleCountDiscrepancy ExceptionType = "CYCLE_COUNT_DISCREPANCY"
)

// ExceptionTypes lists every type the detector produces, in rule order.
var ExceptionTypes = []ExceptionType{
	ExceptionReceivingDelay,
	ExceptionCapacityOverload,
	ExceptionPutawayBlocked,
	ExceptionLateShipment,
	ExceptionWorkerGap,
	ExceptionCycleCountDiscrepancy,
}

func (t ExceptionType) Valid() bool {
	for _, known := range ExceptionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Remediation verbs. The first group is what an exception advertises,
// the second is what the action executor accepts.
const (
	ActionAssignOther   = "ASSIGN_OTHER"
	ActionUnhold        = "UNHOLD"
	ActionRelocateStock = "RELOCATE_STOCK"
	ActionReassignPick  = "REASSIGN_PICK"
	ActionPrioritize    = "PRIORITIZE"
	ActionReconcile     = "RECONCILE"
	ActionAcknowledge   = "ACK"

	ActionReassignWorker = "REASSIGN_WORKER"
	ActionPrioritizePick = "PRIORITIZE_PICK"
)

// ExceptionSeverity is the operational severity of a detected exception.
// It is unrelated to ComplianceSeverity, which rates elapsed time against the SLA.
type ExceptionSeverity string

const (
	SeverityInfo     ExceptionSeverity = "info"
	SeverityMedium   ExceptionSeverity = "medium"
	SeverityHigh     ExceptionSeverity = "high"
	SeverityCritical ExceptionSeverity = "critical"
)

// Rank orders severities numerically; unknown values rank below info.
func (s ExceptionSeverity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

func (s ExceptionSeverity) Valid() bool {
	return s.Rank() >= 0
}

// ComplianceSeverity is the ledger's three-tier rating of elapsed/limit.
type ComplianceSeverity string

const (
	ComplianceLow    ComplianceSeverity = "LOW"
	ComplianceMedium ComplianceSeverity = "MEDIUM"
	ComplianceHigh   ComplianceSeverity = "HIGH"
)

// TaskKind tags what kind of entity an exception points at.
type TaskKind string

const (
	TaskKindReceiving  TaskKind = "RECEIVING"
	TaskKindShipping   TaskKind = "SHIPPING"
	TaskKindPutaway    TaskKind = "PUTAWAY"
	TaskKindCycleCount TaskKind = "CYCLE_COUNT"
	TaskKindLocation   TaskKind = "LOCATION"
)

// TaskRef is a typed back-reference to the entity behind an exception.
type TaskRef struct {
	Kind TaskKind `json:"kind"`
	ID   uint     `json:"id"`
}

func (r TaskRef) IsZero() bool {
	return r.Kind == "" && r.ID == 0
}

func (r TaskRef) prefix() string {
	switch r.Kind {
	case TaskKindReceiving:
		return "RCV"
	case TaskKindShipping:
		return "SHIP"
	case TaskKindPutaway:
		return "PUT"
	case TaskKindCycleCount:
		return "CC"
	case TaskKindLocation:
		return "LOC"
	default:
		return string(r.Kind)
	}
}

// WorkerSnapshot is a denormalized copy of the assigned worker at detection time.
type WorkerSnapshot struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Shift  string `json:"shift"`
	Online bool   `json:"online"`
}

// Exception is computed on every detection pass and never persisted.
type Exception struct {
	ID             string            `json:"id"`
	Type           ExceptionType     `json:"type"`
	Severity       ExceptionSeverity `json:"severity"`
	SinceMinutes   int               `json:"since_minutes"`
	AssignedWorker *WorkerSnapshot   `json:"assigned_worker,omitempty"`
	Actions        []string          `json:"actions"`
	Detail         string            `json:"detail"`

	Task         TaskRef `json:"task"`
	WorkerID     uint    `json:"worker_id,omitempty"`
	LocationCode string  `json:"location_code,omitempty"`
	Zone         string  `json:"zone,omitempty"`
	ItemSKU      string  `json:"item_sku,omitempty"`
}

// ExceptionKey is the parsed form of an exception id.
type ExceptionKey struct {
	Type     ExceptionType
	Task     TaskRef
	WorkerID uint
}

// String renders the stable id used by the SLA ledger and the action log.
func (k ExceptionKey) String() string {
	if k.Type == ExceptionWorkerGap {
		return fmt.Sprintf("GAP-%d-%s-%d", k.WorkerID, k.Task.prefix(), k.Task.ID)
	}
	return fmt.Sprintf("%s-%d", k.Task.prefix(), k.Task.ID)
}

func ReceivingDelayKey(docID uint) ExceptionKey {
	return ExceptionKey{Type: ExceptionReceivingDelay, Task: TaskRef{Kind: TaskKindReceiving, ID: docID}}
}

func CapacityOverloadKey(locationID uint) ExceptionKey {
	return ExceptionKey{Type: ExceptionCapacityOverload, Task: TaskRef{Kind: TaskKindLocation, ID: locationID}}
}

func PutawayBlockedKey(taskID uint) ExceptionKey {
	return ExceptionKey{Type: ExceptionPutawayBlocked, Task: TaskRef{Kind: TaskKindPutaway, ID: taskID}}
}

func LateShipmentKey(orderID uint) ExceptionKey {
	return ExceptionKey{Type: ExceptionLateShipment, Task: TaskRef{Kind: TaskKindShipping, ID: orderID}}
}

func WorkerGapKey(workerID uint, task TaskRef) ExceptionKey {
	return ExceptionKey{Type: ExceptionWorkerGap, Task: task, WorkerID: workerID}
}

func CycleCountKey(taskID uint) ExceptionKey {
	return ExceptionKey{Type: ExceptionCycleCountDiscrepancy, Task: TaskRef{Kind: TaskKindCycleCount, ID: taskID}}
}

var prefixKinds = map[string]struct {
	kind TaskKind
	typ  ExceptionType
}{
	"RCV":  {TaskKindReceiving, ExceptionReceivingDelay},
	"SHIP": {TaskKindShipping, ExceptionLateShipment},
	"PUT":  {TaskKindPutaway, ExceptionPutawayBlocked},
	"CC":   {TaskKindCycleCount, ExceptionCycleCountDiscrepancy},
	"LOC":  {TaskKindLocation, ExceptionCapacityOverload},
}

// ParseExceptionID turns an id received from a caller back into a typed key.
// This is the only place that reads id text; everything else carries ExceptionKey or TaskRef.
func ParseExceptionID(id string) (ExceptionKey, error) {
	parts := strings.Split(strings.TrimSpace(id), "-")

	switch {
	case len(parts) == 2:
		pk, ok := prefixKinds[parts[0]]
		if !ok {
			return ExceptionKey{}, fmt.Errorf("unknown exception id prefix %q", parts[0])
		}
		n, err := parseID(parts[1])
		if err != nil {
			return ExceptionKey{}, err
		}
		return ExceptionKey{Type: pk.typ, Task: TaskRef{Kind: pk.kind, ID: n}}, nil

	case len(parts) == 4 && parts[0] == "GAP":
		worker, err := parseID(parts[1])
		if err != nil {
			return ExceptionKey{}, err
		}
		pk, ok := prefixKinds[parts[2]]
		if !ok || (pk.kind != TaskKindReceiving && pk.kind != TaskKindShipping) {
			return ExceptionKey{}, fmt.Errorf("unknown worker gap task prefix %q", parts[2])
		}
		n, err := parseID(parts[3])
		if err != nil {
			return ExceptionKey{}, err
		}
		return WorkerGapKey(worker, TaskRef{Kind: pk.kind, ID: n}), nil
	}

	return ExceptionKey{}, fmt.Errorf("malformed exception id %q", id)
}

func parseID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid numeric id %q", s)
	}
	return uint(n), nil
}
