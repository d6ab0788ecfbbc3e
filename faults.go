package lumen

import (
	"strings"
	"sync"
)

// FaultKind mirrors the three error tiers the driver can report after a
// resource-creating call: allocation failure, validation failure, or an
// internal driver fault.
type FaultKind int

const (
	FaultOutOfMemory FaultKind = iota
	FaultValidation
	FaultInternal
)

func (k FaultKind) String() string {
	switch k {
	case FaultOutOfMemory:
		return "out-of-memory"
	case FaultValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Fault is a structured driver fault. The handle returned by the call that
// triggered it is already committed; faults are reported on the side and
// never unwind the caller.
type Fault struct {
	Kind    FaultKind
	Op      string
	Message string
}

type FaultObserver interface {
	ObserveFault(Fault)
}

const faultRetention = 64

// FaultLog is the default FaultObserver: it logs every fault and retains the
// most recent ones for inspection.
type FaultLog struct {
	mu     sync.Mutex
	log    Logger
	recent []Fault
}

func NewFaultLog(log Logger) *FaultLog {
	if log == nil {
		log = NewNopLogger()
	}
	return &FaultLog{log: log}
}

func (f *FaultLog) ObserveFault(fault Fault) {
	f.mu.Lock()
	f.recent = append(f.recent, fault)
	if len(f.recent) > faultRetention {
		f.recent = f.recent[len(f.recent)-faultRetention:]
	}
	f.mu.Unlock()
	f.log.Errorf("gpu fault (%s) in %s: %s", fault.Kind, fault.Op, fault.Message)
}

// Faults returns a copy of the retained faults, oldest first.
func (f *FaultLog) Faults() []Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Fault, len(f.recent))
	copy(out, f.recent)
	return out
}

func classifyFault(err error) FaultKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "out of memory") || strings.Contains(msg, "outofmemory") || strings.Contains(msg, "allocation"):
		return FaultOutOfMemory
	case strings.Contains(msg, "validation") || strings.Contains(msg, "invalid"):
		return FaultValidation
	default:
		return FaultInternal
	}
}

// reportFault forwards a driver error to the observer. Nil errors and nil
// observers are ignored so call sites stay unconditional.
func reportFault(obs FaultObserver, op string, err error) {
	if err == nil || obs == nil {
		return
	}
	obs.ObserveFault(Fault{
		Kind:    classifyFault(err),
		Op:      op,
		Message: err.Error(),
	})
}
