package jobqueue

import (
	"math"
	"time"
)

// JobType classifies queued work. Declaration order is priority order: a
// later constant is always dispatched before an earlier one.
type JobType int

const (
	JobPack JobType = iota
	JobPubOldLedger
	JobValidationUntrusted
	JobLedgerRequest
	JobProposalUntrusted
	JobLedgerData
	JobClient
	JobTransaction
	JobAdvance
	JobPubLedger
	JobTxnData
	JobWrite
	JobValidationTrusted
	JobAccept
	JobProposalTrusted
	JobSweep
	JobNetopTimer
	JobAdmin

	numJobTypes
)

// unlimited marks a job type without a concurrency cap.
const unlimited = math.MaxInt32

// TypeInfo describes how a job type is scheduled and when its load monitor
// reports overload. Zero latency targets disable the respective check.
type TypeInfo struct {
	Type        JobType
	Name        string
	Limit       int
	AvgLatency  time.Duration
	PeakLatency time.Duration
}

var jobTypes = [numJobTypes]TypeInfo{
	{JobPack, "makeFetchPack", 1, 0, 0},
	{JobPubOldLedger, "publishAcqLedger", 2, 10 * time.Second, 15 * time.Second},
	{JobValidationUntrusted, "untrustedValidation", unlimited, 2 * time.Second, 5 * time.Second},
	{JobLedgerRequest, "ledgerRequest", 3, 0, 0},
	{JobProposalUntrusted, "untrustedProposal", unlimited, 500 * time.Millisecond, 10 * time.Second},
	{JobLedgerData, "ledgerData", 3, 0, 0},
	{JobClient, "clientCommand", unlimited, 2 * time.Second, 5 * time.Second},
	{JobTransaction, "transaction", unlimited, 250 * time.Millisecond, time.Second},
	{JobAdvance, "advanceLedger", unlimited, 0, 0},
	{JobPubLedger, "publishNewLedger", unlimited, 3 * time.Second, 4500 * time.Millisecond},
	{JobTxnData, "fetchTxnData", 5, 0, 0},
	{JobWrite, "writeObjects", unlimited, 1750 * time.Millisecond, 2500 * time.Millisecond},
	{JobValidationTrusted, "trustedValidation", unlimited, 500 * time.Millisecond, 1500 * time.Millisecond},
	{JobAccept, "acceptLedger", unlimited, 0, 0},
	{JobProposalTrusted, "trustedProposal", unlimited, 100 * time.Millisecond, 500 * time.Millisecond},
	{JobSweep, "sweep", 1, 0, 0},
	{JobNetopTimer, "heartbeat", 1, 999 * time.Millisecond, 999 * time.Millisecond},
	{JobAdmin, "administration", unlimited, 0, 0},
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	return t >= 0 && t < numJobTypes
}

// String returns the job type's name.
func (t JobType) String() string {
	if !t.Valid() {
		return "invalid"
	}
	return jobTypes[t].Name
}

// Info returns the scheduling parameters of t.
func (t JobType) Info() TypeInfo {
	if !t.Valid() {
		return TypeInfo{Type: t, Name: "invalid"}
	}
	return jobTypes[t]
}

// AllTypes returns every job type in ascending priority order.
func AllTypes() []JobType {
	out := make([]JobType, numJobTypes)
	for i := range out {
		out[i] = JobType(i)
	}
	return out
}
