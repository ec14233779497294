package dispatch

import (
	"fmt"
	"time"
)

// Stage is a state of the dispatch state machine. Each stage names the
// state reached once its step succeeds.
type Stage string

const (
	StageReceived         Stage = "RECEIVED"
	StageExtracted        Stage = "EXTRACTED"
	StageCharitiesFetched Stage = "CHARITIES_FETCHED"
	StageRanked           Stage = "RANKED"
	StageCharitySelected  Stage = "CHARITY_SELECTED"
	StageDriversFetched   Stage = "DRIVERS_FETCHED"
	StageDriverSelected   Stage = "DRIVER_SELECTED"
	StageMessageDrafted   Stage = "MESSAGE_DRAFTED"
	StageReceiptGenerated Stage = "RECEIPT_GENERATED"
	StageAudited          Stage = "AUDITED"
)

// Stages lists the states in execution order.
var Stages = []Stage{
	StageReceived,
	StageExtracted,
	StageCharitiesFetched,
	StageRanked,
	StageCharitySelected,
	StageDriversFetched,
	StageDriverSelected,
	StageMessageDrafted,
	StageReceiptGenerated,
	StageAudited,
}

// StageEvent is published on the stage bus after every step.
type StageEvent struct {
	DispatchID   string
	RestaurantID string
	Stage        Stage
	Err          error
	Duration     time.Duration
	Time         time.Time
}

// StepError halts a dispatch. Stage is the state the pipeline failed to
// reach; no earlier step is rolled back.
type StepError struct {
	Stage Stage
	Err   error
	Debug any
}

func (e *StepError) Error() string {
	return fmt.Sprintf("dispatch failed before %s: %v", e.Stage, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
