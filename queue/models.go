// Package queue implements the queue gateway (the specification's C5): the
// relational store of batches and their commands that the scheduler polls
// for runnable work and the executor reports progress back into.
package queue

import "time"

// BatchStatus mirrors the lifecycle a batch moves through.
type BatchStatus string

const (
	BatchInit    BatchStatus = "INIT"
	BatchRunning BatchStatus = "RUN"
	BatchDone    BatchStatus = "DONE"
	BatchStopped BatchStatus = "STOP"
	BatchBlocked BatchStatus = "BLOCKED"
)

// CommandStatus mirrors one command's lifecycle within its batch.
type CommandStatus string

const (
	CommandInit    CommandStatus = "INIT"
	CommandRunning CommandStatus = "RUN"
	CommandDone    CommandStatus = "DONE"
	CommandError   CommandStatus = "ERROR"
	CommandBlocked CommandStatus = "BLOCKED"
)

// Batch is one queued or running QuickStatements batch.
type Batch struct {
	ID        int64 `gorm:"primaryKey"`
	OwnerUser string `gorm:"index"`
	Site      string
	Status    BatchStatus `gorm:"index"`
	Summary   string
	// RunningOnHost records which process claimed the batch, so a crashed
	// worker's batches can be told apart from one genuinely still running
	// elsewhere when the scheduler resets state at startup.
	RunningOnHost string
	// LastItem is the entity id the LAST sentinel currently resolves to
	// for this batch, persisted after every command that completes DONE
	// so a worker restart mid-batch resumes LAST resolution correctly.
	LastItem     string
	CreatedAt    time.Time
	LastActivity time.Time
}

func (Batch) TableName() string { return "batch" }

// Command is one parsed-and-compiled line of a batch.
type Command struct {
	ID        int64 `gorm:"primaryKey"`
	BatchID   int64 `gorm:"index"`
	Sequence  int   `gorm:"index"`
	RawLine   string
	Status    CommandStatus `gorm:"index"`
	ErrorText string
	JSONMeta  string // audit trail: compiled action outcomes, as JSON
	CreatedAt time.Time
	FinishedAt *time.Time
}

func (Command) TableName() string { return "command" }
