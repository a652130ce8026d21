// package state
//
// history of migration runs and of every table or file they touched
package state

import "time"

type RunLogState string

const (
	Started RunLogState = "STARTED"
	Success RunLogState = "SUCCESS"
	Skipped RunLogState = "SKIPPED"
	Aborted RunLogState = "ABORTED"
	Failed  RunLogState = "FAILED"
)

// Phase : which half of the migration a table log belongs to
type Phase string

const (
	PhaseExport Phase = "export"
	PhaseImport Phase = "import"
)

type Base struct {
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

type RunLog struct {
	RunID                 string      `json:"run_id" db:"run_id" gorm:"primaryKey;type:varchar(36)"`
	Root                  string      `json:"root" db:"root" gorm:"type:varchar(1024)"`
	TotalTablesForThisRun int         `json:"total_tables_for_run" db:"total_tables_for_run"`
	Status                RunLogState `json:"status" db:"status" gorm:"type:varchar(50)"`
	ErrMsg                string      `json:"err_msg" db:"err_msg"`
	Base
}

type TableRunLog struct {
	ID          uint        `json:"id" db:"id" gorm:"primaryKey;autoIncrement"`
	ParentRunID string      `json:"parent_run_id" db:"parent_run_id" gorm:"type:varchar(36);index"`
	Phase       Phase       `json:"phase" db:"phase" gorm:"type:varchar(10)"`
	DBName      string      `json:"db_name" db:"db_name" gorm:"type:varchar(255)"`
	TableName   string      `json:"table_name" db:"table_name" gorm:"type:varchar(255)"`
	RowWritten  int64       `json:"rows_written_target" db:"row_written"`
	Status      RunLogState `json:"status" db:"status" gorm:"type:varchar(50)"`
	Reason      string      `json:"reason" db:"reason" gorm:"type:varchar(255)"`
	ErrMsg      string      `json:"err_msg" db:"err_msg"`
	Base
}

type Manager interface {
	// GetLastRun : most recent run or nil when there is none
	GetLastRun() (*RunLog, error)
	// GetRunLog : GetRunLog get a specific run log
	GetRunLog(runID string) (*RunLog, error)
	GetTableRunLogs(runID string) ([]*TableRunLog, error)
	// InitRunLog : start a run log
	InitRunLog(runID string, root string, totalTableCount int) error
	FailedRunLog(runID string, err error) error
	PassedRunLog(runID string) error
	InitTableRunLog(runID string, phase Phase, dbName string, tableName string) error
	FailedTableRun(runID string, phase Phase, dbName string, tableName string, err error) error
	PassedTableRun(runID string, phase Phase, dbName string, tableName string, rowsWritten int64) error
	SkippedTableRun(runID string, phase Phase, dbName string, tableName string, reason string) error
	DidTableFailForRun(runID string) (bool, error)
	// OnShutDownEv : marks a run that is still started as aborted
	OnShutDownEv() error
	Close() error
}

// NewNopManager : keeps no history
func NewNopManager() Manager {
	return nopManager{}
}

type nopManager struct{}

func (nopManager) GetLastRun() (*RunLog, error)                                { return nil, nil }
func (nopManager) GetRunLog(string) (*RunLog, error)                           { return nil, nil }
func (nopManager) GetTableRunLogs(string) ([]*TableRunLog, error)              { return nil, nil }
func (nopManager) InitRunLog(string, string, int) error                        { return nil }
func (nopManager) FailedRunLog(string, error) error                            { return nil }
func (nopManager) PassedRunLog(string) error                                   { return nil }
func (nopManager) InitTableRunLog(string, Phase, string, string) error         { return nil }
func (nopManager) FailedTableRun(string, Phase, string, string, error) error   { return nil }
func (nopManager) PassedTableRun(string, Phase, string, string, int64) error   { return nil }
func (nopManager) SkippedTableRun(string, Phase, string, string, string) error { return nil }
func (nopManager) DidTableFailForRun(string) (bool, error)                     { return false, nil }
func (nopManager) OnShutDownEv() error                                         { return nil }
func (nopManager) Close() error                                                { return nil }
